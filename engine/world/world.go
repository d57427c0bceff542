// Package world holds the agent tree, its committed generations and the
// mutation queue that carries effects from one generation to the next.
package world

import (
	"fmt"

	"github.com/nathoo/agentsim/types"
)

// RootName is the name given to the world's root agent.
const RootName = "root"

// World owns the agent tree. Before it is sealed the tree is built directly
// through Agent methods. Sealing freezes the tree into generation zero; from
// then on the tree only changes through Commit.
type World struct {
	root   *Agent
	lastID types.AgentID
	sealed bool
	snap   *Snapshot
}

// New returns a world holding a single root agent.
func New() *World {
	w := &World{}
	w.root = w.NewAgent(RootName)
	return w
}

// NewAgent allocates a detached agent with a fresh ID. IDs are never reused.
func (w *World) NewAgent(name string) *Agent {
	w.lastID++
	return newAgent(w.lastID, name)
}

// Root returns the root of the most recent generation, or of the builder
// tree before sealing.
func (w *World) Root() *Agent {
	if w.snap != nil {
		return w.snap.root
	}
	return w.root
}

// LastID is the most recently allocated agent ID.
func (w *World) LastID() types.AgentID { return w.lastID }

func (w *World) allocated(id types.AgentID) bool { return id > 0 && id <= w.lastID }

func (w *World) Sealed() bool { return w.sealed }

// Seal freezes the builder tree into generation zero. Sealing twice is a
// no-op.
func (w *World) Seal() error {
	if w.sealed {
		return nil
	}
	index, err := indexTree(w.root)
	if err != nil {
		return err
	}
	freeze(w.root)
	w.snap = newSnapshot(0, w.root, index)
	w.sealed = true
	return nil
}

// Snapshot returns the current committed generation, sealing the world if
// needed. It returns nil if the builder tree cannot be sealed.
func (w *World) Snapshot() *Snapshot {
	if err := w.Seal(); err != nil {
		return nil
	}
	return w.snap
}

// Find looks an agent up in the current generation. Before sealing it
// searches the builder tree.
func (w *World) Find(id types.AgentID) (*Agent, bool) {
	if w.snap != nil {
		return w.snap.Find(id)
	}
	for a := range w.root.Traverse() {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

func indexTree(root *Agent) (map[types.AgentID]*Agent, error) {
	index := map[types.AgentID]*Agent{}
	for a := range root.Traverse() {
		if _, dup := index[a.id]; dup {
			return nil, fmt.Errorf("agent %d reachable twice: %w", a.id, ErrInconsistentTree)
		}
		index[a.id] = a
	}
	return index, nil
}

func freeze(root *Agent) {
	for a := range root.Traverse() {
		a.frozen = true
	}
}
