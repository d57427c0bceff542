package world

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"iter"
	"strconv"
	"sync"

	"github.com/nathoo/agentsim/types"
)

// Snapshot is a committed generation of the tree. Every agent reachable
// from it is frozen, so a snapshot never changes and may be shared freely
// between goroutines.
type Snapshot struct {
	tick  uint64
	root  *Agent
	index map[types.AgentID]*Agent
	order []*Agent

	digestOnce sync.Once
	digest     string
}

func newSnapshot(tick uint64, root *Agent, index map[types.AgentID]*Agent) *Snapshot {
	s := &Snapshot{tick: tick, root: root, index: index, order: make([]*Agent, 0, len(index))}
	for a := range root.Traverse() {
		s.order = append(s.order, a)
	}
	return s
}

// Tick is the tick whose commit produced the snapshot. The initial
// generation is tick 0.
func (s *Snapshot) Tick() uint64 { return s.tick }

func (s *Snapshot) Root() *Agent { return s.root }

// Find returns the live agent with the given ID.
func (s *Snapshot) Find(id types.AgentID) (*Agent, bool) {
	a, ok := s.index[id]
	return a, ok
}

// Agents iterates all agents in pre-order.
func (s *Snapshot) Agents() iter.Seq[*Agent] {
	return func(yield func(*Agent) bool) {
		for _, a := range s.order {
			if !yield(a) {
				return
			}
		}
	}
}

// Len is the number of agents reachable from the root, root included.
func (s *Snapshot) Len() int { return len(s.order) }

// Count returns the number of agents with the given name.
func (s *Snapshot) Count(name string) int {
	n := 0
	for _, a := range s.order {
		if a.name == name {
			n++
		}
	}
	return n
}

// Digest is a hex SHA-256 over a canonical pre-order encoding of the tree.
// Equal digests mean equal trees, so two runs can be compared tick by tick.
func (s *Snapshot) Digest() string {
	s.digestOnce.Do(func() {
		h := sha256.New()
		for _, a := range s.order {
			writeAgent(h, a)
		}
		s.digest = hex.EncodeToString(h.Sum(nil))
	})
	return s.digest
}

func writeAgent(h hash.Hash, a *Agent) {
	var parent types.AgentID
	if a.parent != nil {
		parent = a.parent.id
	}
	fmt.Fprintf(h, "%d|%s|%d|%d\n", a.id, strconv.Quote(a.name), parent, len(a.children))
	for name, v := range a.traits.All() {
		fmt.Fprintf(h, "\t%s=%s:%s\n", strconv.Quote(name), v.kind, v)
	}
}
