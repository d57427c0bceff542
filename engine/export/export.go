// Package export converts committed snapshots into JSON frames for
// journals, observers and external viewers.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Version is the frame format version.
const Version = 1

// Frame is the JSON-serializable form of one committed generation.
type Frame struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
	Agents  int    `json:"agents"`
	Root    Node   `json:"root"`
}

// Node is one agent. Traits keep their insertion order.
type Node struct {
	ID       types.AgentID `json:"id"`
	Name     string        `json:"name"`
	Traits   []Trait       `json:"traits"`
	Children []Node        `json:"children"`
}

// Trait is one trait of a node. Value holds a number, string or bool for
// primitives, the child's ID for agent references, and is omitted for
// abilities.
type Trait struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
}

// FromSnapshot builds a frame for snap.
func FromSnapshot(snap *world.Snapshot) Frame {
	return Frame{
		Version: Version,
		Tick:    snap.Tick(),
		Digest:  snap.Digest(),
		Agents:  snap.Len(),
		Root:    node(snap.Root()),
	}
}

func node(a *world.Agent) Node {
	n := Node{
		ID:       a.ID(),
		Name:     a.Name(),
		Traits:   make([]Trait, 0, a.NumTraits()),
		Children: make([]Node, 0, a.NumChildren()),
	}
	for name, v := range a.Traits() {
		n.Traits = append(n.Traits, Trait{Name: name, Kind: v.Kind().String(), Value: v.Interface()})
	}
	for _, c := range a.Children() {
		n.Children = append(n.Children, node(c))
	}
	return n
}

// Marshal serializes snap as a compact JSON frame.
func Marshal(snap *world.Snapshot) ([]byte, error) {
	return json.Marshal(FromSnapshot(snap))
}

// MarshalIndent serializes snap as an indented JSON frame.
func MarshalIndent(snap *world.Snapshot) ([]byte, error) {
	return json.MarshalIndent(FromSnapshot(snap), "", "  ")
}

// Unmarshal deserializes a frame.
func Unmarshal(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Version != Version {
		return nil, fmt.Errorf("unsupported frame version %d", f.Version)
	}
	return &f, nil
}

// Find returns the node with the given ID.
func (f *Frame) Find(id types.AgentID) (*Node, bool) {
	return f.Root.find(id)
}

func (n *Node) find(id types.AgentID) (*Node, bool) {
	if n.ID == id {
		return n, true
	}
	for i := range n.Children {
		if found, ok := n.Children[i].find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// Trait returns the named trait's value.
func (n *Node) Trait(name string) (any, bool) {
	for _, t := range n.Traits {
		if t.Name == name {
			return t.Value, true
		}
	}
	return nil, false
}
