package world

import (
	"fmt"
	"iter"
	"slices"

	"github.com/nathoo/agentsim/types"
)

// Agent is a node of the simulation tree. It carries an ordered set of
// traits and an ordered list of children. Agents created through a World
// are mutable until the world is sealed; after that every agent reachable
// from the root is frozen and changes go through a Recorder.
type Agent struct {
	id       types.AgentID
	name     string
	traits   *TraitStore
	children []*Agent
	parent   *Agent
	frozen   bool
}

func newAgent(id types.AgentID, name string) *Agent {
	return &Agent{id: id, name: name, traits: NewTraitStore()}
}

func (a *Agent) ID() types.AgentID { return a.id }

func (a *Agent) Name() string { return a.name }

// Parent returns the owning agent, or nil for the root and detached agents.
func (a *Agent) Parent() *Agent { return a.parent }

// Frozen reports whether the agent belongs to a committed generation.
func (a *Agent) Frozen() bool { return a.frozen }

// Children returns the agent's children in insertion order.
func (a *Agent) Children() []*Agent { return slices.Clone(a.children) }

func (a *Agent) NumChildren() int { return len(a.children) }

// Child returns the direct child with the given ID.
func (a *Agent) Child(id types.AgentID) (*Agent, bool) {
	for _, c := range a.children {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// Root walks up the parent chain.
func (a *Agent) Root() *Agent {
	r := a
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Depth is the number of ancestors above a.
func (a *Agent) Depth() int {
	d := 0
	for p := a.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// IsAncestorOf reports whether a is a strict ancestor of b.
func (a *Agent) IsAncestorOf(b *Agent) bool {
	for p := b.parent; p != nil; p = p.parent {
		if p == a {
			return true
		}
	}
	return false
}

// Trait returns the named trait or an error wrapping ErrKeyNotFound.
func (a *Agent) Trait(name string) (Value, error) {
	v, err := a.traits.Get(name)
	if err != nil {
		return Value{}, fmt.Errorf("agent %d (%s): %w", a.id, a.name, err)
	}
	return v, nil
}

// LookupTrait returns the named trait and whether it exists.
func (a *Agent) LookupTrait(name string) (Value, bool) {
	return a.traits.Lookup(name)
}

// HasTrait reports whether the named trait exists.
func (a *Agent) HasTrait(name string) bool {
	_, ok := a.traits.Lookup(name)
	return ok
}

// Number returns a numeric trait.
func (a *Agent) Number(name string) (float64, error) {
	v, err := a.Trait(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0, fmt.Errorf("agent %d (%s): trait %q is %s: %w", a.id, a.name, name, v.Kind(), ErrTraitKind)
	}
	return n, nil
}

// TraitNames returns trait names in insertion order.
func (a *Agent) TraitNames() []string { return a.traits.Names() }

// Traits iterates the agent's traits in insertion order.
func (a *Agent) Traits() iter.Seq2[string, Value] { return a.traits.All() }

func (a *Agent) NumTraits() int { return a.traits.Len() }

// Abilities returns the agent's ability-valued traits in trait order.
func (a *Agent) Abilities() []Bound {
	var out []Bound
	for name, v := range a.traits.All() {
		if ab, ok := v.AsAbility(); ok {
			out = append(out, Bound{Owner: a, Name: name, Ability: ab})
		}
	}
	return out
}

// Traverse yields a and all of its descendants in pre-order.
func (a *Agent) Traverse() iter.Seq[*Agent] {
	return func(yield func(*Agent) bool) {
		a.walk(yield)
	}
}

func (a *Agent) walk(yield func(*Agent) bool) bool {
	if !yield(a) {
		return false
	}
	for _, c := range a.children {
		if !c.walk(yield) {
			return false
		}
	}
	return true
}

// SetTrait stores a trait on an unfrozen agent. Storing an agent reference
// attaches that agent as a child; the previous occupant of the trait, if it
// was an agent no other trait refers to, is detached.
func (a *Agent) SetTrait(name string, v Value) error {
	if a.frozen {
		return fmt.Errorf("set %q on agent %d: %w", name, a.id, ErrImmutable)
	}
	displaced, err := a.setTrait(name, v)
	if err != nil {
		return err
	}
	if displaced != nil {
		a.detach(displaced.id)
	}
	return nil
}

// UnsetTrait removes a trait from an unfrozen agent. An agent held only by
// that trait is detached.
func (a *Agent) UnsetTrait(name string) error {
	if a.frozen {
		return fmt.Errorf("unset %q on agent %d: %w", name, a.id, ErrImmutable)
	}
	if displaced := a.unsetTrait(name); displaced != nil {
		a.detach(displaced.id)
	}
	return nil
}

// AddChild attaches c under a. Adding an existing child is a no-op.
func (a *Agent) AddChild(c *Agent) error {
	if a.frozen {
		return fmt.Errorf("add child to agent %d: %w", a.id, ErrImmutable)
	}
	if c == nil {
		return fmt.Errorf("add nil child to agent %d: %w", a.id, ErrMalformedOperation)
	}
	if c.frozen {
		return fmt.Errorf("add agent %d: %w", c.id, ErrImmutable)
	}
	return a.attach(c)
}

// RemoveChild detaches the child with the given ID, together with any
// trait of a that refers to it. Removing an absent child is a no-op.
func (a *Agent) RemoveChild(id types.AgentID) error {
	if a.frozen {
		return fmt.Errorf("remove child from agent %d: %w", a.id, ErrImmutable)
	}
	a.detach(id)
	return nil
}

func (a *Agent) attach(c *Agent) error {
	if c.frozen {
		return fmt.Errorf("attach agent %d under %d: %w", c.id, a.id, ErrImmutable)
	}
	if c == a || c.IsAncestorOf(a) {
		return fmt.Errorf("attach agent %d under %d: %w", c.id, a.id, ErrCycleDetected)
	}
	if c.parent == a {
		return nil
	}
	if c.parent != nil {
		return fmt.Errorf("attach agent %d under %d (parent %d): %w", c.id, a.id, c.parent.id, ErrReparentNotAllowed)
	}
	c.parent = a
	a.children = append(a.children, c)
	return nil
}

// detach unlinks the child and drops a's traits that refer to it.
func (a *Agent) detach(id types.AgentID) *Agent {
	i := slices.IndexFunc(a.children, func(c *Agent) bool { return c.id == id })
	if i < 0 {
		return nil
	}
	c := a.children[i]
	a.children = slices.Delete(a.children, i, i+1)
	c.parent = nil
	for _, name := range a.traits.Names() {
		v, _ := a.traits.Lookup(name)
		if ref, ok := v.AsAgent(); ok && ref.id == id {
			a.traits.Remove(name)
		}
	}
	return c
}

// setTrait stores v, attaching the referenced agent for agent values. It
// returns the agent the overwritten trait held if nothing else refers to it
// anymore; the caller decides when to detach it.
func (a *Agent) setTrait(name string, v Value) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("set on agent %d: empty trait name: %w", a.id, ErrMalformedOperation)
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("set %q on agent %d: invalid value: %w", name, a.id, ErrMalformedOperation)
	}
	if v.kind == KindAgent {
		if v.agent == nil {
			return nil, fmt.Errorf("set %q on agent %d: nil agent: %w", name, a.id, ErrMalformedOperation)
		}
		if err := a.attach(v.agent); err != nil {
			return nil, err
		}
	}
	prev, _ := a.traits.Set(name, v)
	return a.orphaned(prev), nil
}

func (a *Agent) unsetTrait(name string) *Agent {
	prev, ok := a.traits.Remove(name)
	if !ok {
		return nil
	}
	return a.orphaned(prev)
}

// orphaned returns the agent prev referred to when no remaining trait of a
// refers to it.
func (a *Agent) orphaned(prev Value) *Agent {
	old, ok := prev.AsAgent()
	if !ok || a.refersTo(old.id) {
		return nil
	}
	return old
}

func (a *Agent) refersTo(id types.AgentID) bool {
	for _, v := range a.traits.All() {
		if ref, ok := v.AsAgent(); ok && ref.id == id {
			return true
		}
	}
	return false
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s#%d", a.name, a.id)
}
