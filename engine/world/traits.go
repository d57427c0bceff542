package world

import (
	"fmt"
	"iter"
	"slices"
)

// TraitStore maps trait names to values and remembers insertion order, so
// iteration over traits (and therefore abilities) is deterministic.
type TraitStore struct {
	names  []string
	values map[string]Value
}

// NewTraitStore returns an empty store.
func NewTraitStore() *TraitStore {
	return &TraitStore{values: map[string]Value{}}
}

// Set stores v under name. Overwriting keeps the name's original position.
// It returns the previous value, if any.
func (s *TraitStore) Set(name string, v Value) (Value, bool) {
	prev, ok := s.values[name]
	if !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = v
	return prev, ok
}

// Get returns the value stored under name or ErrKeyNotFound.
func (s *TraitStore) Get(name string) (Value, error) {
	v, ok := s.values[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return v, nil
}

// Lookup returns the value stored under name and whether it exists.
func (s *TraitStore) Lookup(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Remove deletes name and returns the removed value.
func (s *TraitStore) Remove(name string) (Value, bool) {
	v, ok := s.values[name]
	if !ok {
		return Value{}, false
	}
	delete(s.values, name)
	if i := slices.Index(s.names, name); i >= 0 {
		s.names = slices.Delete(s.names, i, i+1)
	}
	return v, true
}

// Names returns trait names in insertion order.
func (s *TraitStore) Names() []string {
	return slices.Clone(s.names)
}

func (s *TraitStore) Len() int { return len(s.names) }

// All iterates name/value pairs in insertion order.
func (s *TraitStore) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, name := range s.names {
			if !yield(name, s.values[name]) {
				return
			}
		}
	}
}

// clone copies the store's structure. Values are copied shallowly: ability
// and agent pointers are shared with the original.
func (s *TraitStore) clone() *TraitStore {
	c := &TraitStore{
		names:  slices.Clone(s.names),
		values: make(map[string]Value, len(s.values)),
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}
