// Package policy holds ability-selection policies for the clock.
package policy

import (
	"fmt"
	"slices"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/world"
)

// RandomSingleCast runs one uniformly chosen ability per caster per tick.
type RandomSingleCast struct {
	RNG *engine.RNG
}

func (p RandomSingleCast) Choose(_ *world.Agent, available []world.Bound, _ *world.Snapshot) []world.Bound {
	if len(available) == 0 {
		return nil
	}
	return []world.Bound{available[p.RNG.Intn(len(available))]}
}

// Weighted runs one ability per caster, chosen with the given weights by
// ability name. Unlisted abilities weigh 1; non-positive weights exclude.
type Weighted struct {
	RNG     *engine.RNG
	Weights map[string]int
}

func (p Weighted) Choose(_ *world.Agent, available []world.Bound, _ *world.Snapshot) []world.Bound {
	var (
		candidates []world.Bound
		weights    []int
	)
	for _, b := range available {
		w, ok := p.Weights[b.Name]
		if !ok {
			w = 1
		}
		if w > 0 {
			candidates = append(candidates, b)
			weights = append(weights, w)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return []world.Bound{candidates[p.RNG.WeightedSelect(weights)]}
}

// Only restricts another policy to the named abilities.
type Only struct {
	Names []string
	Next  engine.Policy
}

func (p Only) Choose(caster *world.Agent, available []world.Bound, snap *world.Snapshot) []world.Bound {
	var kept []world.Bound
	for _, b := range available {
		if slices.Contains(p.Names, b.Name) {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return next(p.Next).Choose(caster, kept, snap)
}

func next(p engine.Policy) engine.Policy {
	if p == nil {
		return engine.EvaluateAll{}
	}
	return p
}

// FromName returns the policy registered under name: "all" (or ""),
// "random" or "single".
func FromName(name string, rng *engine.RNG) (engine.Policy, error) {
	switch name {
	case "", "all":
		return engine.EvaluateAll{}, nil
	case "random", "single":
		return RandomSingleCast{RNG: rng}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}
