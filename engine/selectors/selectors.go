// Package selectors provides the target-selection rules abilities use.
// Every selector returns agents in snapshot pre-order.
package selectors

import (
	"fmt"
	"math"

	"github.com/nathoo/agentsim/engine/conditions"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Types lists the selector types Compile understands.
var Types = map[string]bool{
	"self":         true,
	"all":          true,
	"children":     true,
	"siblings":     true,
	"parent":       true,
	"with_trait":   true,
	"within_range": true,
}

// Self selects the caster.
func Self() world.Selector {
	return world.SelectorFunc(func(caster *world.Agent, _ *world.Snapshot) []*world.Agent {
		return []*world.Agent{caster}
	})
}

// All selects every agent except the root.
func All() world.Selector {
	return world.SelectorFunc(func(_ *world.Agent, snap *world.Snapshot) []*world.Agent {
		return filter(snap, func(a *world.Agent) bool { return a != snap.Root() })
	})
}

// Children selects the caster's direct children.
func Children() world.Selector {
	return world.SelectorFunc(func(caster *world.Agent, _ *world.Snapshot) []*world.Agent {
		return caster.Children()
	})
}

// Siblings selects the other children of the caster's parent.
func Siblings() world.Selector {
	return world.SelectorFunc(func(caster *world.Agent, _ *world.Snapshot) []*world.Agent {
		p := caster.Parent()
		if p == nil {
			return nil
		}
		var out []*world.Agent
		for _, c := range p.Children() {
			if c != caster {
				out = append(out, c)
			}
		}
		return out
	})
}

// Parent selects the caster's parent, if any.
func Parent() world.Selector {
	return world.SelectorFunc(func(caster *world.Agent, _ *world.Snapshot) []*world.Agent {
		if p := caster.Parent(); p != nil {
			return []*world.Agent{p}
		}
		return nil
	})
}

// WithTrait selects every non-root agent carrying the named trait.
func WithTrait(name string) world.Selector {
	return world.SelectorFunc(func(_ *world.Agent, snap *world.Snapshot) []*world.Agent {
		return filter(snap, func(a *world.Agent) bool { return a != snap.Root() && a.HasTrait(name) })
	})
}

// WithinRange selects other agents whose numeric x/y traits lie within r of
// the caster's. A caster without a position selects nothing.
func WithinRange(r float64) world.Selector {
	return WithinRangeOf(r, "x", "y")
}

// WithinRangeOf is WithinRange over custom coordinate traits.
func WithinRangeOf(r float64, xTrait, yTrait string) world.Selector {
	return world.SelectorFunc(func(caster *world.Agent, snap *world.Snapshot) []*world.Agent {
		cx, cy, ok := position(caster, xTrait, yTrait)
		if !ok {
			return nil
		}
		return filter(snap, func(a *world.Agent) bool {
			if a == caster {
				return false
			}
			x, y, ok := position(a, xTrait, yTrait)
			return ok && math.Hypot(x-cx, y-cy) <= r
		})
	})
}

// Compile turns selector data into a Selector. An empty type means self.
func Compile(s types.Selector) (world.Selector, error) {
	switch s.Type {
	case "", "self":
		return Self(), nil
	case "all":
		return All(), nil
	case "children":
		return Children(), nil
	case "siblings":
		return Siblings(), nil
	case "parent":
		return Parent(), nil
	case "with_trait":
		name, _ := s.Params["trait"].(string)
		if name == "" {
			return nil, fmt.Errorf("with_trait needs a trait name")
		}
		return WithTrait(name), nil
	case "within_range":
		r, ok := conditions.ToFloat(s.Params["range"])
		if !ok || r < 0 {
			return nil, fmt.Errorf("within_range needs a non-negative range, got %v", s.Params["range"])
		}
		return WithinRange(r), nil
	default:
		return nil, fmt.Errorf("unknown selector type %q", s.Type)
	}
}

func filter(snap *world.Snapshot, keep func(*world.Agent) bool) []*world.Agent {
	var out []*world.Agent
	for a := range snap.Agents() {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func position(a *world.Agent, xTrait, yTrait string) (float64, float64, bool) {
	xv, ok := a.LookupTrait(xTrait)
	if !ok {
		return 0, 0, false
	}
	yv, ok := a.LookupTrait(yTrait)
	if !ok {
		return 0, 0, false
	}
	x, okx := xv.AsNumber()
	y, oky := yv.AsNumber()
	return x, y, okx && oky
}
