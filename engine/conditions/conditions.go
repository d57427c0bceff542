// Package conditions compiles declarative condition data into ability
// conditions that read the committed snapshot.
package conditions

import (
	"errors"
	"fmt"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Types lists the condition types Compile understands.
var Types = map[string]bool{
	"trait_is":    true,
	"trait_gt":    true,
	"trait_lt":    true,
	"trait_ge":    true,
	"trait_le":    true,
	"has_trait":   true,
	"lacks_trait": true,
	"name_is":     true,
	"same_agent":  true,
	"not":         true,
	"any":         true,
}

// Compile builds a condition that holds when every element of conds holds
// (AND logic). An empty list compiles to nil, which always holds.
func Compile(conds []types.Condition) (world.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	preds := make([]world.Condition, 0, len(conds))
	for i, c := range conds {
		p, err := compileOne(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d (%s): %w", i+1, c.Type, err)
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return func(caster, target *world.Agent, snap *world.Snapshot) (bool, error) {
		for _, p := range preds {
			ok, err := p(caster, target, snap)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, nil
}

func compileOne(c types.Condition) (world.Condition, error) {
	switch c.Type {
	case "trait_is":
		who, trait, err := subjectTrait(c.Params)
		if err != nil {
			return nil, err
		}
		want, err := world.FromAny(c.Params["value"])
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, _ *world.Snapshot) (bool, error) {
			v, ok := Subject(who, caster, target).LookupTrait(trait)
			return ok && v.Equal(want), nil
		}, nil

	case "trait_gt", "trait_lt", "trait_ge", "trait_le":
		who, trait, err := subjectTrait(c.Params)
		if err != nil {
			return nil, err
		}
		bound, ok := ToFloat(c.Params["value"])
		if !ok {
			return nil, fmt.Errorf("value must be a number, got %T", c.Params["value"])
		}
		cmp := comparators[c.Type]
		return func(caster, target *world.Agent, _ *world.Snapshot) (bool, error) {
			n, err := Subject(who, caster, target).Number(trait)
			if errors.Is(err, world.ErrKeyNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return cmp(n, bound), nil
		}, nil

	case "has_trait", "lacks_trait":
		who, trait, err := subjectTrait(c.Params)
		if err != nil {
			return nil, err
		}
		want := c.Type == "has_trait"
		return func(caster, target *world.Agent, _ *world.Snapshot) (bool, error) {
			return Subject(who, caster, target).HasTrait(trait) == want, nil
		}, nil

	case "name_is":
		who, err := Who(c.Params)
		if err != nil {
			return nil, err
		}
		name, _ := c.Params["name"].(string)
		return func(caster, target *world.Agent, _ *world.Snapshot) (bool, error) {
			return Subject(who, caster, target).Name() == name, nil
		}, nil

	case "same_agent":
		return func(caster, target *world.Agent, _ *world.Snapshot) (bool, error) {
			return caster.ID() == target.ID(), nil
		}, nil

	case "not":
		if len(c.Inner) != 1 {
			return nil, fmt.Errorf("not takes exactly one condition, got %d", len(c.Inner))
		}
		inner, err := compileOne(c.Inner[0])
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, snap *world.Snapshot) (bool, error) {
			ok, err := inner(caster, target, snap)
			return !ok && err == nil, err
		}, nil

	case "any":
		if len(c.Inner) == 0 {
			return nil, errors.New("any needs at least one condition")
		}
		inner := make([]world.Condition, 0, len(c.Inner))
		for _, ic := range c.Inner {
			p, err := compileOne(ic)
			if err != nil {
				return nil, err
			}
			inner = append(inner, p)
		}
		return func(caster, target *world.Agent, snap *world.Snapshot) (bool, error) {
			for _, p := range inner {
				ok, err := p(caster, target, snap)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

var comparators = map[string]func(a, b float64) bool{
	"trait_gt": func(a, b float64) bool { return a > b },
	"trait_lt": func(a, b float64) bool { return a < b },
	"trait_ge": func(a, b float64) bool { return a >= b },
	"trait_le": func(a, b float64) bool { return a <= b },
}

// Who reads and checks the "who" parameter. It defaults to "target".
func Who(params map[string]any) (string, error) {
	who, _ := params["who"].(string)
	switch who {
	case "":
		return "target", nil
	case "caster", "target":
		return who, nil
	default:
		return "", fmt.Errorf("who must be \"caster\" or \"target\", got %q", who)
	}
}

// Subject picks the caster or the target.
func Subject(who string, caster, target *world.Agent) *world.Agent {
	if who == "caster" {
		return caster
	}
	return target
}

func subjectTrait(params map[string]any) (string, string, error) {
	who, err := Who(params)
	if err != nil {
		return "", "", err
	}
	trait, _ := params["trait"].(string)
	if trait == "" {
		return "", "", errors.New("missing trait name")
	}
	return who, trait, nil
}

// ToFloat converts an any value to float64, handling ints from Go callers
// and float64 from Lua.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
