// Package effects compiles declarative effect data into ability effects.
// Every effect type records one kind of operation. No tree access happens
// here beyond reading the committed snapshot.
package effects

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/nathoo/agentsim/engine/conditions"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Types lists the effect types Compile understands.
var Types = map[string]bool{
	"remove":   true,
	"set":      true,
	"adjust":   true,
	"unset":    true,
	"spawn":    true,
	"move":     true,
	"transfer": true,
	"stop":     true,
}

// step records one effect. stop ends the effect list early.
type step func(caster, target *world.Agent, rec *world.Recorder) (stop bool, err error)

// Compile builds an effect that runs effs in order. An empty list compiles
// to nil.
func Compile(effs []types.Effect) (world.Effect, error) {
	if len(effs) == 0 {
		return nil, nil
	}
	steps := make([]step, 0, len(effs))
	for i, e := range effs {
		s, err := compileOne(e)
		if err != nil {
			return nil, fmt.Errorf("effect %d (%s): %w", i+1, e.Type, err)
		}
		steps = append(steps, s)
	}
	return func(caster, target *world.Agent, rec *world.Recorder) error {
		for _, s := range steps {
			stop, err := s(caster, target, rec)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	}, nil
}

func compileOne(e types.Effect) (step, error) {
	switch e.Type {
	case "remove":
		who, err := conditions.Who(e.Params)
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			rec.Remove(conditions.Subject(who, caster, target).ID())
			return false, nil
		}, nil

	case "set":
		who, trait, err := subjectTrait(e.Params)
		if err != nil {
			return nil, err
		}
		if src, ok, err := source(e.Params); err != nil {
			return nil, err
		} else if ok {
			return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
				v, err := src.value(caster, target)
				if err != nil {
					return false, err
				}
				if !v.IsPrimitive() {
					return false, fmt.Errorf("cannot copy %s trait %q", v.Kind(), src.trait)
				}
				rec.Set(conditions.Subject(who, caster, target).ID(), trait, v)
				return false, nil
			}, nil
		}
		v, err := world.FromAny(e.Params["value"])
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			rec.Set(conditions.Subject(who, caster, target).ID(), trait, v)
			return false, nil
		}, nil

	case "adjust":
		who, trait, err := subjectTrait(e.Params)
		if err != nil {
			return nil, err
		}
		amount, err := compileAmount(e.Params)
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			n, err := amount(caster, target)
			if err != nil {
				return false, err
			}
			rec.Adjust(conditions.Subject(who, caster, target).ID(), trait, n)
			return false, nil
		}, nil

	case "unset":
		who, trait, err := subjectTrait(e.Params)
		if err != nil {
			return nil, err
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			rec.Unset(conditions.Subject(who, caster, target).ID(), trait)
			return false, nil
		}, nil

	case "spawn":
		return compileSpawn(e.Params)

	case "move":
		who, err := conditions.Who(e.Params)
		if err != nil {
			return nil, err
		}
		to, err := conditions.Who(map[string]any{"who": e.Params["to"]})
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			rec.Move(conditions.Subject(who, caster, target).ID(), conditions.Subject(to, caster, target).ID())
			return false, nil
		}, nil

	case "transfer":
		trait, _ := e.Params["trait"].(string)
		if trait == "" {
			return nil, errors.New("missing trait name")
		}
		from, err := conditions.Who(map[string]any{"who": e.Params["from"]})
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		to, err := conditions.Who(map[string]any{"who": e.Params["to"]})
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		amount := math.Inf(1)
		if v, ok := conditions.ToFloat(e.Params["amount"]); ok {
			if v < 0 {
				return nil, fmt.Errorf("amount must be non-negative, got %v", v)
			}
			amount = v
		}
		return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
			src := conditions.Subject(from, caster, target)
			if _, err := src.Number(trait); err != nil {
				return false, err
			}
			rec.Transfer(src.ID(), conditions.Subject(to, caster, target).ID(), trait, amount)
			return false, nil
		}, nil

	case "stop":
		return func(*world.Agent, *world.Agent, *world.Recorder) (bool, error) {
			return true, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown effect type %q", e.Type)
	}
}

// compileSpawn handles spawn{who, where, name, traits, slot}. The new agent
// goes under the subject ("in", the default) or next to it ("beside"). With a
// slot it is stored as an agent-valued trait of its parent.
func compileSpawn(params map[string]any) (step, error) {
	who, err := conditions.Who(params)
	if err != nil {
		return nil, err
	}
	name, _ := params["name"].(string)
	if name == "" {
		return nil, errors.New("spawn needs a name")
	}
	where, _ := params["where"].(string)
	if where != "" && where != "in" && where != "beside" {
		return nil, fmt.Errorf("where must be \"in\" or \"beside\", got %q", where)
	}
	slot, _ := params["slot"].(string)

	raw, _ := params["traits"].(map[string]any)
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	slices.Sort(names)
	values := make([]world.Value, len(names))
	for i, k := range names {
		v, err := world.FromAny(raw[k])
		if err != nil {
			return nil, fmt.Errorf("trait %q: %w", k, err)
		}
		values[i] = v
	}

	return func(caster, target *world.Agent, rec *world.Recorder) (bool, error) {
		parent := conditions.Subject(who, caster, target)
		if where == "beside" {
			if parent.Parent() == nil {
				return false, fmt.Errorf("agent %d has no parent to spawn beside", parent.ID())
			}
			parent = parent.Parent()
		}
		child := rec.NewAgent(name)
		for i, k := range names {
			if err := child.SetTrait(k, values[i]); err != nil {
				return false, err
			}
		}
		if slot != "" {
			rec.Set(parent.ID(), slot, world.AgentRef(child))
		} else {
			rec.Add(parent.ID(), child)
		}
		return false, nil
	}, nil
}

// traitSource reads a trait of the caster or target at evaluation time.
type traitSource struct {
	who   string
	trait string
}

func (s traitSource) value(caster, target *world.Agent) (world.Value, error) {
	return conditions.Subject(s.who, caster, target).Trait(s.trait)
}

// source parses the optional from_who/from_trait pair.
func source(params map[string]any) (traitSource, bool, error) {
	trait, _ := params["from_trait"].(string)
	if trait == "" {
		return traitSource{}, false, nil
	}
	who, err := conditions.Who(map[string]any{"who": params["from_who"]})
	if err != nil {
		return traitSource{}, false, fmt.Errorf("from_who: %w", err)
	}
	return traitSource{who: who, trait: trait}, true, nil
}

// compileAmount reads either a literal amount or a trait source scaled by
// an optional factor.
func compileAmount(params map[string]any) (func(caster, target *world.Agent) (float64, error), error) {
	src, ok, err := source(params)
	if err != nil {
		return nil, err
	}
	if !ok {
		n, isNum := conditions.ToFloat(params["amount"])
		if !isNum {
			return nil, fmt.Errorf("amount must be a number, got %T", params["amount"])
		}
		return func(*world.Agent, *world.Agent) (float64, error) { return n, nil }, nil
	}
	factor := 1.0
	if f, isNum := conditions.ToFloat(params["factor"]); isNum {
		factor = f
	}
	return func(caster, target *world.Agent) (float64, error) {
		n, err := conditions.Subject(src.who, caster, target).Number(src.trait)
		if err != nil {
			return 0, err
		}
		return n * factor, nil
	}, nil
}

func subjectTrait(params map[string]any) (string, string, error) {
	who, err := conditions.Who(params)
	if err != nil {
		return "", "", err
	}
	trait, _ := params["trait"].(string)
	if trait == "" {
		return "", "", errors.New("missing trait name")
	}
	return who, trait, nil
}
