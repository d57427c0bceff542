// Package builder turns a declarative ScenarioDef into an unsealed world.
package builder

import (
	"fmt"

	"github.com/nathoo/agentsim/engine/conditions"
	"github.com/nathoo/agentsim/engine/effects"
	"github.com/nathoo/agentsim/engine/selectors"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Build creates a world whose root holds the scenario's top-level agents.
func Build(def *types.ScenarioDef) (*world.World, error) {
	w := world.New()
	for _, ad := range def.Agents {
		a, err := buildAgent(w, ad)
		if err != nil {
			return nil, err
		}
		if err := w.Root().AddChild(a); err != nil {
			return nil, fmt.Errorf("placing agent %s: %w", ad.Name, err)
		}
	}
	return w, nil
}

func buildAgent(w *world.World, def types.AgentDef) (*world.Agent, error) {
	a := w.NewAgent(def.Name)
	for _, td := range def.Traits {
		v, err := traitValue(w, td)
		if err != nil {
			return nil, fmt.Errorf("agent %s trait %s: %w", def.Name, td.Name, err)
		}
		if err := a.SetTrait(td.Name, v); err != nil {
			return nil, fmt.Errorf("agent %s trait %s: %w", def.Name, td.Name, err)
		}
	}
	for _, cd := range def.Children {
		c, err := buildAgent(w, cd)
		if err != nil {
			return nil, err
		}
		if err := a.AddChild(c); err != nil {
			return nil, fmt.Errorf("agent %s child %s: %w", def.Name, cd.Name, err)
		}
	}
	return a, nil
}

func traitValue(w *world.World, td types.TraitDef) (world.Value, error) {
	switch {
	case td.Ability != nil:
		ab, err := Ability(td.Ability)
		if err != nil {
			return world.Value{}, err
		}
		return world.AbilityRef(ab), nil
	case td.Agent != nil:
		child, err := buildAgent(w, *td.Agent)
		if err != nil {
			return world.Value{}, err
		}
		return world.AgentRef(child), nil
	default:
		return world.FromAny(td.Value)
	}
}

// Ability compiles an ability definition.
func Ability(def *types.AbilityDef) (*world.Ability, error) {
	sel, err := selectors.Compile(def.Targets)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	cond, err := conditions.Compile(def.Conditions)
	if err != nil {
		return nil, fmt.Errorf("when: %w", err)
	}
	eff, err := effects.Compile(def.Effects)
	if err != nil {
		return nil, fmt.Errorf("effects: %w", err)
	}
	return &world.Ability{Targets: sel, Condition: cond, Effect: eff}, nil
}
