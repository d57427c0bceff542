package loader

import (
	"fmt"
	"strings"

	"github.com/nathoo/agentsim/engine/conditions"
	"github.com/nathoo/agentsim/engine/effects"
	"github.com/nathoo/agentsim/engine/selectors"
	"github.com/nathoo/agentsim/types"
)

// ValidationError collects all validation errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

var whoValues = map[string]bool{"": true, "caster": true, "target": true}

// Validate checks a ScenarioDef for unknown condition, effect and selector
// types and for bad parameter values. It returns non-fatal warnings and,
// if any check failed, a *ValidationError.
func Validate(def *types.ScenarioDef) ([]string, error) {
	v := &validator{}

	if def.Title == "" {
		v.errorf("Scenario.title is required")
	}
	if def.Ticks < 0 {
		v.errorf("Scenario.ticks must be non-negative, got %d", def.Ticks)
	}
	if len(def.Agents) == 0 {
		v.warnf("scenario %q places no agents", def.Title)
	}
	for _, ad := range def.Agents {
		v.agent(ad.Name, ad)
	}

	if len(v.errors) > 0 {
		return v.warnings, &ValidationError{Errors: v.errors}
	}
	return v.warnings, nil
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) agent(path string, ad types.AgentDef) {
	if ad.Name == "" {
		v.errorf("agent at %s has an empty name", path)
	}
	for _, td := range ad.Traits {
		where := path + "." + td.Name
		switch {
		case td.Ability != nil:
			v.ability(where, td.Ability)
		case td.Agent != nil:
			v.agent(where, *td.Agent)
		}
	}
	for _, cd := range ad.Children {
		v.agent(path+"/"+cd.Name, cd)
	}
}

func (v *validator) ability(where string, ab *types.AbilityDef) {
	if !selectors.Types[ab.Targets.Type] && ab.Targets.Type != "" {
		v.errorf("ability %s: unknown selector type %q", where, ab.Targets.Type)
	}
	v.conditions(where, ab.Conditions)
	if len(ab.Effects) == 0 {
		v.warnf("ability %s has no effects", where)
	}
	for _, eff := range ab.Effects {
		if !effects.Types[eff.Type] {
			v.errorf("ability %s: unknown effect type %q", where, eff.Type)
			continue
		}
		v.who(where, eff.Type, eff.Params, "who", "to", "from", "from_who")
		if eff.Type == "spawn" {
			if name, _ := eff.Params["name"].(string); name == "" {
				v.errorf("ability %s: spawn needs a name", where)
			}
		}
	}
}

func (v *validator) conditions(where string, conds []types.Condition) {
	for _, c := range conds {
		if !conditions.Types[c.Type] {
			v.errorf("ability %s: unknown condition type %q", where, c.Type)
			continue
		}
		v.who(where, c.Type, c.Params, "who")
		switch c.Type {
		case "not":
			if len(c.Inner) != 1 {
				v.errorf("ability %s: not takes exactly one condition", where)
			}
		case "any":
			if len(c.Inner) == 0 {
				v.errorf("ability %s: any needs at least one condition", where)
			}
		}
		v.conditions(where, c.Inner)
	}
}

func (v *validator) who(where, typ string, params map[string]any, keys ...string) {
	for _, k := range keys {
		raw, ok := params[k]
		if !ok {
			continue
		}
		s, _ := raw.(string)
		if !whoValues[s] {
			v.errorf("ability %s: %s %s must be \"caster\" or \"target\", got %v", where, typ, k, raw)
		}
	}
}
