package loader

import (
	"strings"
	"testing"

	"github.com/nathoo/agentsim/types"
)

func validDef() *types.ScenarioDef {
	return &types.ScenarioDef{
		Title: "Test",
		Agents: []types.AgentDef{{
			Name: "a",
			Traits: []types.TraitDef{{Name: "act", Ability: &types.AbilityDef{
				Effects: []types.Effect{{Type: "remove"}},
			}}},
		}},
	}
}

func TestValidate_Valid(t *testing.T) {
	warnings, err := Validate(validDef())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.ScenarioDef)
		want   string
	}{
		{"empty title", func(d *types.ScenarioDef) { d.Title = "" }, "title"},
		{"negative ticks", func(d *types.ScenarioDef) { d.Ticks = -1 }, "ticks"},
		{"empty agent name", func(d *types.ScenarioDef) { d.Agents[0].Children = []types.AgentDef{{}} }, "empty name"},
		{"unknown selector", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Targets = types.Selector{Type: "nearest"}
		}, "unknown selector"},
		{"unknown condition", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Conditions = []types.Condition{{Type: "is_hungry"}}
		}, "unknown condition"},
		{"nested unknown condition", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Conditions = []types.Condition{{Type: "not", Inner: []types.Condition{{Type: "bogus"}}}}
		}, "bogus"},
		{"empty any", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Conditions = []types.Condition{{Type: "any"}}
		}, "at least one"},
		{"bad who", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Effects = []types.Effect{{Type: "remove", Params: map[string]any{"who": "parent"}}}
		}, "must be"},
		{"spawn without name", func(d *types.ScenarioDef) {
			d.Agents[0].Traits[0].Ability.Effects = []types.Effect{{Type: "spawn"}}
		}, "spawn needs a name"},
		{"ability on nested agent", func(d *types.ScenarioDef) {
			d.Agents[0].Traits = append(d.Agents[0].Traits, types.TraitDef{Name: "pet", Agent: &types.AgentDef{
				Name:   "cat",
				Traits: []types.TraitDef{{Name: "x", Ability: &types.AbilityDef{Effects: []types.Effect{{Type: "teleport"}}}}},
			}})
		}, "a.pet.x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.modify(def)
			_, err := Validate(def)
			if err == nil {
				t.Fatal("expected validation error")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			assertContains(t, ve.Errors, tt.want)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	def := validDef()
	def.Agents[0].Traits[0].Ability.Effects = nil
	warnings, err := Validate(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, warnings, "no effects")

	warnings, _ = Validate(&types.ScenarioDef{Title: "Empty"})
	assertContains(t, warnings, "no agents")
}

func assertContains(t *testing.T, msgs []string, substr string) {
	t.Helper()
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return
		}
	}
	t.Errorf("expected a message containing %q, got %v", substr, msgs)
}
