package loader

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/builder"
	"github.com/nathoo/agentsim/logging"
	"github.com/nathoo/agentsim/types"
)

func writeLua(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func traitNames(ad types.AgentDef) []string {
	var out []string
	for _, td := range ad.Traits {
		out = append(out, td.Name)
	}
	return out
}

func TestLoad_DogsScenario(t *testing.T) {
	def, err := Load(filepath.Join("..", "scenarios", "dogs.lua"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if def.Title != "Dog and Apple" {
		t.Errorf("Title = %q, want %q", def.Title, "Dog and Apple")
	}
	if def.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", def.Ticks)
	}
	if len(def.Agents) != 2 || def.Agents[0].Name != "dog" || def.Agents[1].Name != "apple" {
		t.Fatalf("top-level agents = %+v, want dog and apple", def.Agents)
	}

	dog := def.Agents[0]
	if got, want := traitNames(dog), []string{"breed", "calories", "collar", "eat"}; !slices.Equal(got, want) {
		t.Errorf("dog traits = %v, want %v", got, want)
	}
	if dog.Traits[2].Agent == nil || dog.Traits[2].Agent.Name != "collar" {
		t.Errorf("collar trait = %+v, want nested agent", dog.Traits[2])
	}

	eat := dog.Traits[3].Ability
	if eat == nil {
		t.Fatal("eat is not an ability")
	}
	if eat.Targets.Type != "siblings" {
		t.Errorf("Targets = %q, want siblings", eat.Targets.Type)
	}
	if len(eat.Conditions) != 1 || eat.Conditions[0].Type != "has_trait" || eat.Conditions[0].Params["trait"] != "edible" {
		t.Errorf("Conditions = %+v", eat.Conditions)
	}
	if len(eat.Effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(eat.Effects))
	}
	adj := eat.Effects[0]
	if adj.Type != "adjust" || adj.Params["who"] != "caster" || adj.Params["from_who"] != "target" || adj.Params["from_trait"] != "calories" {
		t.Errorf("adjust params = %+v", adj.Params)
	}
	if _, ok := adj.Params["amount"]; ok {
		t.Error("From marker should not be kept as amount")
	}
	if eat.Effects[1].Type != "remove" {
		t.Errorf("second effect = %q, want remove", eat.Effects[1].Type)
	}

	apple := def.Agents[1]
	if len(apple.Children) != 1 || apple.Children[0].Name != "worm" {
		t.Errorf("apple children = %+v, want worm", apple.Children)
	}
	if apple.Traits[0].Value != 10.0 {
		t.Errorf("apple calories = %v (%T), want float64 10", apple.Traits[0].Value, apple.Traits[0].Value)
	}
}

func TestLoad_DogsScenarioRuns(t *testing.T) {
	def, err := Load(filepath.Join("..", "scenarios", "dogs.lua"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w, err := builder.Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	c := engine.New(w, engine.WithLogger(logging.Discard()))
	if _, err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	snap := w.Snapshot()
	if snap.Count("apple") != 0 || snap.Count("worm") != 0 {
		t.Error("apple survived the dog")
	}
	dog := snap.Root().Children()[0]
	if n, _ := dog.Number("calories"); n != 10 {
		t.Errorf("dog calories = %v, want 10", n)
	}
}

func TestLoad_RabbitsScenario(t *testing.T) {
	def, err := Load(filepath.Join("..", "scenarios", "rabbits.lua"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(def.Agents) != 1 || def.Agents[0].Name != "meadow" {
		t.Fatalf("agents = %+v, want meadow", def.Agents)
	}
	rabbit := def.Agents[0].Children[0]
	var spawn types.Effect
	for _, td := range rabbit.Traits {
		if td.Name == "breed" {
			spawn = td.Ability.Effects[1]
		}
	}
	if spawn.Type != "spawn" || spawn.Params["where"] != "beside" {
		t.Fatalf("spawn = %+v", spawn)
	}
	traits, ok := spawn.Params["traits"].(map[string]any)
	if !ok || traits["food"] != 3.0 {
		t.Errorf("spawn traits = %#v", spawn.Params["traits"])
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeLua(t, dir, "b_agents.lua", `Agent "late" { order = 2 }`)
	writeLua(t, dir, "a_agents.lua", `Agent "early" { order = 1 }`)
	writeLua(t, dir, "scenario.lua", `Scenario { title = "Dir" }`)
	writeLua(t, dir, "notes.txt", `not lua`)

	def, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(def.Agents) != 2 || def.Agents[0].Name != "early" || def.Agents[1].Name != "late" {
		t.Errorf("agents = %+v, want early then late", def.Agents)
	}
}

func TestLoad_Conditions(t *testing.T) {
	path := writeLua(t, t.TempDir(), "s.lua", `
Scenario { title = "Conditions" }
Agent "a" {
    act = Ability {
        targets = WithinRange(3),
        when = {
            Not(HasTrait("asleep", "caster")),
            AnyOf(NameIs("b"), TraitGt("size", 2)),
        },
        effects = { Set("seen", true) },
    },
}
`)
	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ab := def.Agents[0].Traits[0].Ability
	if ab.Targets.Type != "within_range" || ab.Targets.Params["range"] != 3.0 {
		t.Errorf("Targets = %+v", ab.Targets)
	}
	not := ab.Conditions[0]
	if not.Type != "not" || len(not.Inner) != 1 || not.Inner[0].Params["who"] != "caster" {
		t.Errorf("not = %+v", not)
	}
	anyOf := ab.Conditions[1]
	if anyOf.Type != "any" || len(anyOf.Inner) != 2 || anyOf.Inner[1].Params["value"] != 2.0 {
		t.Errorf("any = %+v", anyOf)
	}
	if _, err := builder.Build(def); err != nil {
		t.Errorf("Build failed: %v", err)
	}
}

func TestLoad_Sandbox(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"os", `os.execute("true")`},
		{"io", `io.open("/etc/passwd")`},
		{"dofile", `dofile("x.lua")`},
		{"math.random", `local n = math.random(1, 6)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLua(t, t.TempDir(), "s.lua", `Scenario { title = "x" }`+"\n"+tt.src)
			if _, err := Load(path); err == nil {
				t.Error("expected sandbox error")
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"no scenario", `Agent "a" {}`, "no Scenario{}"},
		{"syntax", `Scenario {`, "executing"},
		{"plain table trait", `Scenario { title = "x" } Agent "a" { bag = { 1, 2 } }`, "Agent or Ability"},
		{"unknown effect", `Scenario { title = "x" } Agent "a" { act = Ability { effects = { { type = "explode" } } } }`, "unknown effect type"},
		{"missing title", `Scenario {} Agent "a" {}`, "title is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLua(t, t.TempDir(), "s.lua", tt.src)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ValidationErrorType(t *testing.T) {
	path := writeLua(t, t.TempDir(), "s.lua", `Scenario {}`)
	_, err := Load(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestLoad_MissingPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.lua")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for directory without .lua files")
	}
}
