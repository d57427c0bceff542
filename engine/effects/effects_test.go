package effects

import (
	"errors"
	"testing"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

type fixture struct {
	w      *world.World
	dog    *world.Agent
	apple  *world.Agent
	kennel *world.Agent
}

func testSetup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{w: world.New()}
	f.dog = f.w.NewAgent("dog")
	f.apple = f.w.NewAgent("apple")
	f.kennel = f.w.NewAgent("kennel")
	for _, err := range []error{
		f.dog.SetTrait("calories", world.Number(2)),
		f.apple.SetTrait("calories", world.Number(10)),
		f.apple.SetTrait("color", world.String("red")),
		f.w.Root().AddChild(f.dog),
		f.w.Root().AddChild(f.apple),
		f.w.Root().AddChild(f.kennel),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	return f
}

// run compiles effs, applies them for (caster, target) and commits.
func (f *fixture) run(t *testing.T, caster, target *world.Agent, effs ...types.Effect) *world.CommitResult {
	t.Helper()
	eff, err := Compile(effs)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	q := world.NewQueue(f.w)
	rec := q.Begin(caster.ID(), target.ID(), "test")
	if err := eff(caster, target, rec); err != nil {
		t.Fatalf("effect failed: %v", err)
	}
	rec.Close()
	res, err := f.w.Commit(q, 1)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return res
}

func eff(typ string, params map[string]any) types.Effect {
	return types.Effect{Type: typ, Params: params}
}

func number(t *testing.T, snap *world.Snapshot, id types.AgentID, trait string) float64 {
	t.Helper()
	a, ok := snap.Find(id)
	if !ok {
		t.Fatalf("agent %d missing", id)
	}
	n, err := a.Number(trait)
	if err != nil {
		t.Fatalf("Number(%q): %v", trait, err)
	}
	return n
}

func TestEat(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.apple,
		eff("adjust", map[string]any{"who": "caster", "trait": "calories", "from_who": "target", "from_trait": "calories"}),
		eff("remove", map[string]any{"who": "target"}),
	)
	if got := number(t, res.Snapshot, f.dog.ID(), "calories"); got != 12 {
		t.Errorf("calories = %v, want 12", got)
	}
	if _, ok := res.Snapshot.Find(f.apple.ID()); ok {
		t.Error("apple not removed")
	}
}

func TestSetAndUnset(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.apple,
		eff("set", map[string]any{"who": "caster", "trait": "mood", "value": "happy"}),
		eff("set", map[string]any{"who": "caster", "trait": "favorite", "from_who": "target", "from_trait": "color"}),
		eff("unset", map[string]any{"trait": "color"}),
	)
	dog, _ := res.Snapshot.Find(f.dog.ID())
	if v, _ := dog.LookupTrait("mood"); !v.Equal(world.String("happy")) {
		t.Errorf("mood = %v", v)
	}
	if v, _ := dog.LookupTrait("favorite"); !v.Equal(world.String("red")) {
		t.Errorf("favorite = %v", v)
	}
	apple, _ := res.Snapshot.Find(f.apple.ID())
	if apple.HasTrait("color") {
		t.Error("color not unset")
	}
}

func TestTransferClampsToAvailable(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.apple,
		eff("transfer", map[string]any{"trait": "calories", "amount": 25.0, "from": "target", "to": "caster"}),
	)
	if got := number(t, res.Snapshot, f.apple.ID(), "calories"); got != 0 {
		t.Errorf("apple calories = %v, want 0", got)
	}
	if got := number(t, res.Snapshot, f.dog.ID(), "calories"); got != 12 {
		t.Errorf("dog calories = %v, want 12", got)
	}
}

func TestTransferSharedSourceNeverOverdrawn(t *testing.T) {
	f := testSetup(t)
	share, err := Compile([]types.Effect{
		eff("transfer", map[string]any{"trait": "calories", "amount": 8.0, "from": "target", "to": "caster"}),
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	q := world.NewQueue(f.w)
	for _, caster := range []*world.Agent{f.dog, f.kennel} {
		rec := q.Begin(caster.ID(), f.apple.ID(), "share")
		if err := share(caster, f.apple, rec); err != nil {
			t.Fatalf("effect failed: %v", err)
		}
		rec.Close()
	}
	res, err := f.w.Commit(q, 1)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got := number(t, res.Snapshot, f.apple.ID(), "calories"); got != 0 {
		t.Errorf("apple calories = %v, want 0", got)
	}
	if got := number(t, res.Snapshot, f.dog.ID(), "calories"); got != 10 {
		t.Errorf("dog calories = %v, want 10", got)
	}
	if got := number(t, res.Snapshot, f.kennel.ID(), "calories"); got != 2 {
		t.Errorf("kennel calories = %v, want 2", got)
	}
	if res.Ops[1].Reason == "" {
		t.Error("second transfer not reported as capped")
	}
}

func TestSpawn(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.dog,
		eff("spawn", map[string]any{"who": "caster", "where": "beside", "name": "puppy", "traits": map[string]any{"calories": 1.0, "breed": "mutt"}}),
		eff("spawn", map[string]any{"who": "caster", "name": "flea", "slot": "passenger"}),
	)
	if got := res.Snapshot.Count("puppy"); got != 1 {
		t.Fatalf("puppies = %d, want 1", got)
	}
	var puppy *world.Agent
	for a := range res.Snapshot.Agents() {
		if a.Name() == "puppy" {
			puppy = a
		}
	}
	if puppy.Parent() != res.Snapshot.Root() {
		t.Errorf("puppy parent = %v, want root", puppy.Parent())
	}
	if got := puppy.TraitNames(); len(got) != 2 || got[0] != "breed" {
		t.Errorf("puppy traits = %v, want sorted [breed calories]", got)
	}
	dog, _ := res.Snapshot.Find(f.dog.ID())
	v, _ := dog.LookupTrait("passenger")
	flea, ok := v.AsAgent()
	if !ok || flea.Name() != "flea" || flea.Parent() != dog {
		t.Errorf("passenger = %v, want flea child of dog", v)
	}
}

func TestMove(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.kennel,
		eff("move", map[string]any{"who": "caster", "to": "target"}),
	)
	dog, _ := res.Snapshot.Find(f.dog.ID())
	if dog.Parent().ID() != f.kennel.ID() {
		t.Errorf("dog parent = %v, want kennel", dog.Parent())
	}
}

func TestStop(t *testing.T) {
	f := testSetup(t)
	res := f.run(t, f.dog, f.apple,
		eff("adjust", map[string]any{"who": "caster", "trait": "calories", "amount": 1.0}),
		eff("stop", nil),
		eff("remove", map[string]any{}),
	)
	if _, ok := res.Snapshot.Find(f.apple.ID()); !ok {
		t.Error("effect after stop was applied")
	}
	if got := number(t, res.Snapshot, f.dog.ID(), "calories"); got != 3 {
		t.Errorf("calories = %v, want 3", got)
	}
}

func TestMissingSourceTraitFails(t *testing.T) {
	f := testSetup(t)
	e, err := Compile([]types.Effect{
		eff("adjust", map[string]any{"who": "caster", "trait": "calories", "from_trait": "sugar"}),
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	q := world.NewQueue(f.w)
	rec := q.Begin(f.dog.ID(), f.apple.ID(), "test")
	if err := e(f.dog, f.apple, rec); !errors.Is(err, world.ErrKeyNotFound) {
		t.Errorf("effect error = %v, want ErrKeyNotFound", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		e    types.Effect
	}{
		{"unknown type", eff("explode", nil)},
		{"bad who", eff("remove", map[string]any{"who": "bystander"})},
		{"set without trait", eff("set", map[string]any{"value": 1.0})},
		{"adjust without amount", eff("adjust", map[string]any{"trait": "x"})},
		{"spawn without name", eff("spawn", map[string]any{})},
		{"spawn bad where", eff("spawn", map[string]any{"name": "x", "where": "above"})},
		{"transfer without trait", eff("transfer", map[string]any{})},
		{"move bad to", eff("move", map[string]any{"to": "nowhere"})},
	}
	for _, tt := range tests {
		if _, err := Compile([]types.Effect{tt.e}); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
