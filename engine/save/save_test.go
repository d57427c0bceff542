package save

import (
	"context"
	"errors"
	"testing"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/policy"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/logging"
	"github.com/nathoo/agentsim/scenario"
)

func forage(t *testing.T, seed int64) func() (*world.World, error) {
	t.Helper()
	src, err := scenario.Builtin("forage", seed)
	if err != nil {
		t.Fatal(err)
	}
	return src.Build
}

func runForage(t *testing.T, seed int64, ticks int) (*engine.Clock, Run) {
	t.Helper()
	w, err := forage(t, seed)()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rng := engine.NewRNG(seed)
	p, err := policy.FromName("random", rng)
	if err != nil {
		t.Fatal(err)
	}
	clock := engine.New(w, engine.WithPolicy(p), engine.WithLogger(logging.Discard()))
	if _, err := clock.Run(context.Background(), ticks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return clock, Run{Scenario: "forage", Seed: seed, Policy: "random", RNG: rng}
}

func TestTakeAndLoad(t *testing.T) {
	clock, run := runForage(t, 7, 3)
	rec, err := Take(clock, run)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if rec.Tick != 3 || rec.Frame == nil || rec.Frame.Tick != 3 {
		t.Errorf("record tick = %d, frame = %+v", rec.Tick, rec.Frame)
	}
	if rec.RNGPosition == 0 {
		t.Error("random policy should have advanced the RNG")
	}

	data, err := Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Scenario != "forage" || got.Seed != 7 || got.Policy != "random" ||
		got.Tick != 3 || got.Digest != rec.Digest || got.RNGPosition != rec.RNGPosition {
		t.Errorf("Load = %+v, want %+v", got, rec)
	}
	if got.Frame.Agents != rec.Frame.Agents {
		t.Errorf("frame agents = %d, want %d", got.Frame.Agents, rec.Frame.Agents)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"wrong version", `{"version": 9, "scenario": "dogs", "digest": "x"}`},
		{"no scenario", `{"version": 1, "digest": "x"}`},
		{"no digest", `{"version": 1, "scenario": "dogs"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVerify(t *testing.T) {
	clock, run := runForage(t, 11, 5)
	rec, err := Take(clock, run)
	if err != nil {
		t.Fatal(err)
	}

	replayed, err := Verify(context.Background(), rec, forage(t, 11), engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if replayed.Clock.TickCount() != 5 {
		t.Errorf("TickCount = %d, want 5", replayed.Clock.TickCount())
	}
	if replayed.RNG.Position() != run.RNG.Position() {
		t.Errorf("rng position = %d, want %d", replayed.RNG.Position(), run.RNG.Position())
	}

	// Both clocks keep agreeing past the recorded tick.
	if _, err := clock.Tick(); err != nil {
		t.Fatal(err)
	}
	if _, err := replayed.Clock.Tick(); err != nil {
		t.Fatal(err)
	}
	a, _ := clock.Snapshot()
	b, _ := replayed.Clock.Snapshot()
	if a.Digest() != b.Digest() {
		t.Error("replayed clock diverged past the recorded tick")
	}
}

func TestVerify_ZeroTicks(t *testing.T) {
	clock, run := runForage(t, 3, 0)
	rec, err := Take(clock, run)
	if err != nil {
		t.Fatal(err)
	}
	replayed, err := Verify(context.Background(), rec, forage(t, 3), engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if replayed.Clock.TickCount() != 0 {
		t.Errorf("TickCount = %d, want 0", replayed.Clock.TickCount())
	}
}

func TestVerify_Diverged(t *testing.T) {
	clock, run := runForage(t, 5, 2)
	rec, err := Take(clock, run)
	if err != nil {
		t.Fatal(err)
	}
	rec.Digest = "0000"
	_, err = Verify(context.Background(), rec, forage(t, 5), engine.WithLogger(logging.Discard()))
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("err = %v, want ErrDigestMismatch", err)
	}

	// A different seed generates a different field.
	rec, _ = Take(clock, run)
	_, err = Verify(context.Background(), rec, forage(t, 6), engine.WithLogger(logging.Discard()))
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("err = %v, want ErrDigestMismatch for another seed", err)
	}
}

func TestVerify_BadPolicy(t *testing.T) {
	rec := &Record{Version: Version, Scenario: "forage", Policy: "greedy", Digest: "x"}
	if _, err := Verify(context.Background(), rec, forage(t, 1), engine.WithLogger(logging.Discard())); err == nil {
		t.Error("expected error for unknown policy")
	}
}
