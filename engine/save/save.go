// Package save writes replay records and verifies them by deterministic
// replay.
//
// A record does not serialize the world. It names how to reproduce a run
// (scenario, seed, policy, tick count) and the frame and digest that the
// run produced. Verify rebuilds the scenario, replays the ticks and reports
// whether the digest matches.
package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/engine/policy"
	"github.com/nathoo/agentsim/engine/world"
)

// Version is the record format version.
const Version = 1

// ErrDigestMismatch is returned when a replay does not reproduce the
// recorded generation.
var ErrDigestMismatch = errors.New("replay diverged from record")

// Record is the JSON-serializable replay record.
type Record struct {
	Version     int           `json:"version"`
	Scenario    string        `json:"scenario"`
	Seed        int64         `json:"seed"`
	Policy      string        `json:"policy"`
	Tick        uint64        `json:"tick"`
	RNGPosition int64         `json:"rng_position"`
	Digest      string        `json:"digest"`
	Frame       *export.Frame `json:"frame"`
}

// Run identifies what a clock is running.
type Run struct {
	Scenario string
	Seed     int64
	Policy   string
	RNG      *engine.RNG // the policy's RNG; nil for deterministic policies
}

// Take records the clock's last committed generation.
func Take(clock *engine.Clock, run Run) (*Record, error) {
	snap, err := clock.Snapshot()
	if err != nil {
		return nil, err
	}
	frame := export.FromSnapshot(snap)
	rec := &Record{
		Version:  Version,
		Scenario: run.Scenario,
		Seed:     run.Seed,
		Policy:   run.Policy,
		Tick:     clock.TickCount(),
		Digest:   frame.Digest,
		Frame:    &frame,
	}
	if run.RNG != nil {
		rec.RNGPosition = run.RNG.Position()
	}
	return rec, nil
}

// Marshal serializes a record to indented JSON.
func Marshal(rec *Record) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

// Load deserializes a record.
func Load(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.Version != Version {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	if rec.Scenario == "" {
		return nil, errors.New("record names no scenario")
	}
	if rec.Digest == "" {
		return nil, errors.New("record has no digest")
	}
	return &rec, nil
}

// Replayed is a clock replayed up to a record's tick.
type Replayed struct {
	Clock *engine.Clock
	RNG   *engine.RNG
}

// Verify builds a fresh world, replays rec.Tick ticks under the record's
// seed and policy, and checks the result against rec.Digest. opts are
// applied after the policy.
func Verify(ctx context.Context, rec *Record, build func() (*world.World, error), opts ...engine.Option) (*Replayed, error) {
	w, err := build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", rec.Scenario, err)
	}
	rng := engine.NewRNG(rec.Seed)
	p, err := policy.FromName(rec.Policy, rng)
	if err != nil {
		return nil, err
	}
	clock := engine.New(w, append([]engine.Option{engine.WithPolicy(p)}, opts...)...)

	if rec.Tick > 0 {
		ran, err := clock.Run(ctx, int(rec.Tick))
		if err != nil {
			return nil, fmt.Errorf("replaying tick %d: %w", clock.TickCount()+1, err)
		}
		if uint64(ran) != rec.Tick {
			return nil, fmt.Errorf("%w: replay stopped after %d of %d ticks", ErrDigestMismatch, ran, rec.Tick)
		}
	}

	snap, err := clock.Snapshot()
	if err != nil {
		return nil, err
	}
	if got := snap.Digest(); got != rec.Digest {
		return nil, fmt.Errorf("%w: tick %d digest %s, want %s", ErrDigestMismatch, rec.Tick, got, rec.Digest)
	}
	if rec.RNGPosition != 0 && rng.Position() != rec.RNGPosition {
		return nil, fmt.Errorf("%w: rng position %d, want %d", ErrDigestMismatch, rng.Position(), rec.RNGPosition)
	}
	return &Replayed{Clock: clock, RNG: rng}, nil
}
