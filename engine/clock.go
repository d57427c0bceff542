// Package engine drives the simulation: each tick evaluates every ability
// against the committed snapshot, records effects into a mutation queue and
// commits the queue as the next generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/logging"
	"github.com/nathoo/agentsim/types"
)

var (
	// ErrSimulationHalted is returned by Tick and Run once the clock has
	// halted. The halt reason is wrapped alongside it.
	ErrSimulationHalted = errors.New("simulation halted")

	// ErrTickBudgetExceeded halts a tick that ran past its time budget.
	ErrTickBudgetExceeded = errors.New("tick budget exceeded")

	// ErrHaltRequested is the halt reason used when Halt is called with nil.
	ErrHaltRequested = errors.New("halt requested")

	// ErrTickInProgress is returned when Tick is called re-entrantly.
	ErrTickInProgress = errors.New("tick already in progress")
)

// State is the clock's lifecycle state.
type State int

const (
	Idle State = iota
	Evaluating
	Committing
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Committing:
		return "committing"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is notified after every committed tick, outside the tick's
// critical section. Aborted ticks are never reported.
type Observer interface {
	OnTickCommitted(tick uint64, snap *world.Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(tick uint64, snap *world.Snapshot)

func (f ObserverFunc) OnTickCommitted(tick uint64, snap *world.Snapshot) { f(tick, snap) }

// ReportObserver is implemented by observers that also want the tick report.
// OnTickReport is called after OnTickCommitted.
type ReportObserver interface {
	OnTickReport(report types.TickReport)
}

// Policy chooses which of a caster's abilities run this tick.
type Policy interface {
	Choose(caster *world.Agent, available []world.Bound, snap *world.Snapshot) []world.Bound
}

// EvaluateAll runs every ability of every caster.
type EvaluateAll struct{}

func (EvaluateAll) Choose(_ *world.Agent, available []world.Bound, _ *world.Snapshot) []world.Bound {
	return available
}

// Option configures a Clock.
type Option func(*Clock)

func WithPolicy(p Policy) Option { return func(c *Clock) { c.policy = p } }

func WithObserver(o Observer) Option {
	return func(c *Clock) { c.observers = append(c.observers, &slot{o}) }
}

func WithLogger(l *slog.Logger) Option { return func(c *Clock) { c.logger = l } }

// WithTickBudget halts the simulation when a tick's evaluation phase runs
// longer than d. Zero disables the budget.
func WithTickBudget(d time.Duration) Option { return func(c *Clock) { c.budget = d } }

// WithInterval paces Run so ticks start at most once per d.
func WithInterval(d time.Duration) Option { return func(c *Clock) { c.interval = d } }

// WithEndCondition stops Run after the first tick whose snapshot satisfies f.
func WithEndCondition(f func(*world.Snapshot) bool) Option {
	return func(c *Clock) { c.endCondition = f }
}

// Clock sequences ticks over a world.
type Clock struct {
	world        *world.World
	policy       Policy
	observers    []*slot
	logger       *slog.Logger
	budget       time.Duration
	interval     time.Duration
	endCondition func(*world.Snapshot) bool
	now          func() time.Time

	mu       sync.Mutex
	state    State
	ticks    uint64
	haltErr  error
	haltReq  error
	stopping bool
}

// New creates a clock over w. The world is sealed on the first tick.
func New(w *world.World, opts ...Option) *Clock {
	c := &Clock{
		world:  w,
		policy: EvaluateAll{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clock) World() *world.World { return c.world }

// slot gives each registration an identity; observers themselves may not
// be comparable.
type slot struct{ Observer }

// AddObserver registers o for subsequent ticks. The returned function
// unregisters it.
func (c *Clock) AddObserver(o Observer) (remove func()) {
	s := &slot{o}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, s)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.observers = slices.DeleteFunc(c.observers, func(x *slot) bool { return x == s })
	}
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TickCount is the number of committed ticks.
func (c *Clock) TickCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Err returns the reason the clock halted, or nil.
func (c *Clock) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haltErr
}

// Snapshot seals the world if needed and returns the latest generation.
func (c *Clock) Snapshot() (*world.Snapshot, error) {
	if err := c.world.Seal(); err != nil {
		return nil, err
	}
	return c.world.Snapshot(), nil
}

// Stop asks Run to return after the current tick. A Stop made while no Run
// is active makes the next Run return before ticking. The clock stays
// usable.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopping = true
}

// Halt stops the simulation permanently. A tick in progress is abandoned
// at the next ability boundary and its queue discarded.
func (c *Clock) Halt(reason error) {
	if reason == nil {
		reason = ErrHaltRequested
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Halted:
	case Idle:
		c.state = Halted
		c.haltErr = reason
		c.logger.Warn("simulation halted", "tick", c.ticks, "reason", reason)
	default:
		c.haltReq = reason
	}
}

// Tick runs one evaluate-then-commit cycle. On success the new generation
// is published to observers. Any fatal error halts the clock and leaves the
// previous generation in place.
func (c *Clock) Tick() (types.TickReport, error) {
	c.mu.Lock()
	switch c.state {
	case Halted:
		err := c.haltErr
		c.mu.Unlock()
		return types.TickReport{}, fmt.Errorf("%w: %w", ErrSimulationHalted, err)
	case Evaluating, Committing:
		c.mu.Unlock()
		return types.TickReport{}, ErrTickInProgress
	}
	c.state = Evaluating
	tick := c.ticks + 1
	c.mu.Unlock()

	start := c.now()
	report := types.TickReport{Tick: tick}

	snap, err := c.Snapshot()
	if err != nil {
		return report, c.abort(tick, err)
	}

	q := world.NewQueue(c.world)
	if err := c.evaluate(snap, q, &report, start); err != nil {
		return report, c.abort(tick, err)
	}

	if err := c.enter(Committing); err != nil {
		return report, c.abort(tick, err)
	}
	res, err := c.world.Commit(q, tick)
	if err != nil {
		return report, c.abort(tick, err)
	}

	report.Agents = res.Snapshot.Len()
	report.Batches = q.Len()
	report.Applied = res.Applied
	report.Skipped = res.Skipped
	report.Rejected = res.Rejected
	report.Ops = res.Ops
	report.Digest = res.Snapshot.Digest()
	report.Duration = c.now().Sub(start)
	for _, r := range res.Ops {
		if r.Outcome == types.OutcomeRejected {
			c.logger.Warn("operation rejected", "tick", tick, "batch", r.Batch, "op", r.Kind, "agent", r.Agent, "reason", r.Reason)
			continue
		}
		c.logger.Log(context.Background(), logging.LevelTrace, "operation",
			"tick", tick, "batch", r.Batch, "op", r.Kind, "agent", r.Agent, "trait", r.Trait, "outcome", r.Outcome)
	}

	c.mu.Lock()
	c.ticks = tick
	c.state = Idle
	observers := make([]Observer, len(c.observers))
	for i, s := range c.observers {
		observers[i] = s.Observer
	}
	pending := c.haltReq
	c.mu.Unlock()

	c.logger.Debug("tick committed",
		"tick", tick,
		"agents", report.Agents,
		"batches", report.Batches,
		"applied", report.Applied,
		"skipped", report.Skipped,
		"rejected", report.Rejected,
		"duration", report.Duration)

	for _, o := range observers {
		o.OnTickCommitted(tick, res.Snapshot)
		if ro, ok := o.(ReportObserver); ok {
			ro.OnTickReport(report)
		}
	}
	if pending != nil {
		c.Halt(pending)
	}
	return report, nil
}

func (c *Clock) evaluate(snap *world.Snapshot, q *world.Queue, report *types.TickReport, start time.Time) error {
	var deadline time.Time
	if c.budget > 0 {
		deadline = start.Add(c.budget)
	}

	for caster := range snap.Agents() {
		available := caster.Abilities()
		if len(available) == 0 {
			continue
		}
		chosen := c.policy.Choose(caster, available, snap)
		if len(chosen) == 0 {
			continue
		}
		report.Casters++

		for _, b := range chosen {
			if b.Owner != caster || b.Ability == nil {
				continue
			}
			if err := c.checkpoint(deadline); err != nil {
				return err
			}
			report.Evaluated++

			targets, errs := b.Ability.Evaluate(caster, snap)
			for _, err := range errs {
				var target types.AgentID
				var ce *world.ConditionError
				if errors.As(err, &ce) {
					target = ce.Target
				}
				c.diagnose(report, caster.ID(), target, b.Name, err)
			}

			for _, target := range targets {
				rec := q.Begin(caster.ID(), target.ID(), b.Name)
				if err := b.Ability.Apply(caster, target, rec); err != nil {
					rec.Abort()
					c.diagnose(report, caster.ID(), target.ID(), b.Name, err)
					continue
				}
				rec.Close()
			}
			if err := q.Err(); err != nil {
				return fmt.Errorf("ability %q of agent %d: %w", b.Name, caster.ID(), err)
			}
		}
	}
	return nil
}

func (c *Clock) diagnose(report *types.TickReport, caster, target types.AgentID, ability string, err error) {
	report.Diagnostics = append(report.Diagnostics, types.Diagnostic{
		Tick:     report.Tick,
		Severity: types.SeverityWarning,
		Caster:   caster,
		Target:   target,
		Ability:  ability,
		Message:  err.Error(),
	})
	c.logger.Warn("ability failed", "tick", report.Tick, "caster", caster, "target", target, "ability", ability, "err", err)
}

// checkpoint runs between ability evaluations.
func (c *Clock) checkpoint(deadline time.Time) error {
	c.mu.Lock()
	req := c.haltReq
	c.mu.Unlock()
	if req != nil {
		return req
	}
	if !deadline.IsZero() && c.now().After(deadline) {
		return fmt.Errorf("%w (%s)", ErrTickBudgetExceeded, c.budget)
	}
	return nil
}

func (c *Clock) enter(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haltReq != nil {
		return c.haltReq
	}
	c.state = s
	return nil
}

// abort discards the tick and halts the clock.
func (c *Clock) abort(tick uint64, err error) error {
	c.mu.Lock()
	c.state = Halted
	c.haltErr = err
	c.haltReq = nil
	c.mu.Unlock()
	c.logger.Error("tick aborted", "tick", tick, "err", err)
	return fmt.Errorf("%w: %w", ErrSimulationHalted, err)
}

// Run ticks until maxTicks ticks have committed (zero or less means no
// limit), the end condition holds, Stop is called, ctx is done or the clock
// halts. It returns the number of ticks committed by this call.
func (c *Clock) Run(ctx context.Context, maxTicks int) (int, error) {
	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.stopping = false
		c.mu.Unlock()
	}()

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	c.logger.Info("simulation started", "tick", c.TickCount(), "max_ticks", maxTicks)
	ran := 0
	for maxTicks <= 0 || ran < maxTicks {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		if c.stopRequested() {
			break
		}
		if _, err := c.Tick(); err != nil {
			return ran, err
		}
		ran++

		if c.endCondition != nil && c.endCondition(c.world.Snapshot()) {
			c.logger.Info("end condition reached", "tick", c.TickCount())
			break
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ran, ctx.Err()
			case <-ticker.C:
			}
		}
	}
	c.logger.Info("simulation stopped", "tick", c.TickCount(), "ran", ran)
	return ran, nil
}

func (c *Clock) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}
