package world

import (
	"fmt"

	"github.com/nathoo/agentsim/types"
)

// Condition decides whether an ability applies to a target. It reads the
// committed snapshot only.
type Condition func(caster, target *Agent, snap *Snapshot) (bool, error)

// Effect records mutations for one (caster, target) application. It must not
// touch the tree directly; all changes go through the recorder.
type Effect func(caster, target *Agent, rec *Recorder) error

// Selector chooses candidate targets for a caster.
type Selector interface {
	Select(caster *Agent, snap *Snapshot) []*Agent
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(caster *Agent, snap *Snapshot) []*Agent

func (f SelectorFunc) Select(caster *Agent, snap *Snapshot) []*Agent { return f(caster, snap) }

// Ability is an executable rule stored as a trait value. A nil Targets
// selects the caster itself; a nil Condition always holds.
type Ability struct {
	Targets   Selector
	Condition Condition
	Effect    Effect
}

// Bound pairs an ability with the agent and trait name it is stored under.
type Bound struct {
	Owner   *Agent
	Name    string
	Ability *Ability
}

// ConditionError reports a condition that failed for one target. The
// target is treated as not matching.
type ConditionError struct {
	Target types.AgentID
	Err    error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition on target %d: %v", e.Target, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Evaluate returns the targets for which the ability's condition holds,
// in selector order. Condition errors and panics exclude the target and
// are returned alongside.
func (ab *Ability) Evaluate(caster *Agent, snap *Snapshot) ([]*Agent, []error) {
	candidates := []*Agent{caster}
	if ab.Targets != nil {
		candidates = ab.Targets.Select(caster, snap)
	}
	if ab.Condition == nil {
		return candidates, nil
	}

	var (
		targets []*Agent
		errs    []error
	)
	for _, t := range candidates {
		ok, err := ab.check(caster, t, snap)
		if err != nil {
			errs = append(errs, &ConditionError{Target: t.id, Err: err})
			continue
		}
		if ok {
			targets = append(targets, t)
		}
	}
	return targets, errs
}

func (ab *Ability) check(caster, target *Agent, snap *Snapshot) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("condition panicked: %v", r)
		}
	}()
	return ab.Condition(caster, target, snap)
}

// Apply runs the ability's effect for one target. A failing or panicking
// effect returns an error; the caller discards what it recorded.
func (ab *Ability) Apply(caster, target *Agent, rec *Recorder) (err error) {
	if ab.Effect == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect panicked: %v", r)
		}
	}()
	return ab.Effect(caster, target, rec)
}
