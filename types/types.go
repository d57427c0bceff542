// Package types defines the shared data structures for the agentsim engine.
// This package contains only type definitions, no logic.
package types

import "time"

// AgentID identifies an agent for its whole lifetime. IDs are allocated
// monotonically by the world and never reused. Zero means "no agent".
type AgentID uint64

// Condition is declarative predicate data compiled into an ability condition.
type Condition struct {
	Type   string         // "trait_is", "trait_gt", "has_trait", "not", etc.
	Params map[string]any // condition-specific parameters
	Inner  []Condition    // for "not" (one) and "any" (many)
}

// Effect is declarative effect data compiled into an ability effect.
type Effect struct {
	Type   string
	Params map[string]any
}

// Selector names the target-selection rule of an ability.
type Selector struct {
	Type   string         // "self", "all", "children", "within_range", etc.
	Params map[string]any // selector-specific parameters
}

// AbilityDef is the declarative form of an ability.
type AbilityDef struct {
	Targets     Selector
	Conditions  []Condition
	Effects     []Effect
	SourceOrder int
}

// TraitDef is a single named trait of an AgentDef. Exactly one of Value,
// Ability or Agent is set.
type TraitDef struct {
	Name    string
	Value   any // float64, string or bool
	Ability *AbilityDef
	Agent   *AgentDef
}

// AgentDef is the declarative form of an agent and its subtree.
type AgentDef struct {
	Name        string
	Traits      []TraitDef
	Children    []AgentDef
	SourceOrder int
}

// ScenarioDef holds scenario metadata and the top-level agents placed
// under the world root.
type ScenarioDef struct {
	Title       string
	Author      string
	Description string
	Seed        int64
	Ticks       int
	Agents      []AgentDef
}

// OpKind classifies a recorded mutation.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpMove   OpKind = "move"
	OpRemove OpKind = "remove"
	OpSet    OpKind = "set"
	OpAdjust OpKind = "adjust"
	OpUnset  OpKind = "unset"

	// OpTransfer moves a numeric amount between two agents' traits. The
	// amount is capped by what the source holds when the op is applied.
	OpTransfer OpKind = "transfer"
)

// Outcome is the commit result of a single operation.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeTargetGone     Outcome = "target_gone"
	OutcomeAlreadyRemoved Outcome = "already_removed"
	OutcomeRejected       Outcome = "rejected"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a non-fatal problem recorded during a tick.
type Diagnostic struct {
	Tick     uint64
	Severity Severity
	Caster   AgentID
	Target   AgentID
	Ability  string
	Message  string
}

// OpRecord describes how one operation fared at commit time.
type OpRecord struct {
	Batch   int
	Kind    OpKind
	Agent   AgentID
	Trait   string
	Outcome Outcome
	Reason  string
}

// TickReport summarizes one committed tick.
type TickReport struct {
	Tick        uint64
	Agents      int // agents reachable from the root after commit
	Casters     int // agents whose abilities were evaluated
	Evaluated   int // (caster, ability) pairs evaluated
	Batches     int // effect batches recorded
	Applied     int
	Skipped     int // target_gone and already_removed
	Rejected    int
	Ops         []OpRecord
	Diagnostics []Diagnostic
	Digest      string
	Duration    time.Duration
}
