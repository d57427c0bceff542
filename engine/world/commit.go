package world

import (
	"errors"
	"fmt"
	"math"

	"github.com/nathoo/agentsim/types"
)

// CommitResult describes a successful commit.
type CommitResult struct {
	Snapshot *Snapshot
	Ops      []types.OpRecord
	Applied  int
	Skipped  int
	Rejected int
}

// Commit replays the queue's batches, in recording order, onto a working
// copy of the current generation. If the result is a valid tree it becomes
// the new generation, tagged with tick. On error the working copy is
// discarded and the current generation is left untouched.
func (w *World) Commit(q *Queue, tick uint64) (*CommitResult, error) {
	if err := w.Seal(); err != nil {
		return nil, err
	}
	if q.world != w || q.snap != w.snap {
		return nil, ErrStaleQueue
	}
	if err := q.Err(); err != nil {
		return nil, err
	}

	tx := begin(w.snap)
	for _, b := range q.batches {
		tx.applyBatch(b)
	}
	if err := tx.validate(); err != nil {
		return nil, err
	}

	freeze(tx.root)
	w.snap = newSnapshot(tick, tx.root, tx.index)
	w.root = tx.root
	return &CommitResult{
		Snapshot: w.snap,
		Ops:      tx.records,
		Applied:  tx.applied,
		Skipped:  tx.skipped,
		Rejected: tx.rejected,
	}, nil
}

// txn is the working copy a commit mutates.
type txn struct {
	root    *Agent
	index   map[types.AgentID]*Agent
	removed map[types.AgentID]bool

	records  []types.OpRecord
	applied  int
	skipped  int
	rejected int
}

func begin(snap *Snapshot) *txn {
	index := make(map[types.AgentID]*Agent, len(snap.order))
	for _, a := range snap.order {
		index[a.id] = &Agent{id: a.id, name: a.name, traits: a.traits.clone()}
	}
	for _, a := range snap.order {
		c := index[a.id]
		if a.parent != nil {
			c.parent = index[a.parent.id]
		}
		c.children = make([]*Agent, len(a.children))
		for i, ch := range a.children {
			c.children[i] = index[ch.id]
		}
		for name, v := range c.traits.values {
			if v.kind == KindAgent {
				c.traits.values[name] = AgentRef(index[v.agent.id])
			}
		}
	}
	return &txn{
		root:    index[snap.root.id],
		index:   index,
		removed: map[types.AgentID]bool{},
	}
}

func (tx *txn) applyBatch(b *Batch) {
	if _, ok := tx.index[b.Target]; !ok {
		for _, op := range b.Ops {
			tx.record(b, op, types.OutcomeTargetGone, fmt.Sprintf("target %d no longer exists", b.Target))
		}
		return
	}
	for _, op := range b.Ops {
		tx.apply(b, op)
	}
}

func (tx *txn) apply(b *Batch, op Op) {
	switch op.Kind {
	case types.OpRemove:
		a, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeAlreadyRemoved, "")
			return
		}
		if a == tx.root {
			tx.record(b, op, types.OutcomeRejected, "the root cannot be removed")
			return
		}
		tx.unlink(a)
		tx.record(b, op, types.OutcomeApplied, "")

	case types.OpSet:
		h, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, "")
			return
		}
		v := op.Value
		var fresh *Agent
		if ref, isAgent := v.AsAgent(); isAgent {
			if live, ok := tx.index[ref.id]; ok {
				if live.parent != h {
					tx.record(b, op, types.OutcomeRejected, ErrReparentNotAllowed.Error())
					return
				}
				v = AgentRef(live)
			} else if err := tx.checkFresh(ref); err != nil {
				tx.record(b, op, types.OutcomeRejected, err.Error())
				return
			} else {
				fresh = ref
			}
		}
		displaced, err := h.setTrait(op.Name, v)
		if err != nil {
			tx.record(b, op, types.OutcomeRejected, err.Error())
			return
		}
		if fresh != nil {
			tx.indexSubtree(fresh)
		}
		tx.record(b, op, types.OutcomeApplied, "")
		tx.displace(b, h, displaced)

	case types.OpAdjust:
		h, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, "")
			return
		}
		cur, has := h.traits.Lookup(op.Name)
		n, isNum := cur.AsNumber()
		if has && !isNum {
			tx.record(b, op, types.OutcomeRejected, fmt.Sprintf("trait is %s: %v", cur.Kind(), ErrTraitKind))
			return
		}
		h.traits.Set(op.Name, Number(n+op.Delta))
		tx.record(b, op, types.OutcomeApplied, "")

	case types.OpTransfer:
		src, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, "")
			return
		}
		dst, ok := tx.index[op.To]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, fmt.Sprintf("receiver %d no longer exists", op.To))
			return
		}
		have, err := tx.number(src, op.Name)
		if err != nil {
			tx.record(b, op, types.OutcomeRejected, err.Error())
			return
		}
		held, err := tx.number(dst, op.Name)
		if err != nil {
			tx.record(b, op, types.OutcomeRejected, err.Error())
			return
		}
		n := min(op.Delta, max(have, 0))
		if src == dst {
			tx.record(b, op, types.OutcomeApplied, "")
			return
		}
		src.traits.Set(op.Name, Number(have-n))
		dst.traits.Set(op.Name, Number(held+n))
		reason := ""
		if n < op.Delta && !math.IsInf(op.Delta, 1) {
			reason = fmt.Sprintf("capped at %g", n)
		}
		tx.record(b, op, types.OutcomeApplied, reason)

	case types.OpUnset:
		h, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, "")
			return
		}
		if !h.HasTrait(op.Name) {
			tx.record(b, op, types.OutcomeAlreadyRemoved, "")
			return
		}
		displaced := h.unsetTrait(op.Name)
		tx.record(b, op, types.OutcomeApplied, "")
		tx.displace(b, h, displaced)

	case types.OpMove:
		a, ok := tx.index[op.Agent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, "")
			return
		}
		p, ok := tx.index[op.Parent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, fmt.Sprintf("destination %d no longer exists", op.Parent))
			return
		}
		if a == tx.root {
			tx.record(b, op, types.OutcomeRejected, "the root cannot be moved")
			return
		}
		if a == p || a.IsAncestorOf(p) {
			tx.record(b, op, types.OutcomeRejected, ErrCycleDetected.Error())
			return
		}
		if a.parent != p {
			a.parent.detach(a.id)
			if err := p.attach(a); err != nil {
				tx.record(b, op, types.OutcomeRejected, err.Error())
				return
			}
		}
		tx.record(b, op, types.OutcomeApplied, "")

	case types.OpAdd:
		p, ok := tx.index[op.Parent]
		if !ok {
			tx.record(b, op, types.OutcomeTargetGone, fmt.Sprintf("parent %d no longer exists", op.Parent))
			return
		}
		if _, live := tx.index[op.spawn.id]; live {
			tx.record(b, op, types.OutcomeRejected, ErrReparentNotAllowed.Error())
			return
		}
		if err := tx.checkFresh(op.spawn); err != nil {
			tx.record(b, op, types.OutcomeRejected, err.Error())
			return
		}
		if err := p.attach(op.spawn); err != nil {
			tx.record(b, op, types.OutcomeRejected, err.Error())
			return
		}
		tx.indexSubtree(op.spawn)
		tx.record(b, op, types.OutcomeApplied, "")

	default:
		tx.record(b, op, types.OutcomeRejected, fmt.Sprintf("unknown operation %q", op.Kind))
	}
}

// number reads a numeric trait for an additive op; an absent trait is zero.
func (tx *txn) number(a *Agent, name string) (float64, error) {
	cur, has := a.traits.Lookup(name)
	n, isNum := cur.AsNumber()
	if has && !isNum {
		return 0, fmt.Errorf("trait %q of agent %d is %s: %w", name, a.id, cur.Kind(), ErrTraitKind)
	}
	return n, nil
}

// checkFresh verifies that a is a detached agent created this tick whose
// subtree does not collide with the working tree.
func (tx *txn) checkFresh(a *Agent) error {
	if a.frozen || tx.removed[a.id] {
		return fmt.Errorf("agent %d was removed or belongs to a committed generation", a.id)
	}
	if a.parent != nil {
		return ErrReparentNotAllowed
	}
	for n := range a.Traverse() {
		if _, ok := tx.index[n.id]; ok {
			return fmt.Errorf("agent %d is already in the tree: %w", n.id, ErrReparentNotAllowed)
		}
	}
	return nil
}

func (tx *txn) indexSubtree(a *Agent) {
	for n := range a.Traverse() {
		tx.index[n.id] = n
	}
}

// unlink detaches a from its parent and drops its subtree from the index.
func (tx *txn) unlink(a *Agent) {
	if a.parent != nil {
		a.parent.detach(a.id)
	}
	for n := range a.Traverse() {
		delete(tx.index, n.id)
		tx.removed[n.id] = true
	}
}

// displace removes an agent that lost its last owning trait.
func (tx *txn) displace(b *Batch, holder, child *Agent) {
	if child == nil || child.parent != holder {
		return
	}
	tx.unlink(child)
	tx.record(b, Op{Kind: types.OpRemove, Agent: child.id}, types.OutcomeApplied, "displaced from trait")
}

func (tx *txn) record(b *Batch, op Op, outcome types.Outcome, reason string) {
	switch outcome {
	case types.OutcomeApplied:
		tx.applied++
	case types.OutcomeRejected:
		tx.rejected++
	default:
		tx.skipped++
	}
	tx.records = append(tx.records, types.OpRecord{
		Batch:   b.Seq,
		Kind:    op.Kind,
		Agent:   op.Agent,
		Trait:   op.Name,
		Outcome: outcome,
		Reason:  reason,
	})
}

// validate checks the working tree's structural invariants.
func (tx *txn) validate() error {
	if tx.root.parent != nil {
		return fmt.Errorf("root has a parent: %w", ErrInconsistentTree)
	}
	var errs []error
	count := 0
	for a := range tx.root.Traverse() {
		count++
		if tx.index[a.id] != a {
			errs = append(errs, fmt.Errorf("agent %d is not indexed", a.id))
		}
		for _, c := range a.children {
			if c.parent != a {
				errs = append(errs, fmt.Errorf("child %d of agent %d has parent link to another agent", c.id, a.id))
			}
		}
		for name, v := range a.traits.All() {
			if ref, ok := v.AsAgent(); ok && ref.parent != a {
				errs = append(errs, fmt.Errorf("trait %q of agent %d refers to non-child %d", name, a.id, ref.id))
			}
		}
	}
	if count != len(tx.index) {
		errs = append(errs, fmt.Errorf("index holds %d agents, tree holds %d", len(tx.index), count))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInconsistentTree, errors.Join(errs...))
	}
	return nil
}
