package world

import (
	"fmt"

	"github.com/nathoo/agentsim/types"
)

// Op is one recorded mutation. Operations refer to agents by ID and are
// resolved against the working tree at commit time.
type Op struct {
	Kind   types.OpKind
	Agent  types.AgentID // subject; the new agent for OpAdd
	Parent types.AgentID // destination for OpAdd and OpMove
	To     types.AgentID // receiver for OpTransfer
	Name   string        // trait name for OpSet, OpAdjust, OpUnset, OpTransfer
	Value  Value         // OpSet
	Delta  float64       // OpAdjust; the requested amount for OpTransfer
	spawn  *Agent        // OpAdd
}

// Batch holds the operations of one (caster, ability, target) application.
// A batch whose target is gone by the time it is committed is skipped whole.
type Batch struct {
	Seq     int
	Caster  types.AgentID
	Target  types.AgentID
	Ability string
	Ops     []Op
}

// Queue collects effect batches during the evaluation phase of a tick.
type Queue struct {
	world   *World
	snap    *Snapshot
	batches []*Batch
	seq     int
	err     error
}

// NewQueue returns an empty queue bound to w's current snapshot.
func NewQueue(w *World) *Queue {
	return &Queue{world: w, snap: w.Snapshot()}
}

// Begin opens a batch for one effect application.
func (q *Queue) Begin(caster, target types.AgentID, ability string) *Recorder {
	q.seq++
	return &Recorder{q: q, batch: &Batch{Seq: q.seq, Caster: caster, Target: target, Ability: ability}}
}

// Batches returns the closed batches in recording order.
func (q *Queue) Batches() []*Batch { return q.batches }

// Len is the number of closed batches.
func (q *Queue) Len() int { return len(q.batches) }

// Ops is the number of recorded operations across closed batches.
func (q *Queue) Ops() int {
	n := 0
	for _, b := range q.batches {
		n += len(b.Ops)
	}
	return n
}

// Err returns the first malformed operation recorded, if any. A queue with
// an error must not be committed.
func (q *Queue) Err() error { return q.err }

func (q *Queue) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Recorder is the effect-facing view of one open batch.
type Recorder struct {
	q      *Queue
	batch  *Batch
	closed bool
}

// Snapshot returns the committed snapshot the tick is evaluated against.
func (r *Recorder) Snapshot() *Snapshot { return r.q.snap }

// Batch returns the batch being recorded.
func (r *Recorder) Batch() *Batch { return r.batch }

// Remove queues removal of an agent and its subtree.
func (r *Recorder) Remove(id types.AgentID) {
	if r.checkID("remove", id) {
		r.push(Op{Kind: types.OpRemove, Agent: id})
	}
}

// Set queues a trait assignment. Storing an agent reference attaches that
// agent under id at commit.
func (r *Recorder) Set(id types.AgentID, name string, v Value) {
	if !r.checkID("set", id) || !r.checkName("set", id, name) {
		return
	}
	if !v.IsValid() {
		r.q.fail(fmt.Errorf("set %q on agent %d: invalid value: %w", name, id, ErrMalformedOperation))
		return
	}
	if v.kind == KindAgent && v.agent == nil {
		r.q.fail(fmt.Errorf("set %q on agent %d: nil agent: %w", name, id, ErrMalformedOperation))
		return
	}
	r.push(Op{Kind: types.OpSet, Agent: id, Name: name, Value: v})
}

// Adjust queues a numeric change. Adjustments to the same trait accumulate;
// an absent trait counts as zero.
func (r *Recorder) Adjust(id types.AgentID, name string, delta float64) {
	if r.checkID("adjust", id) && r.checkName("adjust", id, name) {
		r.push(Op{Kind: types.OpAdjust, Agent: id, Name: name, Delta: delta})
	}
}

// Transfer queues moving up to amount of a numeric trait from one agent to
// another. The amount actually moved is decided at commit against the
// source's value at that point, so transfers recorded by several casters
// never take more than the source holds. Use math.Inf(1) to move all of it.
func (r *Recorder) Transfer(from, to types.AgentID, name string, amount float64) {
	if !r.checkID("transfer", from) || !r.checkID("transfer", to) || !r.checkName("transfer", from, name) {
		return
	}
	if !(amount >= 0) {
		r.q.fail(fmt.Errorf("transfer %q from agent %d: amount %v: %w", name, from, amount, ErrMalformedOperation))
		return
	}
	r.push(Op{Kind: types.OpTransfer, Agent: from, To: to, Name: name, Delta: amount})
}

// Unset queues removal of a trait.
func (r *Recorder) Unset(id types.AgentID, name string) {
	if r.checkID("unset", id) && r.checkName("unset", id, name) {
		r.push(Op{Kind: types.OpUnset, Agent: id, Name: name})
	}
}

// Move queues reparenting id under parent.
func (r *Recorder) Move(id, parent types.AgentID) {
	if r.checkID("move", id) && r.checkID("move", parent) {
		r.push(Op{Kind: types.OpMove, Agent: id, Parent: parent})
	}
}

// NewAgent allocates a detached, mutable agent without recording anything.
// Use Add, Spawn or Set with AgentRef to place it.
func (r *Recorder) NewAgent(name string) *Agent {
	return r.q.world.NewAgent(name)
}

// Add queues attaching a under parent. a must be a detached agent created
// during this tick; adding a live agent is rejected at commit.
func (r *Recorder) Add(parent types.AgentID, a *Agent) {
	if !r.checkID("add", parent) {
		return
	}
	if a == nil {
		r.q.fail(fmt.Errorf("add under agent %d: nil agent: %w", parent, ErrMalformedOperation))
		return
	}
	r.push(Op{Kind: types.OpAdd, Agent: a.id, Parent: parent, spawn: a})
}

// Spawn allocates a new agent and queues attaching it under parent. The
// returned agent may be given traits and children until commit.
func (r *Recorder) Spawn(parent types.AgentID, name string) *Agent {
	a := r.NewAgent(name)
	r.Add(parent, a)
	return a
}

// Close hands the batch to the queue. Empty batches are dropped.
func (r *Recorder) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if len(r.batch.Ops) > 0 {
		r.q.batches = append(r.q.batches, r.batch)
	}
}

// Abort discards everything the batch recorded.
func (r *Recorder) Abort() {
	r.closed = true
	r.batch.Ops = nil
}

func (r *Recorder) push(op Op) {
	if r.closed {
		r.q.fail(fmt.Errorf("%s on agent %d after batch closed: %w", op.Kind, op.Agent, ErrMalformedOperation))
		return
	}
	r.batch.Ops = append(r.batch.Ops, op)
}

func (r *Recorder) checkID(kind string, id types.AgentID) bool {
	if id == 0 || !r.q.world.allocated(id) {
		r.q.fail(fmt.Errorf("%s: unknown agent %d: %w", kind, id, ErrMalformedOperation))
		return false
	}
	return true
}

func (r *Recorder) checkName(kind string, id types.AgentID, name string) bool {
	if name == "" {
		r.q.fail(fmt.Errorf("%s on agent %d: empty trait name: %w", kind, id, ErrMalformedOperation))
		return false
	}
	return true
}
