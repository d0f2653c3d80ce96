// Package bridge implements spec.md §4.C / §5: the sole hand-off channel
// between the DAG manager context and the simulator context. It owns the
// ready queue, the completion queue, and the scalars both contexts read
// (NextArrivalTime, TaskCompletedFlag, MetaStart, MetaDone), each guarded by
// one of two independent locks that are never acquired nested.
package bridge

import (
	"math"
	"sort"
	"sync"
)

// ServerCost is one row of a ready task's per-server-type cost table
// (spec §3, ready-task descriptor).
type ServerCost struct {
	ServerType string
	Mean       float64
	Stdev      float64
}

// ReadyTask is the unit of the ready queue (spec §3).
type ReadyTask struct {
	EffectiveArrivalTime int64
	BaseCost             float64
	DAGID                int
	TID                  int
	DAGType              string
	CostTable            []ServerCost
}

// Completion is the unit of the completion queue (spec §3).
type Completion struct {
	DAGID                int
	TID                  int
	ArrivalTimeEnqueued  int64
	ActualServiceTime    int64
}

// Bridge is the shared-state object spec §9's Design Notes call for: no
// process-wide singletons, no direct reads of the other context's private
// state.
type Bridge struct {
	queueLock      sync.Mutex
	completionLock sync.Mutex

	ready      []ReadyTask
	completion []Completion

	nextArrivalTime   int64
	taskCompletedFlag bool
	metaStart         bool
	metaDone          bool
}

// New returns an empty Bridge with NextArrivalTime at +inf (spec §4.C).
func New() *Bridge {
	return &Bridge{nextArrivalTime: math.MaxInt64}
}

// PushReady appends descriptors under queueLock and re-sorts the ready queue
// stably by EffectiveArrivalTime ascending (spec §4.C, §4.G step 3), then
// refreshes NextArrivalTime to the new head. Locks are held for the minimum
// span required to transfer records and resort — no graph mutation happens
// here (spec §5 discipline).
func (b *Bridge) PushReady(tasks []ReadyTask) {
	if len(tasks) == 0 {
		return
	}
	b.queueLock.Lock()
	b.ready = append(b.ready, tasks...)
	sort.SliceStable(b.ready, func(i, j int) bool {
		return b.ready[i].EffectiveArrivalTime < b.ready[j].EffectiveArrivalTime
	})
	if len(b.ready) > 0 {
		b.nextArrivalTime = b.ready[0].EffectiveArrivalTime
	}
	b.metaStart = true
	b.queueLock.Unlock()
}

// PeekReady returns a snapshot copy of the ready queue; the engine hands this
// copy to the policy's Pick, so the bridge itself is only ever touched under
// lock.
func (b *Bridge) PeekReady() []ReadyTask {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	out := make([]ReadyTask, len(b.ready))
	copy(out, b.ready)
	return out
}

// TakeReady removes the descriptor identified by (dagID, tid) from the ready
// queue, if present, and returns it. The engine's pick loop calls this once
// a policy's Pick has returned a decision; Pick itself never mutates the
// queue.
func (b *Bridge) TakeReady(dagID, tid int) (ReadyTask, bool) {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	for i, t := range b.ready {
		if t.DAGID == dagID && t.TID == tid {
			task := t
			b.ready = append(b.ready[:i], b.ready[i+1:]...)
			if len(b.ready) > 0 {
				b.nextArrivalTime = b.ready[0].EffectiveArrivalTime
			} else {
				b.nextArrivalTime = math.MaxInt64
			}
			return task, true
		}
	}
	return ReadyTask{}, false
}

// Len reports the current ready-queue depth.
func (b *Bridge) Len() int {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	return len(b.ready)
}

// NextArrivalTime returns the earliest EffectiveArrivalTime in the ready
// queue, or +inf if empty (spec §4.F).
func (b *Bridge) NextArrivalTime() int64 {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	return b.nextArrivalTime
}

// MetaStarted reports whether the manager has pushed at least one batch.
func (b *Bridge) MetaStarted() bool {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	return b.metaStart
}

// PushCompletion appends a completion record under completionLock and raises
// TaskCompletedFlag (spec §4.F SERVER_FINISH handler).
func (b *Bridge) PushCompletion(c Completion) {
	b.completionLock.Lock()
	b.completion = append(b.completion, c)
	b.taskCompletedFlag = true
	b.completionLock.Unlock()
}

// DrainCompletions removes and returns all pending completion records
// (spec §4.G step 1). The manager acquires completionLock, drains, then
// releases it before ever touching queueLock (spec §5 discipline).
func (b *Bridge) DrainCompletions() []Completion {
	b.completionLock.Lock()
	defer b.completionLock.Unlock()
	if len(b.completion) == 0 {
		return nil
	}
	out := b.completion
	b.completion = nil
	return out
}

// LowerCompletedFlagIfEmpty clears TaskCompletedFlag once the completion
// queue has been fully drained (spec §4.G step 4).
func (b *Bridge) LowerCompletedFlagIfEmpty() {
	b.completionLock.Lock()
	defer b.completionLock.Unlock()
	if len(b.completion) == 0 {
		b.taskCompletedFlag = false
	}
}

// TaskCompletedFlag reports whether a completion is pending for the manager.
func (b *Bridge) TaskCompletedFlag() bool {
	b.completionLock.Lock()
	defer b.completionLock.Unlock()
	return b.taskCompletedFlag
}

// SetMetaDone raises META_DONE once the manager's active DAG list empties
// (spec §4.G termination).
func (b *Bridge) SetMetaDone() {
	b.queueLock.Lock()
	b.metaDone = true
	b.queueLock.Unlock()
}

// MetaDone reports whether the manager has finished.
func (b *Bridge) MetaDone() bool {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()
	return b.metaDone
}
