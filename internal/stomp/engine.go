// Package stomp implements spec.md §4.F: the event-driven simulator core
// loop. It owns virtual time and the server pool, pulls from the bridge's
// ready queue, drives the pluggable scheduling policy, and retires servers
// on completion.
package stomp

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/distsample"
	"github.com/swarmguard/stompsim/internal/policy"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/simsched"
	"github.com/swarmguard/stompsim/internal/stats"
)

// Params are the runtime knobs spec.md §6 reserves for parameters, never a
// config file (spec non-goal).
type Params struct {
	MaxTasksSimulated int64
	MeanArrivalTime   float64
	PowerMgmtEnabled  bool
}

// Engine runs the simulator loop (spec §4.F), concurrently with
// dagmeta.Manager, synchronized only through the Bridge (spec §5).
type Engine struct {
	pool   *serverpool.Pool
	bridge *bridge.Bridge
	src    *distsample.Source
	pol    policy.SchedulingPolicy
	agg    *stats.Aggregate
	params Params

	simTime           int64
	tasksGenerated    int64
	nextPowerMgmtTime int64
	nextServEndTime   int64

	// arrivalAnnounced/lastAnnouncedArrival track whether the ready queue's
	// current head instant has already been handled once. Without this, a
	// head task that can't yet bind to any server (all busy) keeps
	// next_arrival_time unchanged forever, and the ARRIVAL branch of
	// selectEvent would re-win the priority comparison on every iteration,
	// starving SERVER_FINISH and hanging the loop at a fixed sim_time.
	arrivalAnnounced     bool
	lastAnnouncedArrival int64

	pollIdle time.Duration
}

// NewEngine wires the simulator over an already-Init'd policy.
func NewEngine(pool *serverpool.Pool, br *bridge.Bridge, src *distsample.Source, pol policy.SchedulingPolicy, agg *stats.Aggregate, params Params) *Engine {
	return &Engine{
		pool:              pool,
		bridge:            br,
		src:               src,
		pol:               pol,
		agg:               agg,
		params:            params,
		nextPowerMgmtTime: math.MaxInt64,
		nextServEndTime:   math.MaxInt64,
		pollIdle:          time.Millisecond,
	}
}

type event int

const (
	eventPowerMgmt event = iota
	eventArrival
	eventServerFinish
	eventNone
)

// Run drives the core loop for as long as the continuation predicate of
// spec §4.F holds: `(tasks_generated < max_tasks_simulated) OR (ready_queue
// non-empty) OR (busy_servers > 0)`.
func (e *Engine) Run(ctx context.Context) {
	for e.admitting() || e.bridge.Len() > 0 || e.pool.BusyCount() > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nextArrival := e.bridge.NextArrivalTime()

		switch e.selectEvent(nextArrival) {
		case eventPowerMgmt:
			e.handlePowerMgmt()
		case eventArrival:
			e.handleArrival(nextArrival)
		case eventServerFinish:
			e.handleServerFinish()
		default:
			switch {
			case e.bridge.Len() > 0 && e.pool.BusyCount() == 0:
				// Ready tasks are waiting but nothing is running and the
				// policy already declined to bind any of them: no future
				// SERVER_FINISH will ever free a server. Spec §8's
				// zero-servers boundary calls for detecting this rather
				// than spinning forever.
				slog.Warn("no-progress condition detected: ready tasks pending with no server able to service them",
					"sim_time", e.simTime, "ready_queue_len", e.bridge.Len())
				return
			case e.bridge.MetaDone() && e.bridge.Len() == 0 && e.pool.BusyCount() == 0:
				// The manager has retired every DAG and will never push
				// more ready tasks; nothing is left to simulate.
				return
			default:
				// Nothing is currently schedulable (e.g. the manager
				// hasn't pushed its first batch yet); yield rather than
				// spin.
				time.Sleep(e.pollIdle)
			}
			continue
		}

		e.pickLoop()
	}
}

func (e *Engine) admitting() bool {
	return e.tasksGenerated < e.params.MaxTasksSimulated
}

// selectEvent implements spec §4.F's priority ordering: PWR_MGMT before
// ARRIVAL before SERVER_FINISH at equal instants, strictly-less otherwise.
func (e *Engine) selectEvent(nextArrival int64) event {
	admitting := e.admitting()

	if e.params.PowerMgmtEnabled &&
		(e.nextPowerMgmtTime <= nextArrival || !admitting) &&
		e.nextPowerMgmtTime <= e.nextServEndTime {
		return eventPowerMgmt
	}

	// arrivalPending is false once we've already handled this exact head
	// instant without the queue state changing (see the field comment on
	// arrivalAnnounced): re-selecting ARRIVAL at that point would starve
	// SERVER_FINISH forever instead of letting sim_time advance.
	arrivalPending := admitting && nextArrival != math.MaxInt64 &&
		(!e.arrivalAnnounced || e.lastAnnouncedArrival != nextArrival)

	if arrivalPending &&
		(nextArrival <= e.nextPowerMgmtTime || !e.params.PowerMgmtEnabled) &&
		nextArrival <= e.nextServEndTime {
		return eventArrival
	}

	if e.nextServEndTime == math.MaxInt64 {
		return eventNone
	}
	return eventServerFinish
}

// handlePowerMgmt is the reserved no-op hook spec §9 leaves undefined.
func (e *Engine) handlePowerMgmt() {
	e.simTime = e.nextPowerMgmtTime
	simsched.NoopPowerHook(e.simTime)
	e.nextPowerMgmtTime = math.MaxInt64
}

// handleArrival advances sim_time to the ready queue's head. The actual
// enqueue happened on the manager side; the simulator only snapshots the
// queue-size histogram and, if still admitting, draws the next inter-arrival
// gap from Exponential(MeanArrivalTime) for observability — the bridge
// remains the sole authority on NextArrivalTime, refreshed on every queue
// mutation it performs (spec §4.F).
func (e *Engine) handleArrival(nextArrival int64) {
	e.simTime = nextArrival
	e.arrivalAnnounced = true
	e.lastAnnouncedArrival = nextArrival
	e.agg.UpdateHistogram(e.simTime, e.bridge.Len())
	if e.admitting() {
		gap := e.src.Exponential(e.params.MeanArrivalTime)
		slog.Debug("arrival observed", "sim_time", e.simTime, "next_gap_hint", gap)
	}
}

// handleServerFinish implements spec §4.F's SERVER_FINISH handler: update
// stats (response time += sim_time - task.arrival_time, i.e. against the
// task's effective arrival into the ready queue, not against when it was
// bound to this server), increment serviced counters, release the server,
// and hand a completion record to the bridge for the manager to consume.
func (e *Engine) handleServerFinish() {
	srv := e.pool.EarliestEnd()
	if srv == nil {
		return
	}
	e.simTime = srv.EndExact()

	task := srv.CurrentTask()
	serviceTime := srv.LastServiceTime()
	respTime := e.simTime - task.EffectiveArrivalTime

	e.pool.MarkReleased(srv.Type)
	srv.Release(e.simTime)

	e.bridge.PushCompletion(bridge.Completion{
		DAGID:               task.DAGID,
		TID:                 task.TID,
		ArrivalTimeEnqueued: task.EffectiveArrivalTime,
		ActualServiceTime:   serviceTime,
	})

	e.agg.RecordCompletion(task.DAGType, e.simTime, respTime)
	e.pol.OnRelease(e.simTime, srv)
	e.agg.UpdateHistogram(e.simTime, e.bridge.Len())
	e.recomputeNextServEnd()
}

func (e *Engine) recomputeNextServEnd() {
	if srv := e.pool.EarliestEnd(); srv != nil {
		e.nextServEndTime = srv.EndExact()
	} else {
		e.nextServEndTime = math.MaxInt64
	}
}

// pickLoop implements spec §4.F step 3: invoke policy.Pick repeatedly until
// it returns none.
func (e *Engine) pickLoop() {
	for {
		ready := e.bridge.PeekReady()
		if len(ready) == 0 {
			return
		}
		decision := e.pol.Pick(e.simTime, ready)
		if !decision.Picked {
			return
		}

		taken, ok := e.bridge.TakeReady(decision.Task.DAGID, decision.Task.TID)
		if !ok {
			continue
		}

		mean, stdev := costFor(taken, decision.Server.Type)
		srv := decision.Server
		if srv.Busy() {
			slog.Warn("policy error: picked busy server", "server_id", srv.ID)
			e.agg.RecordPolicyError()
			continue
		}
		srv.Assign(e.src, e.simTime, serverpool.Task{
			DAGID:                taken.DAGID,
			TID:                  taken.TID,
			DAGType:              taken.DAGType,
			EffectiveArrivalTime: taken.EffectiveArrivalTime,
		}, mean, stdev)
		e.pool.MarkAssigned(srv.Type)
		e.tasksGenerated++
		e.agg.RecordGenerated()

		if srv.EndExact() < e.nextServEndTime {
			e.nextServEndTime = srv.EndExact()
		}
		e.agg.UpdateHistogram(e.simTime, e.bridge.Len())
	}
}

func costFor(task bridge.ReadyTask, serverType string) (mean, stdev float64) {
	for _, c := range task.CostTable {
		if c.ServerType == serverType {
			return c.Mean, c.Stdev
		}
	}
	return task.BaseCost, 0
}

// SimTime returns the current virtual time, for callers that need it after
// Run returns (e.g. to validate the histogram-sum invariant in tests).
func (e *Engine) SimTime() int64 { return e.simTime }
