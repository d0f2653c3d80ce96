package dagmeta

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/stats"
)

// Manager runs the DAG manager loop (spec §4.G), concurrently with the
// simulator's Engine, synchronized only through the Bridge (spec §5).
type Manager struct {
	registry *Registry
	bridge   *bridge.Bridge
	agg      *stats.Aggregate
	results  []Result

	maxQueueSize int
	idle         time.Duration
}

// NewManager constructs a Manager over a registry that has already been
// populated by the workload loader (spec §4.A feeds the registry before
// Run starts). maxQueueSize <= 0 means unbounded.
func NewManager(registry *Registry, br *bridge.Bridge, agg *stats.Aggregate, maxQueueSize int) *Manager {
	return &Manager{registry: registry, bridge: br, agg: agg, maxQueueSize: maxQueueSize, idle: time.Millisecond}
}

// Run executes the manager loop until the registry empties (spec §4.G
// termination), then raises META_DONE and returns the ordered result list.
// Intended to be launched as its own goroutine alongside Engine.Run.
func (m *Manager) Run(ctx context.Context) []Result {
	for m.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return m.orderedResults()
		default:
		}

		m.drainCompletions()
		m.emitReady()

		if m.registry.Len() > 0 {
			time.Sleep(m.idle)
		}
	}
	m.bridge.SetMetaDone()
	return m.orderedResults()
}

// drainCompletions implements spec §4.G step 1: pull every pending
// completion, locate the DAG and node, advance ready_time/resp_time, retire
// the node, and retire the DAG itself if its graph has emptied.
func (m *Manager) drainCompletions() {
	completions := m.bridge.DrainCompletions()
	for _, c := range completions {
		dag, ok := m.registry.Lookup(c.DAGID)
		if !ok {
			slog.Warn("completion for unknown dag", "dag_id", c.DAGID, "tid", c.TID)
			continue
		}
		if _, ok := dag.Graph.Task(c.TID); !ok {
			slog.Warn("completion for unknown task", "dag_id", c.DAGID, "tid", c.TID)
			continue
		}

		dag.ReadyTime = c.ArrivalTimeEnqueued + c.ActualServiceTime
		dag.RespTime = dag.ReadyTime - dag.ArrivalTime
		dag.Graph.Retire(c.TID)

		if dag.Graph.Empty() {
			m.results = append(m.results, Result{DAGID: dag.ID, DAGType: dag.Type, RespTime: dag.RespTime})
			m.registry.Retire(dag.ID)
		}
	}
	m.bridge.LowerCompletedFlagIfEmpty()
}

// emitReady implements spec §4.G steps 2-3: for every still-active DAG,
// scan in-degree-zero unscheduled nodes (snapshot, per §9 Design Notes),
// build ready descriptors, mark them enqueued, then push the whole batch
// into the bridge in one call so the re-sort happens once per tick.
func (m *Manager) emitReady() {
	var batch []bridge.ReadyTask

	for _, dagID := range m.registry.IterActive() {
		dag, ok := m.registry.Lookup(dagID)
		if !ok {
			continue
		}
		readyTIDs := dag.Graph.ReadyNodes()
		for _, tid := range readyTIDs {
			task, ok := dag.Graph.Task(tid)
			if !ok {
				continue
			}
			effectiveArrival := dag.ReadyTime
			if tid == 0 {
				effectiveArrival = dag.ArrivalTime
			}
			batch = append(batch, bridge.ReadyTask{
				EffectiveArrivalTime: effectiveArrival,
				BaseCost:             task.BaseCost,
				DAGID:                dag.ID,
				TID:                  tid,
				DAGType:              dag.Type,
				CostTable:            toBridgeCostTable(task.CostTable),
			})
		}
		for _, tid := range readyTIDs {
			dag.Graph.MarkEnqueued(tid)
		}
	}

	if len(batch) == 0 {
		return
	}

	if m.maxQueueSize > 0 {
		room := m.maxQueueSize - m.bridge.Len()
		if room < 0 {
			room = 0
		}
		if len(batch) > room {
			dropped := batch[room:]
			batch = batch[:room]
			for _, d := range dropped {
				slog.Info("capacity error: ready queue full, dropping arrival",
					"dag_id", d.DAGID, "tid", d.TID, "max_queue_size", m.maxQueueSize)
				if m.agg != nil {
					m.agg.RecordCapacityDrop()
				}
			}
		}
	}

	if len(batch) > 0 {
		m.bridge.PushReady(batch)
	}
}

func toBridgeCostTable(table []ServerCost) []bridge.ServerCost {
	out := make([]bridge.ServerCost, len(table))
	for i, c := range table {
		out[i] = bridge.ServerCost{ServerType: c.ServerType, Mean: c.Mean, Stdev: c.Stdev}
	}
	return out
}

// orderedResults returns the accumulated results sorted by dag_id ascending
// (spec §4.G termination: "emit the ordered result list sorted by dag_id").
func (m *Manager) orderedResults() []Result {
	out := make([]Result, len(m.results))
	copy(out, m.results)
	sort.Slice(out, func(i, j int) bool { return out[i].DAGID < out[j].DAGID })
	return out
}
