// Package simsched implements the cron-driven recurring-replay scheduler
// from SPEC_FULL.md §4 domain stack, grounded on
// services/orchestrator/scheduler.go's robfig/cron usage, plus the reserved
// no-op power-management hook spec.md §9 leaves undefined.
package simsched

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"
)

// ReplayFunc runs one full simulation replay of a stored workload and
// reports whether it succeeded.
type ReplayFunc func(ctx context.Context) error

// Scheduler drives recurring replays (e.g. a nightly soak run over a stored
// trace) on a cron schedule. It does not participate in a single
// simulation's manager/simulator hand-off — each fire is a fresh, complete
// run.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex

	runs metric.Int64Counter
	fails metric.Int64Counter
}

// New builds a Scheduler with second-precision cron expressions via
// cron.WithSeconds().
func New(meter metric.Meter) *Scheduler {
	runs, _ := meter.Int64Counter("stompsim_replay_runs_total")
	fails, _ := meter.Int64Counter("stompsim_replay_failures_total")
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		runs:  runs,
		fails: fails,
	}
}

// AddReplay registers a replay under a cron expression, returning the entry
// id so callers can remove it later.
func (s *Scheduler) AddReplay(cronExpr string, replay ReplayFunc) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron.AddFunc(cronExpr, func() {
		ctx := context.Background()
		if err := replay(ctx); err != nil {
			slog.Warn("scheduled replay failed", "error", err)
			s.fails.Add(ctx, 1)
			return
		}
		s.runs.Add(ctx, 1)
	})
}

// RemoveReplay cancels a previously registered replay.
func (s *Scheduler) RemoveReplay(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Remove(id)
}

// Start begins firing scheduled replays.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("replay scheduler started")
}

// Stop halts the scheduler and waits for any in-flight replay to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("replay scheduler stopped")
}

// NoopPowerHook is the reserved power-management tick handler spec.md §9
// leaves unspecified ("no defined handler body — reserve the hook and leave
// a no-op with a warning"). The engine calls this once per PWR_MGMT event.
func NoopPowerHook(simTime int64) {
	slog.Warn("power management event fired, no handler configured", "sim_time", simTime)
}
