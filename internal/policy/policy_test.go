package policy

import (
	"testing"

	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/stats"
)

func newTestAggregate() *stats.Aggregate {
	mp := noopmetric.MeterProvider{}
	return stats.New(mp.Meter("test"), 1)
}

func TestFirstFitBindsFirstIdleOfFirstListedType(t *testing.T) {
	pool := serverpool.New(map[string]int{"cpu_core": 1, "gpu": 1}, []string{"cpu_core", "gpu"})
	f := &FirstFit{}
	if err := f.Init(pool, newTestAggregate(), Params{}); err != nil {
		t.Fatalf("init: %v", err)
	}

	task := bridge.ReadyTask{DAGID: 1, TID: 0, CostTable: []bridge.ServerCost{
		{ServerType: "cpu_core", Mean: 10}, {ServerType: "gpu", Mean: 4},
	}}
	decision := f.Pick(0, []bridge.ReadyTask{task})
	if !decision.Picked || decision.Server.Type != "cpu_core" {
		t.Fatalf("expected firstfit to bind cpu_core first, got %+v", decision)
	}
}

func TestFirstFitSkipsBusyServers(t *testing.T) {
	pool := serverpool.New(map[string]int{"cpu_core": 1}, []string{"cpu_core"})
	pool.ByType("cpu_core")[0].Assign(nil, 0, serverpool.Task{}, 0, 0)
	pool.MarkAssigned("cpu_core")

	f := &FirstFit{}
	_ = f.Init(pool, newTestAggregate(), Params{})
	task := bridge.ReadyTask{CostTable: []bridge.ServerCost{{ServerType: "cpu_core", Mean: 10}}}
	decision := f.Pick(0, []bridge.ReadyTask{task})
	if decision.Picked {
		t.Fatalf("expected no pick when the only server of the type is busy")
	}
}

// panicPolicy simulates a PolicyError: it always panics from Pick.
type panicPolicy struct{}

func (panicPolicy) Init(*serverpool.Pool, *stats.Aggregate, Params) error { return nil }
func (panicPolicy) Pick(int64, []bridge.ReadyTask) Decision              { panic("boom") }
func (panicPolicy) OnRelease(int64, *serverpool.Server)                  {}

func TestGuardedFallsBackToFirstFitAfterPanics(t *testing.T) {
	pool := serverpool.New(map[string]int{"cpu_core": 1}, []string{"cpu_core"})
	g := NewGuarded(panicPolicy{})
	if err := g.Init(pool, newTestAggregate(), Params{}); err != nil {
		t.Fatalf("init: %v", err)
	}

	task := bridge.ReadyTask{CostTable: []bridge.ServerCost{{ServerType: "cpu_core", Mean: 10}}}
	// Drive enough panicking picks to trip the breaker (minSamples=5).
	for i := 0; i < 10; i++ {
		func() {
			defer func() { recover() }()
			g.Pick(0, []bridge.ReadyTask{task})
		}()
	}
	decision := g.Pick(0, []bridge.ReadyTask{task})
	if !decision.Picked {
		t.Fatalf("expected fallback firstfit to still schedule once the breaker opens")
	}
}

func TestNewUnknownPolicyIsPolicyError(t *testing.T) {
	if _, err := New("does-not-exist"); err == nil {
		t.Fatalf("expected an error for an unregistered policy name")
	}
}

func TestNewFirstFit(t *testing.T) {
	p, err := New("firstfit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*FirstFit); !ok {
		t.Fatalf("expected *FirstFit, got %T", p)
	}
}
