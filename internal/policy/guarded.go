package policy

import (
	"time"

	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/resilience"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/stats"
)

// Guarded wraps a non-default policy with a circuit breaker so that a
// policy whose Pick starts panicking degrades to FirstFit instead of taking
// the whole simulator down. Only panics count as breaker failures; a
// decision that names a busy server is caught by the engine, not here (spec §7: PolicyError
// and InvariantError are soft failures once the breaker has tripped).
type Guarded struct {
	inner    SchedulingPolicy
	fallback FirstFit
	breaker  *resilience.CircuitBreaker
	agg      *stats.Aggregate
}

// NewGuarded wraps inner with an adaptive breaker tuned for per-tick
// scheduling decisions: a short window, low minimum sample count, and a
// short half-open cooldown so the simulator doesn't stall waiting to
// re-probe a recovered policy.
func NewGuarded(inner SchedulingPolicy) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreakerAdaptive(10*time.Second, 10, 5, 0.5, 2*time.Second, 3),
	}
}

func (g *Guarded) Init(pool *serverpool.Pool, agg *stats.Aggregate, params Params) error {
	g.agg = agg
	if err := g.fallback.Init(pool, agg, params); err != nil {
		return err
	}
	return g.inner.Init(pool, agg, params)
}

func (g *Guarded) Pick(simTime int64, ready []bridge.ReadyTask) (decision Decision) {
	if !g.breaker.Allow() {
		return g.fallback.Pick(simTime, ready)
	}

	ok := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				ok = false
				if g.agg != nil {
					g.agg.RecordPolicyError()
				}
			}
		}()
		decision = g.inner.Pick(simTime, ready)
	}()

	g.breaker.RecordResult(ok)
	if !ok {
		return g.fallback.Pick(simTime, ready)
	}
	return decision
}

func (g *Guarded) OnRelease(simTime int64, server *serverpool.Server) {
	if g.breaker.Open() {
		g.fallback.OnRelease(simTime, server)
		return
	}
	g.inner.OnRelease(simTime, server)
}
