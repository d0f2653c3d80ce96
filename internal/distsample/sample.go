// Package distsample draws the stochastic samples spec.md §4.D and §4.F call
// for: a rounded Normal draw for a task's service time on its bound server,
// and an Exponential draw for the next arrival instant. Grounded on
// gonum.org/v1/gonum's stat/distuv, the nearest on-domain (queueing
// simulator) user of gonum, referenced by the inference-sim manifest.
package distsample

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Source draws Normal and Exponential samples for the simulator. It is not
// safe for concurrent use by multiple goroutines; the event loop is the only
// caller (spec §5: the simulator context owns all server/time state).
type Source struct {
	rng *rand.Rand
}

// New seeds a deterministic Source so that re-running with the same seed,
// workload, and policy reproduces identical per-DAG response times (spec §8
// round-trip property).
func New(seed uint64) *Source {
	return &Source{rng: rand.New(rand.NewSource(int64(seed)))}
}

// NormalRounded draws round(Normal(mean, stdev)) per spec §4.D. A stdev of
// zero degenerates to the mean exactly (distuv.Normal requires Sigma > 0,
// guarded here rather than in every call site). Negative draws are returned
// as-is — spec §9 leaves them unclamped by design.
func (s *Source) NormalRounded(mean, stdev float64) int64 {
	if stdev <= 0 {
		return int64(math.Round(mean))
	}
	d := distuv.Normal{Mu: mean, Sigma: stdev, Src: s.rng}
	return int64(math.Round(d.Rand()))
}

// Exponential draws round(Exponential(mean)) for the next inter-arrival
// instant per spec §4.F. mean <= 0 is treated as an immediate (zero) draw.
func (s *Source) Exponential(mean float64) int64 {
	if mean <= 0 {
		return 0
	}
	d := distuv.Exponential{Rate: 1.0 / mean, Src: s.rng}
	return int64(math.Round(d.Rand()))
}
