// Package policy implements spec.md §4.E: the scheduling-policy capability
// set and a name -> constructor registry, following the orchestrator
// teacher's tagged-variant dispatch for task executors (no runtime plugin
// loading, per spec §9 Design Notes).
package policy

import (
	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/simerr"
	"github.com/swarmguard/stompsim/internal/stats"
)

// Params carries the knobs a policy may read at Init. Policies never parse
// config themselves (spec non-goal: no config-file/CLI parsing) — the
// cmd/stompsim entrypoint builds Params from env-derived Config and hands it
// over once.
type Params struct {
	ServerTypeOrder []string
	Extra           map[string]string
}

// Decision is what Pick returns: the server chosen and the ready task bound
// to it, or Picked == false if nothing could be scheduled this tick.
type Decision struct {
	Picked bool
	Server *serverpool.Server
	Task   bridge.ReadyTask
}

// SchedulingPolicy is the three-operation capability set spec §4.E requires:
// Init binds the policy to its pool/stats/params once at startup, Pick is
// called after every event with the current ready queue and must choose at
// most one (server, task) pair, OnRelease notifies the policy a server just
// went idle so stateful policies (e.g. work-stealing) can react.
type SchedulingPolicy interface {
	Init(pool *serverpool.Pool, agg *stats.Aggregate, params Params) error
	Pick(simTime int64, ready []bridge.ReadyTask) Decision
	OnRelease(simTime int64, server *serverpool.Server)
}

// Constructor builds a fresh, uninitialized policy instance.
type Constructor func() SchedulingPolicy

var registry = map[string]Constructor{
	"firstfit": func() SchedulingPolicy { return &FirstFit{} },
}

// Register adds a named policy constructor. Intended to be called from an
// init() in a file that defines a new policy, keeping the registry a
// compile-time table rather than a runtime plugin mechanism.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New builds a named policy, or a simerr PolicyError if the name is unknown.
func New(name string) (SchedulingPolicy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, simerr.New(simerr.Policy, "policy.New", simerr.Errorf("unknown policy %q", name))
	}
	return ctor(), nil
}
