// Package serverpool implements spec.md §4.D: a typed pool of servers with
// busy/idle state, current-job bookkeeping, and aggregate utilization stats.
// Servers are owned exclusively by the simulator context (spec §5) — the DAG
// manager never reaches into this package.
package serverpool

import "github.com/swarmguard/stompsim/internal/distsample"

// State is a server's position in the IDLE -> BUSY -> IDLE state machine.
type State int

const (
	Idle State = iota
	Busy
)

// Task is the minimal shape a server needs to know about its current job;
// it mirrors the ready-task descriptor's identity fields without importing
// the bridge package (which would create an import cycle back here).
type Task struct {
	DAGID                int
	TID                  int
	DAGType              string
	EffectiveArrivalTime int64
}

// Server is one execution unit of a given type (spec glossary: server type).
type Server struct {
	ID   int
	Type string

	state State
	task  Task

	startTime       int64
	endExact        int64
	endEstimated    int64
	lastServiceTime int64

	BusyTime       int64
	NumRequests    int
	LastStoppedAt  int64
}

func (s *Server) Busy() bool         { return s.state == Busy }
func (s *Server) CurrentTask() Task  { return s.task }
func (s *Server) EndExact() int64    { return s.endExact }
func (s *Server) EndEstimated() int64 { return s.endEstimated }
func (s *Server) StartTime() int64   { return s.startTime }
func (s *Server) LastServiceTime() int64 { return s.lastServiceTime }

// Assign flips an IDLE server to BUSY, samples a service time from
// Normal(mean, stdev), and records the exact/estimated completion instants
// (spec §4.D). Assign panics if the server is not IDLE — callers (policies)
// must only ever pick IDLE servers; a BUSY server reaching Assign is a
// PolicyError the caller is responsible for raising before it gets here.
func (s *Server) Assign(src *distsample.Source, simTime int64, task Task, mean, stdev float64) int64 {
	if s.state == Busy {
		panic("serverpool: Assign called on a busy server")
	}
	serviceTime := src.NormalRounded(mean, stdev)
	s.state = Busy
	s.task = task
	s.startTime = simTime
	s.endExact = simTime + serviceTime
	s.endEstimated = simTime + int64(mean)
	s.lastServiceTime = serviceTime
	s.NumRequests++
	s.BusyTime += serviceTime
	return serviceTime
}

// Release flips a BUSY server back to IDLE (spec §4.D).
func (s *Server) Release(simTime int64) {
	s.state = Idle
	s.task = Task{}
	s.LastStoppedAt = simTime
}

// Pool groups servers by type and tracks available/busy counts per type.
type Pool struct {
	servers      []*Server
	byType       map[string][]*Server
	available    map[string]int
	configured   map[string]int
}

// New builds a pool given server_type -> count, assigning monotonic ids in
// the order types are iterated (spec §4.D).
func New(counts map[string]int, order []string) *Pool {
	p := &Pool{
		byType:     make(map[string][]*Server),
		available:  make(map[string]int),
		configured: make(map[string]int),
	}
	id := 0
	for _, t := range order {
		n := counts[t]
		p.configured[t] = n
		p.available[t] = n
		for i := 0; i < n; i++ {
			srv := &Server{ID: id, Type: t}
			p.servers = append(p.servers, srv)
			p.byType[t] = append(p.byType[t], srv)
			id++
		}
	}
	return p
}

// ByType returns the servers of a given type, in id order.
func (p *Pool) ByType(t string) []*Server { return p.byType[t] }

// All returns every server in the pool, in id order.
func (p *Pool) All() []*Server { return p.servers }

// Available returns the idle-server count for a type.
func (p *Pool) Available(t string) int { return p.available[t] }

// Configured returns the configured total for a type.
func (p *Pool) Configured(t string) int { return p.configured[t] }

// MarkAssigned decrements the available count for the server's type. Callers
// invoke this immediately after Assign succeeds.
func (p *Pool) MarkAssigned(t string) { p.available[t]-- }

// MarkReleased increments the available count for the server's type.
func (p *Pool) MarkReleased(t string) { p.available[t]++ }

// BusyCount returns the total number of busy servers across all types.
func (p *Pool) BusyCount() int {
	busy := 0
	for t, n := range p.configured {
		busy += n - p.available[t]
	}
	return busy
}

// EarliestEnd returns the BUSY server with the smallest EndExact, breaking
// ties by lowest server id (spec §4.D), or nil if no server is busy.
func (p *Pool) EarliestEnd() *Server {
	var best *Server
	for _, s := range p.servers {
		if !s.Busy() {
			continue
		}
		if best == nil || s.endExact < best.endExact || (s.endExact == best.endExact && s.ID < best.ID) {
			best = s
		}
	}
	return best
}
