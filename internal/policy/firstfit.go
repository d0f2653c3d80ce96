package policy

import (
	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/stats"
)

// FirstFit is the default policy named in spec §8's end-to-end scenarios:
// scan the ready queue in order, and for the first task that can be placed
// bind to the first idle server of the first server type in that task's
// cost table that has an idle server, per spec §4.E ("bind to first idle server of first
// listed type that can run the task").
type FirstFit struct {
	pool   *serverpool.Pool
	agg    *stats.Aggregate
	params Params
}

func (f *FirstFit) Init(pool *serverpool.Pool, agg *stats.Aggregate, params Params) error {
	f.pool = pool
	f.agg = agg
	f.params = params
	return nil
}

func (f *FirstFit) Pick(simTime int64, ready []bridge.ReadyTask) Decision {
	for _, task := range ready {
		for _, cost := range task.CostTable {
			servers := f.pool.ByType(cost.ServerType)
			for _, srv := range servers {
				if !srv.Busy() {
					return Decision{Picked: true, Server: srv, Task: task}
				}
			}
		}
	}
	return Decision{}
}

func (f *FirstFit) OnRelease(simTime int64, server *serverpool.Server) {}
