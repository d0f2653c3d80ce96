package serverpool

import (
	"testing"

	"github.com/swarmguard/stompsim/internal/distsample"
)

func TestNewAssignsMonotonicIDsInTypeOrder(t *testing.T) {
	p := New(map[string]int{"cpu_core": 2, "gpu": 1}, []string{"cpu_core", "gpu"})
	if p.Configured("cpu_core") != 2 || p.Configured("gpu") != 1 {
		t.Fatalf("unexpected configured counts")
	}
	ids := make([]int, 0, 3)
	for _, s := range p.All() {
		ids = append(ids, s.ID)
	}
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("expected monotonic ids [0,1,2], got %v", ids)
	}
	if p.ByType("gpu")[0].ID != 2 {
		t.Fatalf("expected the gpu server to carry id 2")
	}
}

func TestAvailableBusyInvariant(t *testing.T) {
	p := New(map[string]int{"cpu_core": 2}, []string{"cpu_core"})
	src := distsample.New(1)
	srv := p.ByType("cpu_core")[0]

	srv.Assign(src, 0, Task{DAGID: 1, TID: 0}, 10, 0)
	p.MarkAssigned("cpu_core")
	if p.Available("cpu_core")+p.BusyCount() != p.Configured("cpu_core") {
		t.Fatalf("available+busy must equal configured")
	}
	if !srv.Busy() {
		t.Fatalf("expected server busy after Assign")
	}

	srv.Release(10)
	p.MarkReleased("cpu_core")
	if srv.Busy() {
		t.Fatalf("expected server idle after Release")
	}
	if p.Available("cpu_core") != 2 {
		t.Fatalf("expected both servers available again")
	}
}

func TestAssignStdevZeroIsDeterministic(t *testing.T) {
	p := New(map[string]int{"cpu_core": 1}, []string{"cpu_core"})
	src := distsample.New(1)
	srv := p.ByType("cpu_core")[0]

	serviceTime := srv.Assign(src, 100, Task{}, 10, 0)
	if serviceTime != 10 {
		t.Fatalf("expected service_time == mean when stdev == 0, got %d", serviceTime)
	}
	if srv.EndExact() != 110 || srv.EndEstimated() != 110 {
		t.Fatalf("expected end_exact and end_estimated both 110, got %d/%d", srv.EndExact(), srv.EndEstimated())
	}
}

func TestAssignPanicsOnBusyServer(t *testing.T) {
	p := New(map[string]int{"cpu_core": 1}, []string{"cpu_core"})
	src := distsample.New(1)
	srv := p.ByType("cpu_core")[0]
	srv.Assign(src, 0, Task{}, 10, 0)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assign on a busy server to panic")
		}
	}()
	srv.Assign(src, 1, Task{}, 10, 0)
}

func TestEarliestEndBreaksTiesByLowestID(t *testing.T) {
	p := New(map[string]int{"cpu_core": 2}, []string{"cpu_core"})
	src := distsample.New(1)
	servers := p.ByType("cpu_core")

	servers[1].Assign(src, 0, Task{}, 5, 0)
	servers[0].Assign(src, 0, Task{}, 5, 0)

	best := p.EarliestEnd()
	if best == nil || best.ID != 0 {
		t.Fatalf("expected tie broken by lowest id (0), got %+v", best)
	}
}

func TestEarliestEndNilWhenIdle(t *testing.T) {
	p := New(map[string]int{"cpu_core": 1}, []string{"cpu_core"})
	if p.EarliestEnd() != nil {
		t.Fatalf("expected nil earliest end on an all-idle pool")
	}
}
