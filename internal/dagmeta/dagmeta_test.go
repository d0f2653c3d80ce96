package dagmeta

import "testing"

func TestTaskGraphReadyNodesRootOnly(t *testing.T) {
	g := NewTaskGraph([]int{0, 1, 2}, [][2]int{{0, 1}, {0, 2}})
	ready := g.ReadyNodes()
	if len(ready) != 1 || ready[0] != 0 {
		t.Fatalf("expected only root ready, got %v", ready)
	}
}

func TestTaskGraphRetireUnblocksChildren(t *testing.T) {
	g := NewTaskGraph([]int{0, 1, 2, 3}, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}})
	g.MarkEnqueued(0)
	g.Retire(0)

	ready := g.ReadyNodes()
	if len(ready) != 2 || ready[0] != 1 || ready[1] != 2 {
		t.Fatalf("expected [1,2] ready after root retires, got %v", ready)
	}

	g.MarkEnqueued(1)
	g.MarkEnqueued(2)
	g.Retire(1)
	if ready := g.ReadyNodes(); len(ready) != 0 {
		t.Fatalf("task 3 must stay blocked until task 2 also retires, got %v", ready)
	}

	g.Retire(2)
	ready = g.ReadyNodes()
	if len(ready) != 1 || ready[0] != 3 {
		t.Fatalf("expected [3] ready once both diamond arms retire, got %v", ready)
	}
}

func TestTaskGraphEmptyAfterAllRetired(t *testing.T) {
	g := NewTaskGraph([]int{0, 1}, [][2]int{{0, 1}})
	if g.Empty() {
		t.Fatalf("fresh graph must not be empty")
	}
	g.Retire(0)
	g.Retire(1)
	if !g.Empty() {
		t.Fatalf("expected graph empty once every node retires")
	}
}

func TestRegistryAdmitLookupRetireInvariant(t *testing.T) {
	r := NewRegistry()
	d1 := &DAG{ID: 1, Graph: NewTaskGraph([]int{0}, nil)}
	d2 := &DAG{ID: 2, Graph: NewTaskGraph([]int{0}, nil)}
	r.Admit(d1)
	r.Admit(d2)

	if r.Len() != 2 {
		t.Fatalf("expected 2 active dags, got %d", r.Len())
	}
	if _, ok := r.Lookup(1); !ok {
		t.Fatalf("expected to find dag 1")
	}

	r.Retire(1)
	if r.Len() != 1 {
		t.Fatalf("expected 1 active dag after retire, got %d", r.Len())
	}
	if _, ok := r.Lookup(1); ok {
		t.Fatalf("dag 1 must be unreachable after retire")
	}
	active := r.IterActive()
	if len(active) != 1 || active[0] != 2 {
		t.Fatalf("expected active list [2], got %v", active)
	}
}
