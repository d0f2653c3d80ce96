// Package dagmeta implements spec.md §4.B / §4.G: the DAG registry and the
// manager loop that drains completions, advances each DAG's graph, and
// emits newly ready tasks into the bridge. Grounded on dag_engine.go's
// Kahn's-algorithm traversal, adapted from a single-shot workflow executor
// into a long-running registry of many concurrently in-flight DAGs.
package dagmeta

// TaskStatus is a node's position in the unscheduled -> enqueued -> running
// -> retired lifecycle (spec §3).
type TaskStatus int

const (
	Unscheduled TaskStatus = iota
	Enqueued
	Running
	Retired
)

// ServerCost is one entry of a task's per-server-type cost table.
type ServerCost struct {
	ServerType string
	Mean       float64
	Stdev      float64
}

// Task is a DAG node. Per spec §9 Design Notes, a Task never holds a
// pointer back to its owning DAG — callers resolve cross-references through
// (DAGID, TID) pairs via the Registry, avoiding an ownership cycle.
type Task struct {
	TID       int
	Status    TaskStatus
	BaseCost  float64
	CostTable []ServerCost
}

type node struct {
	task     Task
	children []int
	inDegree int
}

// TaskGraph is a DAG's owned, mutable dependency graph (spec §3). Nodes are
// removed on retirement; the graph is empty exactly when the DAG is
// terminal.
type TaskGraph struct {
	nodes map[int]*node
}

// NewTaskGraph builds a graph from a list of tids and an edge list (from ->
// to, "must precede"), computing in-degrees and child adjacency.
func NewTaskGraph(tids []int, edges [][2]int) *TaskGraph {
	g := &TaskGraph{nodes: make(map[int]*node, len(tids))}
	for _, tid := range tids {
		g.nodes[tid] = &node{task: Task{TID: tid}}
	}
	for _, e := range edges {
		from, to := e[0], e[1]
		if n, ok := g.nodes[from]; ok {
			n.children = append(n.children, to)
		}
		if n, ok := g.nodes[to]; ok {
			n.inDegree++
		}
	}
	return g
}

// SetTaskCost fills in a node's cost table and base cost, drawn from the
// compute-time matrix at load time (spec §4.A).
func (g *TaskGraph) SetTaskCost(tid int, baseCost float64, table []ServerCost) {
	if n, ok := g.nodes[tid]; ok {
		n.task.BaseCost = baseCost
		n.task.CostTable = table
	}
}

// Empty reports whether every node has been retired and removed — the DAG
// terminal condition (spec §3).
func (g *TaskGraph) Empty() bool { return len(g.nodes) == 0 }

// Retire removes tid from the graph and decrements the in-degree of every
// child, per spec §4.G step 1 ("remove the node").
func (g *TaskGraph) Retire(tid int) {
	n, ok := g.nodes[tid]
	if !ok {
		return
	}
	for _, c := range n.children {
		if cn, ok := g.nodes[c]; ok {
			cn.inDegree--
		}
	}
	delete(g.nodes, tid)
}

// ReadyNodes returns, in stable node-iteration order, the tids that are
// currently in-degree zero and Unscheduled (spec §4.G step 2). Per §9
// Design Notes the scan is over a snapshot: callers must not mutate the
// graph while iterating this slice, and MarkEnqueued below applies pending
// state changes only after the scan completes.
func (g *TaskGraph) ReadyNodes() []int {
	ids := g.sortedIDs()
	var out []int
	for _, tid := range ids {
		n := g.nodes[tid]
		if n.inDegree == 0 && n.task.Status == Unscheduled {
			out = append(out, tid)
		}
	}
	return out
}

// MarkEnqueued flips a node to Enqueued, applied after the ReadyNodes scan
// completes (spec §9: snapshot-then-apply to avoid concurrent-modification
// hazards).
func (g *TaskGraph) MarkEnqueued(tid int) {
	if n, ok := g.nodes[tid]; ok {
		n.task.Status = Enqueued
	}
}

// Task returns a copy of the node's Task data, or false if tid is absent
// (already retired, or never existed).
func (g *TaskGraph) Task(tid int) (Task, bool) {
	n, ok := g.nodes[tid]
	if !ok {
		return Task{}, false
	}
	return n.task, true
}

func (g *TaskGraph) sortedIDs() []int {
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	// NewTaskGraph keeps the tids exactly as the graph file lists them;
	// sorting them numerically gives a deterministic iteration order
	// regardless of Go's randomized map iteration.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// DAG is one admitted job (spec §3).
type DAG struct {
	ID          int
	Type        string
	ArrivalTime int64
	ReadyTime   int64
	RespTime    int64
	Graph       *TaskGraph
}

// Result is the terminal-state record spec §4.G emits on DAG retirement.
type Result struct {
	DAGID    int
	DAGType  string
	RespTime int64
}
