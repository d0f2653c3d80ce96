package workload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadArrivalTraceScalesAndToleratesHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "arrivals.csv", "arrival_time,dag_id,dag_type\n0,1,typeA\n3,2,typeB\n")

	records, err := LoadArrivalTrace(context.Background(), path, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ArrivalTime != 0 || records[1].ArrivalTime != 30 {
		t.Fatalf("expected scaled arrival times [0,30], got [%d,%d]", records[0].ArrivalTime, records[1].ArrivalTime)
	}
	if records[1].DAGID != 2 || records[1].DAGType != "typeB" {
		t.Fatalf("unexpected record: %+v", records[1])
	}
}

func TestLoadArrivalTraceMissingFileIsFatal(t *testing.T) {
	if _, err := LoadArrivalTrace(context.Background(), "/nonexistent/path.csv", 1); err == nil {
		t.Fatalf("expected an error for a missing arrival trace")
	}
}

func TestLoadGraphDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "cycle.yaml", "nodes: [0, 1]\nedges: [[0, 1], [1, 0]]\n")
	if _, err := LoadGraph(context.Background(), path); err == nil {
		t.Fatalf("expected a GraphError for a cyclic graph")
	}
}

func TestLoadGraphAcceptsDAG(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "diamond.yaml", "nodes: [0, 1, 2, 3]\nedges: [[0, 1], [0, 2], [1, 3], [2, 3]]\n")
	g, err := LoadGraph(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Nodes) != 4 || len(g.Edges) != 4 {
		t.Fatalf("unexpected graph shape: %+v", g)
	}
}

func TestLoadComputeMatrixFixedColumnOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "matrix.txt", "tid,base_cost,cpu_core,gpu,accel\n0,10,10,6,4\n1,5,5,3,2\n")

	rows, err := LoadComputeMatrix(context.Background(), path, []string{"cpu_core", "gpu", "accel"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].MeanByType["gpu"] != 6 || rows[1].MeanByType["accel"] != 2 {
		t.Fatalf("unexpected column mapping: %+v", rows)
	}
}

func TestBuildDAGAssemblesCostTableInServerTypeOrder(t *testing.T) {
	g := &GraphFile{Nodes: []int{0, 1}, Edges: [][2]int{{0, 1}}}
	matrix := map[int]ComputeRow{
		0: {BaseCost: 10, MeanByType: map[string]float64{"cpu_core": 10, "gpu": 6}},
		1: {BaseCost: 5, MeanByType: map[string]float64{"cpu_core": 5, "gpu": 3}},
	}
	stdev := StdevConfig{"cpu_core": 2, "gpu": 1}
	rec := ArrivalRecord{DAGID: 1, DAGType: "T", ArrivalTime: 7}

	dag := BuildDAG(rec, g, matrix, stdev, []string{"cpu_core", "gpu"})
	if dag.ArrivalTime != 7 || dag.ReadyTime != 7 {
		t.Fatalf("expected ready_time initialized to arrival_time, got %+v", dag)
	}
	task, ok := dag.Graph.Task(0)
	if !ok || len(task.CostTable) != 2 {
		t.Fatalf("expected task 0 to carry a 2-entry cost table, got %+v", task)
	}
	if task.CostTable[0].ServerType != "cpu_core" || task.CostTable[0].Stdev != 2 {
		t.Fatalf("unexpected cost table entry: %+v", task.CostTable[0])
	}
}
