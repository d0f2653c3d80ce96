// Package workload implements spec.md §4.A: loading the DAG arrival trace,
// per-DAG graph file, and per-DAG compute-time matrix into the in-memory
// structures dagmeta.Registry consumes. File reads are wrapped in
// internal/resilience.Retry (transient I/O on a shared/network filesystem),
// grounded on dag_engine.go's executeTask retrying external calls.
package workload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/swarmguard/stompsim/internal/dagmeta"
	"github.com/swarmguard/stompsim/internal/resilience"
	"github.com/swarmguard/stompsim/internal/simerr"
)

// ServerTypeOrder is the fixed declared order of server types in the
// compute-time matrix's columns (spec §6).
var ServerTypeOrder = []string{"cpu_core", "gpu", "accel"}

// ArrivalRecord is one row of the DAG arrival trace (spec §4.A / §6).
type ArrivalRecord struct {
	ArrivalTime int64
	DAGID       int
	DAGType     string
}

// GraphFile is the YAML DAG graph shape (spec §8/SPEC_FULL §8): an edge list
// keyed by dag_type, the Go-native stand-in for the original's GraphML.
type GraphFile struct {
	Nodes []int     `yaml:"nodes"`
	Edges [][2]int  `yaml:"edges"`
}

// ComputeRow is one task's row of the compute-time matrix: base cost plus
// mean service time per server type, in ServerTypeOrder.
type ComputeRow struct {
	BaseCost    float64
	MeanByType  map[string]float64
}

// StdevConfig supplies the per-server-type stdev spec §4.A says is "carried
// separately in the task parameters" rather than the matrix file.
type StdevConfig map[string]float64

// Params bounds what the loader reads from the filesystem; it never parses
// a config file itself (spec non-goal). The loader functions take the scale
// and stdev values as plain arguments, and cmd/stompsim passes them that way
// rather than through this struct.
type Params struct {
	ArrivalTraceScale int64
	Stdev             StdevConfig
}

// LoadArrivalTrace reads the comma-separated arrival trace (spec §6):
// `arrival_time,dag_id,dag_type` per line, tolerating blank lines and a
// header row, scaling arrival_time by scale.
func LoadArrivalTrace(ctx context.Context, path string, scale int64) ([]ArrivalRecord, error) {
	data, err := readFileRetried(ctx, path)
	if err != nil {
		return nil, simerr.New(simerr.Trace, "workload.LoadArrivalTrace", err)
	}

	var records []ArrivalRecord
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	lineNo := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, simerr.New(simerr.Trace, "workload.LoadArrivalTrace", err)
		}
		lineNo++
		if len(fields) == 0 || (len(fields) == 1 && strings.TrimSpace(fields[0]) == "") {
			continue
		}
		if len(fields) < 3 {
			if lineNo == 1 {
				continue // tolerate a header row
			}
			return nil, simerr.New(simerr.Trace, "workload.LoadArrivalTrace",
				fmt.Errorf("line %d: expected 3 fields, got %d", lineNo, len(fields)))
		}
		arrival, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			if lineNo == 1 {
				continue // header row with non-numeric arrival_time column
			}
			return nil, simerr.New(simerr.Trace, "workload.LoadArrivalTrace", err)
		}
		dagID, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, simerr.New(simerr.Trace, "workload.LoadArrivalTrace", err)
		}
		records = append(records, ArrivalRecord{
			ArrivalTime: arrival * scale,
			DAGID:       dagID,
			DAGType:     strings.TrimSpace(fields[2]),
		})
	}
	return records, nil
}

// LoadGraph reads a YAML DAG graph file (SPEC_FULL §8).
func LoadGraph(ctx context.Context, path string) (*GraphFile, error) {
	data, err := readFileRetried(ctx, path)
	if err != nil {
		return nil, simerr.New(simerr.Graph, "workload.LoadGraph", err)
	}
	var g GraphFile
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, simerr.New(simerr.Graph, "workload.LoadGraph", err)
	}
	if len(g.Nodes) == 0 {
		return nil, simerr.New(simerr.Graph, "workload.LoadGraph", fmt.Errorf("%s: empty graph", path))
	}
	if cyclic(g) {
		return nil, simerr.New(simerr.Graph, "workload.LoadGraph", fmt.Errorf("%s: cycle detected", path))
	}
	return &g, nil
}

// cyclic reports whether the edge list contains a cycle, via a simple
// Kahn's-algorithm in-degree reduction (spec §3: the graph file "must yield
// a directed acyclic graph").
func cyclic(g GraphFile) bool {
	inDegree := make(map[int]int, len(g.Nodes))
	children := make(map[int][]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n] = 0
	}
	for _, e := range g.Edges {
		inDegree[e[1]]++
		children[e[0]] = append(children[e[0]], e[1])
	}
	var queue []int
	for _, n := range g.Nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range children[n] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	return visited != len(g.Nodes)
}

// LoadComputeMatrix reads the compute-time matrix CSV (spec §6): a header
// row, then one row per task `tid, base_cost, time_on_type_0, ...` in
// ServerTypeOrder.
func LoadComputeMatrix(ctx context.Context, path string, serverTypeOrder []string) (map[int]ComputeRow, error) {
	data, err := readFileRetried(ctx, path)
	if err != nil {
		return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix", err)
	}
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	rows := make(map[int]ComputeRow)
	lineNo := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix", err)
		}
		lineNo++
		if lineNo == 1 {
			continue // header row, ignored per spec §6
		}
		if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		want := 2 + len(serverTypeOrder)
		if len(fields) < want {
			return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix",
				fmt.Errorf("line %d: expected >= %d fields, got %d", lineNo, want, len(fields)))
		}
		tid, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix", err)
		}
		baseCost, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix", err)
		}
		meanByType := make(map[string]float64, len(serverTypeOrder))
		for i, t := range serverTypeOrder {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[2+i]), 64)
			if err != nil {
				return nil, simerr.New(simerr.Config, "workload.LoadComputeMatrix", err)
			}
			meanByType[t] = v
		}
		rows[tid] = ComputeRow{BaseCost: baseCost, MeanByType: meanByType}
	}
	return rows, nil
}

// BuildDAG assembles a *dagmeta.DAG from a loaded graph and compute matrix
// for one arrival record (spec §4.A/§4.B admission).
func BuildDAG(rec ArrivalRecord, g *GraphFile, matrix map[int]ComputeRow, stdev StdevConfig, serverTypeOrder []string) *dagmeta.DAG {
	graph := dagmeta.NewTaskGraph(g.Nodes, g.Edges)
	for _, tid := range g.Nodes {
		row, ok := matrix[tid]
		if !ok {
			continue
		}
		table := make([]dagmeta.ServerCost, 0, len(serverTypeOrder))
		for _, t := range serverTypeOrder {
			table = append(table, dagmeta.ServerCost{
				ServerType: t,
				Mean:       row.MeanByType[t],
				Stdev:      stdev[t],
			})
		}
		graph.SetTaskCost(tid, row.BaseCost, table)
	}
	return &dagmeta.DAG{
		ID:          rec.DAGID,
		Type:        rec.DAGType,
		ArrivalTime: rec.ArrivalTime,
		ReadyTime:   rec.ArrivalTime,
		Graph:       graph,
	}
}

func readFileRetried(ctx context.Context, path string) ([]byte, error) {
	return resilience.Retry(ctx, 3, 50*time.Millisecond, func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return data, nil
	})
}
