// Package runstore persists completed simulation runs in BoltDB, adapted
// from services/orchestrator/persistence.go's WorkflowStore bucket pattern:
// the Go-native replacement for spec.md's flat out.csv / per-run trace
// files (SPEC_FULL §8), which remain available as read-only export views
// derived on demand from the same store.
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/stompsim/internal/dagmeta"
	"github.com/swarmguard/stompsim/internal/stats"
)

var (
	bucketRuns    = []byte("runs")
	bucketResults = []byte("results")
	bucketTraces  = []byte("traces")
)

// RunStatus mirrors a run's lifecycle through the store.
type RunStatus string

const (
	RunPending  RunStatus = "pending"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunRecord is the metadata row stored under bucketRuns.
type RunRecord struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	SimTime   int64     `json:"sim_time,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Store wraps a BoltDB handle with an in-memory hot cache of run metadata,
// matching WorkflowStore's memCache/executionCache split.
type Store struct {
	db    *bbolt.DB
	mu    sync.RWMutex
	cache map[string]RunRecord

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// Open creates or opens the run store at dbPath/runs.db.
func Open(dbPath string, meter metric.Meter) (*Store, error) {
	opts := &bbolt.Options{Timeout: 1 * time.Second}
	db, err := bbolt.Open(dbPath+"/runs.db", 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRuns, bucketResults, bucketTraces} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	readLatency, _ := meter.Float64Histogram("stompsim_runstore_read_ms")
	writeLatency, _ := meter.Float64Histogram("stompsim_runstore_write_ms")

	s := &Store{db: db, cache: make(map[string]RunRecord), readLatency: readLatency, writeLatency: writeLatency}
	if err := s.warmCache(); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm cache: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) warmCache() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			s.cache[rec.ID] = rec
			return nil
		})
	})
}

// NewRun creates a run record under a freshly generated run ID.
func (s *Store) NewRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	rec := RunRecord{ID: id, Status: RunPending, StartedAt: time.Now()}
	return id, s.putRun(ctx, rec)
}

func (s *Store) putRun(ctx context.Context, rec RunRecord) error {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "put_run")))
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(rec.ID), data)
	}); err != nil {
		return fmt.Errorf("put run: %w", err)
	}
	s.cache[rec.ID] = rec
	return nil
}

// MarkComplete finalizes a run's metadata once the manager raises META_DONE.
func (s *Store) MarkComplete(ctx context.Context, runID string, simTime int64) error {
	rec, ok := s.GetRun(runID)
	if !ok {
		return fmt.Errorf("runstore: unknown run %q", runID)
	}
	rec.Status = RunComplete
	rec.EndedAt = time.Now()
	rec.SimTime = simTime
	return s.putRun(ctx, rec)
}

// MarkFailed records a fatal startup error (spec §7) against the run.
func (s *Store) MarkFailed(ctx context.Context, runID string, cause error) error {
	rec, ok := s.GetRun(runID)
	if !ok {
		return fmt.Errorf("runstore: unknown run %q", runID)
	}
	rec.Status = RunFailed
	rec.EndedAt = time.Now()
	rec.Error = cause.Error()
	return s.putRun(ctx, rec)
}

// GetRun returns a run's metadata from the hot cache.
func (s *Store) GetRun(runID string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cache[runID]
	return rec, ok
}

// PutResults persists the ordered per-DAG result rows (spec §4.G
// termination output).
func (s *Store) PutResults(ctx context.Context, runID string, results []dagmeta.Result) error {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "put_results")))
	}()

	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResults).Put([]byte(runID), data)
	})
}

// GetResults returns the persisted result rows for a run, sorted by DAGID
// (spec §4.G: "sorted by dag_id ascending").
func (s *Store) GetResults(ctx context.Context, runID string) ([]dagmeta.Result, error) {
	start := time.Now()
	defer func() {
		s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "get_results")))
	}()

	var results []dagmeta.Result
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketResults).Get([]byte(runID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &results)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DAGID < results[j].DAGID })
	return results, nil
}

// traceKey namespaces global vs per-type traces within bucketTraces.
func traceKey(runID, dagType string) []byte {
	if dagType == "" {
		return []byte(runID + "/global")
	}
	return []byte(runID + "/" + dagType)
}

// PutTrace persists one trace (global if dagType == "") — the supplemented
// per-task-type running-average record from stomp.py's release_server
// (SPEC_FULL §6).
func (s *Store) PutTrace(ctx context.Context, runID, dagType string, points []stats.TracePoint) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTraces).Put(traceKey(runID, dagType), data)
	})
}

// GetTrace returns a previously persisted trace.
func (s *Store) GetTrace(ctx context.Context, runID, dagType string) ([]stats.TracePoint, error) {
	var points []stats.TracePoint
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTraces).Get(traceKey(runID, dagType))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &points)
	})
	return points, err
}

// ExportCSV renders the "DAG ID,DAG Type,Response Time" out.csv shape
// from persisted results.
func (s *Store) ExportCSV(ctx context.Context, runID string) (string, error) {
	results, err := s.GetResults(ctx, runID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("DAG ID,DAG Type,Response Time\n")
	for _, r := range results {
		fmt.Fprintf(&b, "%d,%s,%d\n", r.DAGID, r.DAGType, r.RespTime)
	}
	return b.String(), nil
}
