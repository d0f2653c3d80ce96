// Command stompsim runs the discrete-event DAG scheduling simulator. It is a
// thin wrapper that builds one Params/Config from environment variables
// (never a config file or CLI flags — spec.md's non-goal), wires the
// ambient stack, and exposes an optional HTTP control surface, following
// services/orchestrator/main.go's net/http + http.ServeMux style.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/stompsim/internal/bridge"
	"github.com/swarmguard/stompsim/internal/dagmeta"
	"github.com/swarmguard/stompsim/internal/distsample"
	"github.com/swarmguard/stompsim/internal/logging"
	"github.com/swarmguard/stompsim/internal/otelinit"
	"github.com/swarmguard/stompsim/internal/policy"
	"github.com/swarmguard/stompsim/internal/resilience"
	"github.com/swarmguard/stompsim/internal/runstore"
	"github.com/swarmguard/stompsim/internal/serverpool"
	"github.com/swarmguard/stompsim/internal/simerr"
	"github.com/swarmguard/stompsim/internal/simsched"
	"github.com/swarmguard/stompsim/internal/stats"
	"github.com/swarmguard/stompsim/internal/stomp"
	"github.com/swarmguard/stompsim/internal/workload"
)

// Config is assembled once at startup from env vars with defaults, per
// SPEC_FULL §3.3: the core packages never parse config themselves.
type Config struct {
	ServerCounts map[string]int
	ServerMean   map[string]float64
	ServerStdev  map[string]float64

	ArrivalTracePath string
	GraphDir         string
	MatrixDir        string
	ArrivalScale     int64
	StdevFactor      string

	MaxTasksSimulated int64
	MaxQueueSize      int
	MeanArrivalTime   float64
	PowerMgmtEnabled  bool

	PolicyName string
	Seed       uint64

	DataDir  string
	HTTPAddr string
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		ServerCounts:      map[string]int{"cpu_core": 4, "gpu": 2, "accel": 1},
		ServerMean:        map[string]float64{"cpu_core": 10, "gpu": 6, "accel": 4},
		ServerStdev:       map[string]float64{"cpu_core": 2, "gpu": 1, "accel": 0},
		ArrivalTracePath:  getEnvDefault("STOMPSIM_ARRIVAL_TRACE", "./data/arrivals.csv"),
		GraphDir:          getEnvDefault("STOMPSIM_GRAPH_DIR", "./data/graphs"),
		MatrixDir:         getEnvDefault("STOMPSIM_MATRIX_DIR", "./data/matrices"),
		ArrivalScale:      1,
		StdevFactor:       getEnvDefault("STOMPSIM_STDEV_FACTOR", "1"),
		MaxTasksSimulated: 1000,
		MaxQueueSize:      0,
		MeanArrivalTime:   10,
		PowerMgmtEnabled:  false,
		PolicyName:        getEnvDefault("STOMPSIM_POLICY", "firstfit"),
		Seed:              42,
		DataDir:           getEnvDefault("STOMPSIM_DATA_DIR", "./data"),
		HTTPAddr:          getEnvDefault("STOMPSIM_HTTP_ADDR", ":8080"),
	}

	if v := os.Getenv("STOMPSIM_SERVERS"); v != "" {
		counts, means, stdevs, err := parseServerSpec(v)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.ServerCounts, cfg.ServerMean, cfg.ServerStdev = counts, means, stdevs
	}
	if v := os.Getenv("STOMPSIM_ARRIVAL_SCALE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.ArrivalScale = n
	}
	if v := os.Getenv("STOMPSIM_MAX_TASKS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.MaxTasksSimulated = n
	}
	if v := os.Getenv("STOMPSIM_MAX_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.MaxQueueSize = n
	}
	if v := os.Getenv("STOMPSIM_MEAN_ARRIVAL_TIME"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.MeanArrivalTime = f
	}
	if v := os.Getenv("STOMPSIM_POWER_MGMT"); v != "" {
		cfg.PowerMgmtEnabled = strings.EqualFold(v, "1") || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("STOMPSIM_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, simerr.New(simerr.Config, "loadConfigFromEnv", err)
		}
		cfg.Seed = n
	}
	return cfg, nil
}

// parseServerSpec parses "type:count:mean:stdev,type:count:mean:stdev,...".
func parseServerSpec(spec string) (counts map[string]int, means, stdevs map[string]float64, err error) {
	counts = map[string]int{}
	means = map[string]float64{}
	stdevs = map[string]float64{}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			return nil, nil, nil, fmt.Errorf("invalid server spec entry %q", entry)
		}
		t := parts[0]
		count, err1 := strconv.Atoi(parts[1])
		mean, err2 := strconv.ParseFloat(parts[2], 64)
		stdev, err3 := strconv.ParseFloat(parts[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, nil, nil, fmt.Errorf("invalid server spec entry %q", entry)
		}
		counts[t], means[t], stdevs[t] = count, mean, stdev
	}
	return counts, means, stdevs, nil
}

func main() {
	logger := logging.Init("stompsim")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otelinit.InitTracer(ctx, "stompsim")
	shutdownMetrics, promHandler, gauges := otelinit.InitMetrics(ctx, "stompsim")
	defer otelinit.Flush(context.Background(), shutdownTracer)
	defer otelinit.Flush(context.Background(), shutdownMetrics)

	cfg, err := loadConfigFromEnv()
	if err != nil {
		logger.Error("fatal config error", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("fatal: cannot create data dir", "error", err)
		os.Exit(1)
	}

	meter := otel.Meter("stompsim")
	store, err := runstore.Open(cfg.DataDir, meter)
	if err != nil {
		logger.Error("fatal: cannot open run store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	replayScheduler := simsched.New(meter)
	if cronExpr := os.Getenv("STOMPSIM_REPLAY_CRON"); cronExpr != "" {
		if _, err := replayScheduler.AddReplay(cronExpr, func(replayCtx context.Context) error {
			_, _, _, err := executeRun(replayCtx, cfg, store)
			return err
		}); err != nil {
			logger.Warn("invalid replay cron expression, skipping", "cron", cronExpr, "error", err)
		} else {
			replayScheduler.Start()
			defer replayScheduler.Stop()
		}
	}

	runLimiter := resilience.NewHybridRateLimiter(meter, 4, 1, 16, 200*time.Millisecond)
	defer runLimiter.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := runLimiter.AllowOrWait(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		var req runRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		runCfg := cfg
		req.applyOverrides(&runCfg)

		runID, results, simTime, err := executeRun(r.Context(), runCfg, store)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		gauges.TasksServiced.Add(float64(len(results)))
		_ = simTime
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runResponse{RunID: runID, Results: results})
	})
	mux.HandleFunc("/v1/runs/", func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
		rec, ok := store.GetRun(runID)
		if !ok {
			http.NotFound(w, r)
			return
		}
		results, err := store.GetResults(r.Context(), runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runResponse{RunID: runID, Status: string(rec.Status), Results: results})
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("http control surface listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	wg.Wait()
}

type runRequest struct {
	ArrivalTracePath *string `json:"arrival_trace_path,omitempty"`
	GraphDir         *string `json:"graph_dir,omitempty"`
	MatrixDir        *string `json:"matrix_dir,omitempty"`
	PolicyName       *string `json:"policy,omitempty"`
}

func (req runRequest) applyOverrides(cfg *Config) {
	if req.ArrivalTracePath != nil {
		cfg.ArrivalTracePath = *req.ArrivalTracePath
	}
	if req.GraphDir != nil {
		cfg.GraphDir = *req.GraphDir
	}
	if req.MatrixDir != nil {
		cfg.MatrixDir = *req.MatrixDir
	}
	if req.PolicyName != nil {
		cfg.PolicyName = *req.PolicyName
	}
}

type runResponse struct {
	RunID   string           `json:"run_id"`
	Status  string           `json:"status,omitempty"`
	Results []dagmeta.Result `json:"results,omitempty"`
}

// executeRun loads the workload, wires the bridge/pool/registry/policy, and
// runs the manager and simulator contexts concurrently to completion (spec
// §5: two cooperating execution contexts realized as goroutines).
func executeRun(ctx context.Context, cfg Config, store *runstore.Store) (string, []dagmeta.Result, int64, error) {
	runID, err := store.NewRun(ctx)
	if err != nil {
		return "", nil, 0, err
	}

	records, err := workload.LoadArrivalTrace(ctx, cfg.ArrivalTracePath, cfg.ArrivalScale)
	if err != nil {
		store.MarkFailed(ctx, runID, err)
		return runID, nil, 0, err
	}

	registry := dagmeta.NewRegistry()
	graphCache := map[string]*workload.GraphFile{}
	matrixCache := map[string]map[int]workload.ComputeRow{}

	for _, rec := range records {
		g, ok := graphCache[rec.DAGType]
		if !ok {
			g, err = workload.LoadGraph(ctx, filepath.Join(cfg.GraphDir, "random_dag_"+rec.DAGType+".yaml"))
			if err != nil {
				store.MarkFailed(ctx, runID, err)
				return runID, nil, 0, err
			}
			graphCache[rec.DAGType] = g
		}
		matrixKey := rec.DAGType + "_" + cfg.StdevFactor
		matrix, ok := matrixCache[matrixKey]
		if !ok {
			matrix, err = workload.LoadComputeMatrix(ctx,
				filepath.Join(cfg.MatrixDir, fmt.Sprintf("random_comp_%s_%s.txt", rec.DAGType, cfg.StdevFactor)),
				workload.ServerTypeOrder)
			if err != nil {
				store.MarkFailed(ctx, runID, err)
				return runID, nil, 0, err
			}
			matrixCache[matrixKey] = matrix
		}
		dag := workload.BuildDAG(rec, g, matrix, workload.StdevConfig(cfg.ServerStdev), workload.ServerTypeOrder)
		registry.Admit(dag)
	}

	br := bridge.New()
	pool := serverpool.New(cfg.ServerCounts, workload.ServerTypeOrder)
	src := distsample.New(cfg.Seed)
	meter := otel.Meter("stompsim")
	agg := stats.New(meter, 1)

	pol, err := policy.New(cfg.PolicyName)
	if err != nil {
		store.MarkFailed(ctx, runID, err)
		return runID, nil, 0, err
	}
	if cfg.PolicyName != "firstfit" {
		pol = policy.NewGuarded(pol)
	}
	if err := pol.Init(pool, agg, policy.Params{ServerTypeOrder: workload.ServerTypeOrder}); err != nil {
		store.MarkFailed(ctx, runID, err)
		return runID, nil, 0, err
	}

	meanByType := map[string]float64{}
	for t, v := range cfg.ServerMean {
		meanByType[t] = v
	}

	mgr := dagmeta.NewManager(registry, br, agg, cfg.MaxQueueSize)
	engine := stomp.NewEngine(pool, br, src, pol, agg, stomp.Params{
		MaxTasksSimulated: cfg.MaxTasksSimulated,
		MeanArrivalTime:   cfg.MeanArrivalTime,
		PowerMgmtEnabled:  cfg.PowerMgmtEnabled,
	})

	var wg sync.WaitGroup
	var results []dagmeta.Result
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		results = mgr.Run(ctx)
	}()
	wg.Wait()

	simTime := engine.SimTime()
	if err := store.PutResults(ctx, runID, results); err != nil {
		slog.Warn("failed to persist results", "run_id", runID, "error", err)
	}
	if err := store.PutTrace(ctx, runID, "", agg.GlobalTrace()); err != nil {
		slog.Warn("failed to persist global trace", "run_id", runID, "error", err)
	}
	for dagType := range agg.AvgResponseTimeByType() {
		if err := store.PutTrace(ctx, runID, dagType, agg.TraceByType(dagType)); err != nil {
			slog.Warn("failed to persist per-type trace", "run_id", runID, "dag_type", dagType, "error", err)
		}
	}
	if err := store.MarkComplete(ctx, runID, simTime); err != nil {
		slog.Warn("failed to mark run complete", "run_id", runID, "error", err)
	}
	return runID, results, simTime, nil
}
