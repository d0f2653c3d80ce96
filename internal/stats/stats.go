// Package stats implements spec.md §4.H / §3 "Global counters": the
// statistics aggregate owned by the simulator, with no process-wide
// singletons (spec §9 Design Notes) — every engine constructs its own
// Aggregate and hands a reference to whatever trace sinks it wants fed.
package stats

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const histogramBins = 10

// TracePoint is one row of the response-time trace (spec §4.H): the sim_time
// a completion happened and the running average response time at that point.
type TracePoint struct {
	SimTime         int64
	AvgResponseTime float64
}

// Aggregate holds the global and per-type counters spec §3 requires, plus
// the time-weighted queue-size histogram.
type Aggregate struct {
	mu sync.Mutex

	tasksGenerated int64
	tasksServiced  int64
	servicedByType map[string]int64

	totalRespTime   float64
	respTimeByType  map[string]float64

	globalTrace []TracePoint
	traceByType map[string][]TracePoint

	histogram            [histogramBins]int64
	lastSizeChangeTime    int64
	binSize               int64

	// OTel instruments mirror the same counters for push-based export.
	respHistogram metric.Float64Histogram
	serviced      metric.Int64Counter
	generated     metric.Int64Counter
	capacityDrops metric.Int64Counter
	policyErrors  metric.Int64Counter
}

// New constructs an Aggregate. binSize matches spec §4.F's histogram
// bucketing (bin = min(queue_size/binSize, bins-1)); binSize must be >= 1.
func New(meter metric.Meter, binSize int64) *Aggregate {
	if binSize < 1 {
		binSize = 1
	}
	respHist, _ := meter.Float64Histogram("stompsim_response_time_ticks")
	serviced, _ := meter.Int64Counter("stompsim_tasks_serviced_total")
	generated, _ := meter.Int64Counter("stompsim_tasks_generated_total")
	capacityDrops, _ := meter.Int64Counter("stompsim_capacity_drops_total")
	policyErrors, _ := meter.Int64Counter("stompsim_policy_errors_total")
	return &Aggregate{
		servicedByType: make(map[string]int64),
		respTimeByType: make(map[string]float64),
		traceByType:    make(map[string][]TracePoint),
		binSize:        binSize,
		respHistogram:  respHist,
		serviced:       serviced,
		generated:      generated,
		capacityDrops:  capacityDrops,
		policyErrors:   policyErrors,
	}
}

// RecordGenerated increments the tasks-generated counter (spec §4.F: each
// successful pick increments the simulator's admission view).
func (a *Aggregate) RecordGenerated() {
	a.mu.Lock()
	a.tasksGenerated++
	a.mu.Unlock()
	a.generated.Add(context.Background(), 1)
}

// TasksGenerated returns the current count.
func (a *Aggregate) TasksGenerated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tasksGenerated
}

// RecordCompletion folds a completion into the global and per-type counters
// and appends a trace point to both traces (spec §4.H).
func (a *Aggregate) RecordCompletion(dagType string, simTime int64, respTime int64) {
	a.mu.Lock()
	a.tasksServiced++
	a.servicedByType[dagType]++
	a.totalRespTime += float64(respTime)
	a.respTimeByType[dagType] += float64(respTime)

	avgGlobal := a.totalRespTime / float64(a.tasksServiced)
	avgType := a.respTimeByType[dagType] / float64(a.servicedByType[dagType])
	a.globalTrace = append(a.globalTrace, TracePoint{SimTime: simTime, AvgResponseTime: avgGlobal})
	a.traceByType[dagType] = append(a.traceByType[dagType], TracePoint{SimTime: simTime, AvgResponseTime: avgType})
	a.mu.Unlock()

	a.serviced.Add(context.Background(), 1, metric.WithAttributes(attribute.String("dag_type", dagType)))
	a.respHistogram.Record(context.Background(), float64(respTime), metric.WithAttributes(attribute.String("dag_type", dagType)))
}

// RecordCapacityDrop logs a spec §7 CapacityError as a soft failure counter.
func (a *Aggregate) RecordCapacityDrop() {
	a.capacityDrops.Add(context.Background(), 1)
}

// RecordPolicyError logs a spec §7 PolicyError occurrence.
func (a *Aggregate) RecordPolicyError() {
	a.policyErrors.Add(context.Background(), 1)
}

// GlobalTrace returns a copy of the global response-time trace.
func (a *Aggregate) GlobalTrace() []TracePoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TracePoint, len(a.globalTrace))
	copy(out, a.globalTrace)
	return out
}

// TraceByType returns a copy of the per-type response-time trace.
func (a *Aggregate) TraceByType(dagType string) []TracePoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	src := a.traceByType[dagType]
	out := make([]TracePoint, len(src))
	copy(out, src)
	return out
}

// AvgResponseTime returns the running global average response time.
func (a *Aggregate) AvgResponseTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tasksServiced == 0 {
		return 0
	}
	return a.totalRespTime / float64(a.tasksServiced)
}

// AvgResponseTimeByType returns per-type averages keyed by dag_type.
func (a *Aggregate) AvgResponseTimeByType() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.respTimeByType))
	for t, total := range a.respTimeByType {
		if n := a.servicedByType[t]; n > 0 {
			out[t] = total / float64(n)
		}
	}
	return out
}

// UpdateHistogram folds the current queue size into the time-weighted
// 10-bin histogram as of simTime (spec §4.F: evaluated at every queue-size
// transition).
func (a *Aggregate) UpdateHistogram(simTime int64, queueSize int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bin := int64(queueSize) / a.binSize
	if bin >= histogramBins {
		bin = histogramBins - 1
	}
	timePeriod := simTime - a.lastSizeChangeTime
	a.histogram[bin] += timePeriod
	a.lastSizeChangeTime = simTime
}

// NormalizedHistogram returns the histogram bins as percentages of total
// accumulated time (spec §4.F: "bins are normalized to percentages").
func (a *Aggregate) NormalizedHistogram() [histogramBins]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, v := range a.histogram {
		total += v
	}
	var out [histogramBins]float64
	if total == 0 {
		return out
	}
	for i, v := range a.histogram {
		out[i] = 100 * float64(v) / float64(total)
	}
	return out
}

// RawHistogramSum returns the pre-normalization bin sum, which spec §8
// requires to equal sim_time exactly.
func (a *Aggregate) RawHistogramSum() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, v := range a.histogram {
		total += v
	}
	return total
}

// Per-server busy time is not aggregated here: it lives on each
// serverpool.Server (BusyTime); stats itself only aggregates task-level
// counters, per spec §3's ownership split.
