package otelinit

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// PromGauges mirrors a handful of OTLP push instruments as Prometheus pull
// gauges/counters, so the simulator can be scraped locally without a
// collector in front of it.
type PromGauges struct {
	QueueDepth    prometheus.Gauge
	BusyServers   prometheus.Gauge
	TasksServiced prometheus.Counter
}

// InitMetrics sets up the global OTLP metrics exporter (push) and a
// Prometheus registry (pull) served on the returned http.Handler.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, promHandler http.Handler, gauges PromGauges) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("service", service),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		shutdown = func(context.Context) error { return nil }
	} else {
		reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)
		shutdown = mp.Shutdown
		slog.Info("otlp metrics initialized", "endpoint", endpoint)
	}

	reg := prometheus.NewRegistry()
	gauges = PromGauges{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stompsim_ready_queue_depth",
			Help: "Current number of ready-task descriptors waiting in the bridge.",
		}),
		BusyServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stompsim_busy_servers",
			Help: "Current number of busy servers across all server types.",
		}),
		TasksServiced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stompsim_tasks_serviced_total",
			Help: "Total tasks retired by the event loop.",
		}),
	}
	reg.MustRegister(gauges.QueueDepth, gauges.BusyServers, gauges.TasksServiced)
	promHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return shutdown, promHandler, gauges
}
