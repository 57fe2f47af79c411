// Package telemetry wires the ambient observability stack: an OpenTelemetry
// tracer provider plus Prometheus counters/histograms (cache hit rate,
// adapter latency, loop step counts) registered on the registry served at
// /metrics. No code outside this package updates those metrics, so they
// stay at their zero values in a running service. Grounded on the
// teacher's internal/runtime.SetupTelemetry, sized down to the exporters
// this module actually depends on.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/config"
)

// Telemetry owns the tracer provider lifecycle, the Prometheus registry,
// and the metrics this package registers on it.
type Telemetry struct {
	tp       *sdktrace.TracerProvider
	Registry *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	AdapterLatency *prometheus.HistogramVec
	LoopSteps      prometheus.Histogram
	AdmissionDenies *prometheus.CounterVec
}

// Setup initializes tracing and the metrics registry for a service name.
// When cfg.Enabled is false, no tracer provider is installed and the
// returned tracer comes from the global provider (a no-op unless one was
// set elsewhere), so callers never need to branch on whether telemetry is
// active.
func Setup(ctx context.Context, cfg config.TelemetryConfig, serviceName string) (*Telemetry, trace.Tracer, error) {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		Registry: reg,
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepresearch_cache_hits_total",
			Help: "Number of cache lookups served without invoking compute().",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepresearch_cache_misses_total",
			Help: "Number of cache lookups that fell through to compute().",
		}),
		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepresearch_adapter_latency_seconds",
			Help:    "Latency of outbound adapter calls (search, scrape, llm) by adapter name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter"}),
		LoopSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deepresearch_loop_steps",
			Help:    "Number of plan/search/evaluate steps taken before a final answer.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),
		AdmissionDenies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_admission_denied_total",
			Help: "Number of requests rejected by the rate limiter, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(t.CacheHits, t.CacheMisses, t.AdapterLatency, t.LoopSteps, t.AdmissionDenies)

	if !cfg.Enabled {
		tracer := otel.Tracer(serviceName)
		return t, tracer, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	t.tp = tp

	tracer := tp.Tracer(serviceName, trace.WithInstrumentationAttributes(
		attribute.String("service.name", serviceName),
	))
	return t, tracer, nil
}

// Shutdown flushes the tracer provider, if one was started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer shutdown: %w", err)
	}
	return nil
}

// ObserveAdapterLatency records how long an outbound adapter call took.
func (t *Telemetry) ObserveAdapterLatency(adapter string, d time.Duration) {
	if t == nil {
		return
	}
	t.AdapterLatency.WithLabelValues(adapter).Observe(d.Seconds())
}
