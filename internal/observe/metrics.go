// Package observe provides application-wide observability primitives for
// Lumen: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lumen metrics.
const meterName = "github.com/lumenlabs/lumen"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ScriptDuration tracks script generation latency (LLM round-trips
	// included).
	ScriptDuration metric.Float64Histogram

	// SynthDuration tracks segmented speech synthesis latency.
	SynthDuration metric.Float64Histogram

	// CoeffDuration tracks audio-to-coefficient generation latency.
	CoeffDuration metric.Float64Histogram

	// GovernDuration tracks motion governor processing latency.
	GovernDuration metric.Float64Histogram

	// RenderDuration tracks video rendering latency.
	RenderDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// VideosGenerated counts completed pipeline runs. Use with attributes:
	//   attribute.String("persona", ...), attribute.String("provenance", ...)
	VideosGenerated metric.Int64Counter

	// IntentFallbacks counts script generations that needed the
	// sentence-split fallback.
	IntentFallbacks metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks pipeline invocations currently in flight.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Model
// stages run from sub-second LLM calls to multi-minute renders.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScriptDuration, err = m.Float64Histogram("lumen.script.duration",
		metric.WithDescription("Latency of script generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("lumen.synth.duration",
		metric.WithDescription("Latency of segmented speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoeffDuration, err = m.Float64Histogram("lumen.coeff.duration",
		metric.WithDescription("Latency of audio-to-coefficient generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GovernDuration, err = m.Float64Histogram("lumen.govern.duration",
		metric.WithDescription("Latency of motion governor processing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("lumen.render.duration",
		metric.WithDescription("Latency of video rendering."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("lumen.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.VideosGenerated, err = m.Int64Counter("lumen.videos.generated",
		metric.WithDescription("Total completed pipeline runs by persona and intent provenance."),
	); err != nil {
		return nil, err
	}
	if met.IntentFallbacks, err = m.Int64Counter("lumen.intent.fallbacks",
		metric.WithDescription("Total script generations that used the sentence-split fallback."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("lumen.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("lumen.active_requests",
		metric.WithDescription("Number of pipeline invocations currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lumen.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordVideoGenerated is a convenience method that records a completed
// pipeline run.
func (m *Metrics) RecordVideoGenerated(ctx context.Context, persona, provenance string) {
	m.VideosGenerated.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("persona", persona),
			attribute.String("provenance", provenance),
		),
	)
}

// RecordStageDuration records a stage latency in the matching histogram.
// Unknown stage names are dropped silently.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, seconds float64) {
	var h metric.Float64Histogram
	switch stage {
	case "script":
		h = m.ScriptDuration
	case "synth":
		h = m.SynthDuration
	case "coeff":
		h = m.CoeffDuration
	case "govern":
		h = m.GovernDuration
	case "render":
		h = m.RenderDuration
	default:
		return
	}
	h.Record(ctx, seconds)
}
