// Package observe provides application-wide observability primitives for
// kaiwa: OpenTelemetry metrics, tracing, trace-aware logging, a stage timer
// for the voice pipeline, and HTTP middleware for the diagnostics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kaiwa metrics.
const meterName = "github.com/MrWong99/kaiwa"

// Stage item statuses recorded on [Metrics.StageItems].
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusDropped   = "dropped"
	StatusAbandoned = "abandoned"
)

// Segment outcomes recorded on [Metrics.Segments].
const (
	SegmentEmitted = "emitted"
	SegmentNoise   = "noise"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks per-item latency of each pipeline stage. Use with
	// attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// StageItems counts items leaving each stage. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageItems metric.Int64Counter

	// Segments counts segmenter decisions. Use with attribute:
	//   attribute.String("outcome", "emitted"|"noise")
	Segments metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// QueueDepth tracks the number of items waiting in each mailbox. Use with
	// attribute:
	//   attribute.String("queue", ...)
	QueueDepth metric.Int64UpDownCounter

	// CapturePaused is 1 while the microphone is muted for playback.
	CapturePaused metric.Int64UpDownCounter

	// HTTPRequestDuration tracks diagnostics HTTP request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("kaiwa.stage.duration",
		metric.WithDescription("Latency of one item in a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageItems, err = m.Int64Counter("kaiwa.stage.items",
		metric.WithDescription("Items processed by each pipeline stage by status."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("kaiwa.segments",
		metric.WithDescription("Utterance candidates by segmenter outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("kaiwa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("kaiwa.queue.depth",
		metric.WithDescription("Items waiting in each pipeline mailbox."),
	); err != nil {
		return nil, err
	}
	if met.CapturePaused, err = m.Int64UpDownCounter("kaiwa.capture.paused",
		metric.WithDescription("1 while capture is muted for playback."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kaiwa.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordStage records one item leaving stage with the given status.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
	m.StageItems.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordDrop counts an item discarded by stage without measuring latency.
func (m *Metrics) RecordDrop(ctx context.Context, stage string) {
	m.StageItems.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", StatusDropped),
		),
	)
}

// RecordSegment counts one segmenter decision.
func (m *Metrics) RecordSegment(ctx context.Context, outcome string) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
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

// QueueObserver returns a depth callback for the named mailbox suitable for
// pipeline.WithDepthObserver.
func (m *Metrics) QueueObserver(queue string) func(delta int64) {
	attrs := metric.WithAttributes(attribute.String("queue", queue))
	return func(delta int64) {
		m.QueueDepth.Add(context.Background(), delta, attrs)
	}
}

// RecordCapturePaused moves the capture-paused gauge.
func (m *Metrics) RecordCapturePaused(paused bool) {
	delta := int64(-1)
	if paused {
		delta = 1
	}
	m.CapturePaused.Add(context.Background(), delta)
}
