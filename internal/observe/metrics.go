// Package observe provides application-wide observability primitives for
// p2t: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup]
// bridges them into a Prometheus registry that [Telemetry.Handler] serves on
// /metrics. A package-level default
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

// meterName is the instrumentation scope name used for all p2t metrics.
const meterName = "github.com/podcast2transcript/p2t"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PreprocessDuration tracks decode + downmix + resample time.
	PreprocessDuration metric.Float64Histogram

	// ModelLoadDuration tracks runtime load, artifact fetch and model build.
	ModelLoadDuration metric.Float64Histogram

	// InferenceDuration tracks windowed inference over a whole file.
	InferenceDuration metric.Float64Histogram

	// JobDuration tracks a job from start to its terminal message. Use with
	// attribute.String("outcome", ...).
	JobDuration metric.Float64Histogram

	// --- Counters ---

	// ArtifactBytes counts bytes downloaded into the model cache. Use with
	// attribute.String("artifact", ...).
	ArtifactBytes metric.Int64Counter

	// Jobs counts finished jobs. Use with attribute.String("outcome", ...)
	// set to "complete", "error" or "superseded".
	Jobs metric.Int64Counter

	// StaleMessages counts worker messages discarded because their job was
	// superseded.
	StaleMessages metric.Int64Counter

	// WatchdogFires counts jobs whose slow-download notice was shown.
	WatchdogFires metric.Int64Counter

	// --- Error counters ---

	// JobErrors counts failures by kind. Use with attribute.String("kind", ...).
	JobErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks jobs between start and terminal message.
	ActiveJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) for pipeline
// stages, which range from sub-second preprocessing to multi-minute model
// downloads and inference.
var stageBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PreprocessDuration, err = m.Float64Histogram("p2t.preprocess.duration",
		metric.WithDescription("Latency of audio decoding and conversion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelLoadDuration, err = m.Float64Histogram("p2t.model_load.duration",
		metric.WithDescription("Latency of runtime load, artifact download and model construction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("p2t.inference.duration",
		metric.WithDescription("Latency of speech-to-text inference over a whole file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("p2t.job.duration",
		metric.WithDescription("Latency of a transcription job from start to terminal message."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ArtifactBytes, err = m.Int64Counter("p2t.artifact.bytes",
		metric.WithDescription("Bytes downloaded into the model artifact cache."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Jobs, err = m.Int64Counter("p2t.jobs",
		metric.WithDescription("Finished transcription jobs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StaleMessages, err = m.Int64Counter("p2t.stale_messages",
		metric.WithDescription("Worker messages discarded because their job was superseded."),
	); err != nil {
		return nil, err
	}
	if met.WatchdogFires, err = m.Int64Counter("p2t.watchdog.fires",
		metric.WithDescription("Jobs whose slow-download notice was shown."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.JobErrors, err = m.Int64Counter("p2t.job.errors",
		metric.WithDescription("Transcription failures by error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("p2t.active_jobs",
		metric.WithDescription("Number of transcription jobs in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("p2t.http.request.duration",
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

// WithArtifact returns the measurement option tagging an artifact name.
func WithArtifact(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("artifact", name))
}

// RecordJob records a finished job with its outcome and duration in seconds.
func (m *Metrics) RecordJob(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Jobs.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, seconds, attrs)
}

// RecordJobError records a failure of the given kind.
func (m *Metrics) RecordJobError(ctx context.Context, kind string) {
	m.JobErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
