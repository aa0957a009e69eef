package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the p2t tracer.
const tracerName = "github.com/podcast2transcript/p2t"

// Tracer returns the p2t tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartJobSpan starts a span tagged with a transcription job id.
func StartJobSpan(ctx context.Context, name string, jobID uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attribute.Int64("p2t.job_id", int64(jobID))))
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] enriched with trace_id and span_id
// when ctx carries an active span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// JobLogger is [Logger] with a job attribute.
func JobLogger(ctx context.Context, jobID uint64) *slog.Logger {
	return Logger(ctx).With(slog.Uint64("job", jobID))
}
