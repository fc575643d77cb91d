package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/MrWong99/toolhub"

// Span attribute keys set on tool dispatch spans.
const (
	AttrToolName    = attribute.Key("tool.name")
	AttrToolAdapter = attribute.Key("tool.adapter")
	AttrToolOutcome = attribute.Key("tool.outcome")
)

// Tracer returns the toolhub tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan starts a span under ctx. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartToolSpan starts the span covering one dispatch of tool through an
// adapter of the given kind. Finish it with [EndToolSpan].
func StartToolSpan(ctx context.Context, tool, kind string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tool "+tool,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrToolName.String(tool), AttrToolAdapter.String(kind)),
	)
}

// EndToolSpan records the dispatch outcome ("ok", "tool_error" or an error
// kind) and ends span. A non-nil err marks the span failed. A tool_error
// outcome is a successful dispatch whose tool reported failure, so the span
// status stays unset.
func EndToolSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(AttrToolOutcome.String(outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}

// CorrelationID is the trace ID carried by ctx, "" without a span. The
// gateway echoes it in [CorrelationHeader].
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is slog.Default with trace_id and span_id added when ctx carries a
// span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
