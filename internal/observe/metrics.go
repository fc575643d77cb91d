// Package observe provides the hub's observability primitives: OpenTelemetry
// metrics, tracing helpers, trace-aware logging, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// a Prometheus exporter set up by [InitProvider]. [DefaultMetrics] returns a
// package-level instance bound to the global provider; tests use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every toolhub instrument.
const meterName = "github.com/MrWong99/toolhub"

// Metrics holds the application's metric instruments. The OTel types are
// safe for concurrent use.
type Metrics struct {
	// ToolCalls counts dispatched calls by tool, adapter kind and outcome
	// ("ok", "tool_error", "validation", "unknown_tool", "transport",
	// "timeout").
	ToolCalls metric.Int64Counter

	// ToolDuration tracks end-to-end call latency as seen by the hub.
	ToolDuration metric.Float64Histogram

	// PoolInUse tracks held worker slots, by pool name.
	PoolInUse metric.Int64UpDownCounter

	// PendingTickets tracks human-input requests awaiting an answer.
	PendingTickets metric.Int64UpDownCounter

	// TicketOutcomes counts closed tickets by outcome ("answered", "expired").
	TicketOutcomes metric.Int64Counter

	// LivenessTransitions counts subprocess liveness changes by tool and new
	// state.
	LivenessTransitions metric.Int64Counter

	// HTTPRequestDuration tracks front-end request latency by method, route
	// and status class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets spans quick in-process calls up to human-input waits.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("toolhub.tool.calls",
		metric.WithDescription("Dispatched tool calls by tool, adapter kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("toolhub.tool.duration",
		metric.WithDescription("Tool call latency as observed by the hub."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PoolInUse, err = m.Int64UpDownCounter("toolhub.pool.in_use",
		metric.WithDescription("Worker slots currently held, by pool."),
	); err != nil {
		return nil, err
	}
	if met.PendingTickets, err = m.Int64UpDownCounter("toolhub.rendezvous.pending",
		metric.WithDescription("Human-input tickets awaiting an answer."),
	); err != nil {
		return nil, err
	}
	if met.TicketOutcomes, err = m.Int64Counter("toolhub.rendezvous.closed",
		metric.WithDescription("Closed human-input tickets by outcome."),
	); err != nil {
		return nil, err
	}
	if met.LivenessTransitions, err = m.Int64Counter("toolhub.subprocess.liveness_transitions",
		metric.WithDescription("Subprocess liveness changes by tool and new state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("toolhub.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// use from [otel.GetMeterProvider]. Panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one finished call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, kind, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("adapter", kind),
		attribute.String("outcome", outcome),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}

// PoolObserver returns a callback for workerpool.WithObserver that feeds
// [Metrics.PoolInUse].
func (m *Metrics) PoolObserver(pool string) func(delta int64) {
	attrs := metric.WithAttributes(attribute.String("pool", pool))
	return func(delta int64) {
		m.PoolInUse.Add(context.Background(), delta, attrs)
	}
}

// RecordTicketClosed decrements the pending gauge and counts the outcome.
func (m *Metrics) RecordTicketClosed(ctx context.Context, outcome string) {
	m.PendingTickets.Add(ctx, -1)
	m.TicketOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLiveness counts a liveness transition.
func (m *Metrics) RecordLiveness(ctx context.Context, tool, state string) {
	m.LivenessTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("state", state),
		),
	)
}
