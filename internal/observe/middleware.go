package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID back to HTTP clients.
const CorrelationHeader = "X-Correlation-ID"

// DefaultUntracedPaths are probe and scrape endpoints that would otherwise
// flood the trace backend. They are still timed.
var DefaultUntracedPaths = []string{"/healthz", "/readyz", "/metrics"}

// responseWriter records the status written downstream. It forwards Flush
// for the MCP event stream and Unwrap for the operator websocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status, w.wrote = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status, w.wrote = http.StatusOK, true
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// statusClass maps 404 to "4xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	untraced map[string]bool
}

// WithUntracedPaths replaces [DefaultUntracedPaths].
func WithUntracedPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.untraced = make(map[string]bool, len(paths))
		for _, p := range paths {
			c.untraced[p] = true
		}
	}
}

// Middleware instruments the gateway. For every request it records
// [Metrics.HTTPRequestDuration] labelled by method, route and status class.
// Except for untraced paths it also continues an incoming W3C trace (or
// starts one), answers with the trace ID in [CorrelationHeader] and logs
// completion at debug level.
//
// Under chi the route label is the matched pattern (/tools/{name}), which
// keeps label cardinality bounded.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{}
	WithUntracedPaths(DefaultUntracedPaths...)(&cfg)
	for _, o := range opts {
		o(&cfg)
	}
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			if cfg.untraced[r.URL.Path] {
				next.ServeHTTP(rw, r)
				m.recordRequest(r, rw.status, time.Since(start))
				return
			}

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()
			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			r = r.WithContext(ctx)
			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := m.recordRequest(r, rw.status, elapsed)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(rw.status))

			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "request completed",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", rw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// recordRequest records the duration histogram and returns the route label.
func (m *Metrics) recordRequest(r *http.Request, status int, elapsed time.Duration) string {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			route = p
		}
	}
	m.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass(status)),
	))
	return route
}
