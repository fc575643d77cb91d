package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// These tests swap the global tracer provider and therefore do not run in
// parallel.

func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// gateway mimics the shape of the real router: a parameterised tool route,
// a probe, a streaming endpoint and chi's 404.
func gateway(m *Metrics, opts ...MiddlewareOption) http.Handler {
	r := chi.NewRouter()
	r.Use(Middleware(m, opts...))
	r.Get("/tools/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})
	r.Post("/tools/run", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/mcp", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("data: x\n\n"))
		w.(http.Flusher).Flush()
	})
	return r
}

func histogramPoint(t *testing.T, rm metricdata.ResourceMetrics, route string) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	met := findMetric(rm, "toolhub.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration metric is %T, want histogram", met.Data)
	}
	for _, dp := range hist.DataPoints {
		if v, ok := dp.Attributes.Value("route"); ok && v.AsString() == route {
			return dp
		}
	}
	t.Fatalf("no data point for route %q", route)
	return metricdata.HistogramDataPoint[float64]{}
}

// ─── Middleware ──────────────────────────────────────────────────────────────

func TestMiddleware_Requests(t *testing.T) {
	tests := []struct {
		method, path string
		status       int
		route        string
		class        string
		traced       bool
	}{
		{method: "GET", path: "/tools/calculator", status: 200, route: "/tools/{name}", class: "2xx", traced: true},
		{method: "POST", path: "/tools/run", status: 504, route: "/tools/run", class: "5xx", traced: true},
		{method: "GET", path: "/nowhere", status: 404, route: "/nowhere", class: "4xx", traced: true},
		{method: "GET", path: "/healthz", status: 200, route: "/healthz", class: "2xx", traced: false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			exp := installTracer(t)
			m, reader := newTestMetrics(t)

			rec := httptest.NewRecorder()
			gateway(m).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			dp := histogramPoint(t, collect(t, reader), tt.route)
			if dp.Count != 1 {
				t.Errorf("count = %d, want 1", dp.Count)
			}
			if v, _ := dp.Attributes.Value("status_class"); v.AsString() != tt.class {
				t.Errorf("status_class = %q, want %q", v.AsString(), tt.class)
			}

			spans := exp.GetSpans()
			if !tt.traced {
				if len(spans) != 0 || rec.Header().Get(CorrelationHeader) != "" {
					t.Errorf("untraced path produced %d spans, header %q", len(spans), rec.Header().Get(CorrelationHeader))
				}
				return
			}
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if want := "HTTP " + tt.method + " " + tt.route; spans[0].Name != want {
				t.Errorf("span name = %q, want %q", spans[0].Name, want)
			}
			if !hasAttr(spans[0].Attributes, "http.response.status_code", int64(tt.status)) {
				t.Errorf("span attributes %v lack status %d", spans[0].Attributes, tt.status)
			}
			if got := rec.Header().Get(CorrelationHeader); got != spans[0].SpanContext.TraceID().String() {
				t.Errorf("%s = %q, want span trace id", CorrelationHeader, got)
			}
		})
	}
}

func hasAttr(attrs []attribute.KeyValue, key string, want int64) bool {
	for _, a := range attrs {
		if string(a.Key) == key && a.Value.AsInt64() == want {
			return true
		}
	}
	return false
}

func TestMiddleware_ContinuesW3CTrace(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen string
	h := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest("POST", "/tools/run", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != traceID {
		t.Errorf("handler trace id = %q, want %q", seen, traceID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_ForwardsFlush(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)

	rec := httptest.NewRecorder()
	gateway(m).ServeHTTP(rec, httptest.NewRequest("GET", "/mcp", nil))
	if !rec.Flushed {
		t.Error("Flush did not reach the underlying writer")
	}
}

func TestMiddleware_CustomUntracedPaths(t *testing.T) {
	exp := installTracer(t)
	m, _ := newTestMetrics(t)

	h := gateway(m, WithUntracedPaths("/tools/run"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/tools/run", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /healthz" {
		t.Errorf("spans = %v, want only the health probe", spans)
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 502: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
