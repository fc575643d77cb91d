package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/tools/calculator"
	"github.com/MrWong99/toolhub/pkg/types"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

// brokenAdapter always fails to reach its backend.
type brokenAdapter struct{}

func (brokenAdapter) Describe(context.Context) (types.ToolDescriptor, error) {
	return types.ToolDescriptor{Name: "remote_search"}, nil
}
func (brokenAdapter) Kind() tool.AdapterKind { return tool.KindRemoteHTTP }
func (brokenAdapter) Close() error           { return nil }
func (brokenAdapter) Run(context.Context, types.Arguments) (types.Result, error) {
	return types.Result{}, tool.Transport("remote_search", errors.New("connection refused"))
}

func newHub(t *testing.T) *hub.Hub {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	slow := tool.MustFunc(types.ToolDescriptor{Name: "sleepy"}, func(ctx context.Context, _ types.Arguments) (types.Value, error) {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return types.Null(), nil
	})
	reg := hub.NewRegistry()
	for _, a := range []tool.Adapter{calculator.New(), slow, brokenAdapter{}} {
		if err := reg.Add(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}
	return hub.New(reg, hub.WithMetrics(metrics))
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewRouter(cfg, Deps{
		Hub:     newHub(t),
		Health:  health.New(),
		Metrics: metrics,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, body string, header ...string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/tools/run", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// ─── /tools/run ──────────────────────────────────────────────────────────────

func TestRunStatusMapping(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Config{})

	tests := []struct {
		name    string
		body    string
		status  int
		wantKey string
	}{
		{name: "success", body: `{"name":"calculator","arguments":{"expression":"2*21"}}`, status: 200, wantKey: "result"},
		{name: "tool error", body: `{"name":"calculator","arguments":{"expression":"1/0"}}`, status: 200, wantKey: "error"},
		{name: "malformed", body: `{"name":`, status: 400, wantKey: "error"},
		{name: "trailing data", body: `{"name":"calculator"} {}`, status: 400, wantKey: "error"},
		{name: "missing name", body: `{"arguments":{}}`, status: 400, wantKey: "error"},
		{name: "validation", body: `{"name":"calculator","arguments":{}}`, status: 400, wantKey: "error"},
		{name: "wrong type", body: `{"name":"calculator","arguments":{"expression":7}}`, status: 400, wantKey: "error"},
		{name: "unknown", body: `{"name":"calculater"}`, status: 404, wantKey: "suggestions"},
		{name: "transport", body: `{"name":"remote_search"}`, status: 502, wantKey: "error"},
		{name: "timeout", body: `{"name":"sleepy","timeout_ms":20}`, status: 504, wantKey: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, body := post(t, srv, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (body %v)", status, tt.status, body)
			}
			if _, ok := body[tt.wantKey]; !ok {
				t.Errorf("body %v lacks %q", body, tt.wantKey)
			}
		})
	}
}

func TestRunResultValue(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Config{})
	_, body := post(t, srv, `{"name":"calculator","arguments":{"expression":"2*21"}}`)
	if body["result"] != 42.0 {
		t.Errorf("result = %v, want 42", body["result"])
	}
	if _, both := body["error"]; both {
		t.Errorf("envelope carries both result and error: %v", body)
	}
}

func TestUnknownToolSuggestions(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Config{})
	_, body := post(t, srv, `{"name":"calculater"}`)
	if body["error"] != "unknown tool: calculater" {
		t.Errorf("error = %v", body["error"])
	}
	sugg, _ := body["suggestions"].([]any)
	if len(sugg) == 0 || sugg[0] != "calculator" {
		t.Errorf("suggestions = %v", body["suggestions"])
	}

	_, body = post(t, srv, `{"name":"zzz"}`)
	if _, ok := body["suggestions"]; ok {
		t.Errorf("unexpected suggestions for a distant name: %v", body)
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	tools := []types.ToolDescriptor{{Name: "read_file"}, {Name: "write_file"}, {Name: "calculator"}}
	if got := suggest("read_fil", tools); !slices.Contains(got, "read_file") || got[0] != "read_file" {
		t.Errorf("suggest = %v", got)
	}
	if got := suggest("xyz", tools); len(got) != 0 {
		t.Errorf("suggest = %v, want none", got)
	}
}

// ─── Discovery ───────────────────────────────────────────────────────────────

func TestDiscovery(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Config{})

	resp, err := http.Get(srv.URL + "/tools")
	if err != nil {
		t.Fatal(err)
	}
	var list []types.ToolDescriptor
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 3 || list[0].Name != "calculator" {
		t.Errorf("list = %+v", list)
	}

	resp, err = http.Get(srv.URL + "/tools/calculator")
	if err != nil {
		t.Fatal(err)
	}
	var d types.ToolDescriptor
	_ = json.NewDecoder(resp.Body).Decode(&d)
	resp.Body.Close()
	if p, ok := d.Parameters.Lookup("expression"); !ok || !p.Required {
		t.Errorf("descriptor = %+v", d)
	}

	resp, err = http.Get(srv.URL + "/tools/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /tools/nope = %d", resp.StatusCode)
	}
}

// ─── Auth and CORS ───────────────────────────────────────────────────────────

func sign(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "agent-7",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	const secret = "s3cret"
	srv := newServer(t, Config{JWTSecret: secret})
	body := `{"name":"calculator","arguments":{"expression":"1+1"}}`

	tests := []struct {
		name   string
		header []string
		status int
	}{
		{name: "no token", status: 401},
		{name: "wrong scheme", header: []string{"Authorization", "Basic abc"}, status: 401},
		{name: "bad signature", header: []string{"Authorization", "Bearer " + sign(t, "other", time.Now().Add(time.Hour))}, status: 401},
		{name: "expired", header: []string{"Authorization", "Bearer " + sign(t, secret, time.Now().Add(-time.Hour))}, status: 401},
		{name: "valid", header: []string{"Authorization", "Bearer " + sign(t, secret, time.Now().Add(time.Hour))}, status: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if status, b := post(t, srv, body, tt.header...); status != tt.status {
				t.Errorf("status = %d, want %d (%v)", status, tt.status, b)
			}
		})
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz behind auth: %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Config{CORSOrigins: []string{"https://console.example"}})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/tools/run", nil)
	req.Header.Set("Origin", "https://console.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://console.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
