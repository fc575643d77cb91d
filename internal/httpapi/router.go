// Package httpapi is the hub's HTTP front end: tool invocation and
// discovery, the operator endpoints, health probes, Prometheus metrics and
// the MCP endpoint, all on one chi router.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/operator"
)

// Config holds the gateway's own settings.
type Config struct {
	// CORSOrigins lists allowed browser origins. Empty disables CORS
	// headers; "*" allows any origin.
	CORSOrigins []string

	// JWTSecret enables HS256 bearer auth on the API routes when set.
	// Health and metrics stay open.
	JWTSecret string
}

// Deps are the components the router exposes. Nil components are not
// mounted, except Hub which is required.
type Deps struct {
	Hub      Dispatcher
	Operator *operator.Handlers
	Health   *health.Handler
	MCP      http.Handler
	Metrics  *observe.Metrics

	// MetricsHandler serves /metrics, usually promhttp.Handler().
	MetricsHandler http.Handler
}

// NewRouter builds the gateway handler.
func NewRouter(cfg Config, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(observe.Middleware(d.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "Mcp-Session-Id", "Mcp-Protocol-Version"},
			ExposedHeaders: []string{"X-Correlation-ID", "Mcp-Session-Id"},
		}).Handler)
	}

	if d.Health != nil {
		d.Health.Mount(r)
	}
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(BearerAuth([]byte(cfg.JWTSecret)))
		}
		th := &toolsHandler{hub: d.Hub}
		r.Post("/tools/run", th.run)
		r.Get("/tools", th.list)
		r.Get("/tools/{name}", th.get)
		if d.Operator != nil {
			d.Operator.Mount(r)
		}
		if d.MCP != nil {
			r.Handle("/mcp", d.MCP)
		}
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
