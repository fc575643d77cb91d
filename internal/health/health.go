// Package health reports whether the hub and its tool processes are alive.
//
// [Handler] serves two HTTP probes: /healthz answers 200 whenever the process
// can serve HTTP, /readyz answers 200 only when every [Checker] passes.
// [Monitor] polls subprocess-backed tools in the background and logs each
// liveness transition.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// checkTimeout caps a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness condition.
type Checker struct {
	// Name keys the check in the JSON response ("subprocesses", "registry").
	Name string

	// Check returns nil when healthy. It must respect ctx.
	Check func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health probes. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs all checkers concurrently and answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	rep, code := report{Status: "ok", Checks: checks}, http.StatusOK
	if failed {
		rep.Status, code = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Mount adds GET /healthz and GET /readyz to r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
