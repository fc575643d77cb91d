package httpapi

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// maxRequestBody caps POST /tools/run bodies.
const maxRequestBody = 4 << 20

// suggestThreshold is the minimum Jaro-Winkler similarity for a registered
// name to be suggested after an unknown-tool error.
const suggestThreshold = 0.8

// Dispatcher is the hub as the HTTP gateway sees it.
type Dispatcher interface {
	Tools() []types.ToolDescriptor
	Describe(name string) (types.ToolDescriptor, bool)
	Dispatch(ctx context.Context, name string, args types.Arguments, timeout time.Duration) (types.Result, error)
}

type runRequest struct {
	Name      string          `json:"name"`
	Arguments types.Arguments `json:"arguments"`
	TimeoutMS int64           `json:"timeout_ms,omitempty"`
}

type errorBody struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type toolsHandler struct {
	hub Dispatcher
}

// run maps the outcome of one call onto a status code:
//
//	success, tool error  200 with the envelope
//	malformed body       400
//	validation failure   400
//	unknown tool         404 with suggestions
//	transport failure    502
//	timeout              504
func (h *toolsHandler) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body: trailing data")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}
	if req.Arguments == nil {
		req.Arguments = types.Arguments{}
	}

	res, err := h.hub.Dispatch(r.Context(), req.Name, req.Arguments, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		kind := tool.KindOf(err)
		body := errorBody{Error: err.Error(), Kind: string(kind)}
		status := http.StatusBadGateway
		switch kind {
		case tool.KindValidation:
			status = http.StatusBadRequest
		case tool.KindUnknownTool:
			status = http.StatusNotFound
			body.Suggestions = suggest(req.Name, h.hub.Tools())
		case tool.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *toolsHandler) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Tools())
}

func (h *toolsHandler) get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := h.hub.Describe(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:       tool.UnknownTool(name).Error(),
			Kind:        string(tool.KindUnknownTool),
			Suggestions: suggest(name, h.hub.Tools()),
		})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// suggest returns registered names similar to name, best match first.
func suggest(name string, tools []types.ToolDescriptor) []string {
	type scored struct {
		name  string
		score float64
	}
	var hits []scored
	for _, d := range tools {
		if s := matchr.JaroWinkler(name, d.Name, false); s >= suggestThreshold {
			hits = append(hits, scored{d.Name, s})
		}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
