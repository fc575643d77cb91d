package operator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/toolhub/internal/rendezvous"
)

// Handlers serves the HTTP operator endpoints.
type Handlers struct {
	Broker *rendezvous.Broker

	// Bridge, if set, is mounted at /operator/ws.
	Bridge *Bridge
}

// Mount registers:
//
//	GET  /operator/tickets
//	POST /operator/tickets/{id}/answer
//	GET  /operator/ws
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/operator/tickets", h.list)
	r.Post("/operator/tickets/{id}/answer", h.answer)
	if h.Bridge != nil {
		r.Handle("/operator/ws", h.Bridge)
	}
}

func (h *Handlers) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Broker.Pending())
}

type answerRequest struct {
	Answer *string `json:"answer"`
}

// answer returns 204 on success and 409 when the ticket is closed or unknown.
func (h *Handlers) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Answer == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"answer": "..."}`})
		return
	}
	err := h.Broker.Answer(chi.URLParam(r, "id"), *req.Answer)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, rendezvous.ErrTicketClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
