package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zapflow/bot-server-go/internal/audit"
	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/model"
)

type SessionHandler struct {
	core   Core
	events http.Handler
}

func NewSessionHandler(core Core, events http.Handler) *SessionHandler {
	return &SessionHandler{
		core:   core,
		events: events,
	}
}

// Routes is mounted under /v1/tenants/{tenantId}/session.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartSession)
	r.Get("/", h.GetSessionStatus)
	r.Delete("/", h.ResetSession)
	r.Get("/events", h.events.ServeHTTP)

	return r
}

// POST /v1/tenants/{tenantId}/session
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	snapshot, err := h.core.StartSession(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventSessionStart,
		TenantID: tenantID,
		Details:  map[string]interface{}{"status": string(snapshot.Status)},
	})

	writeJSON(w, http.StatusOK, snapshot)
}

// GET /v1/tenants/{tenantId}/session
func (h *SessionHandler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.core.GetSessionStatus(tenantParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// DELETE /v1/tenants/{tenantId}/session
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	if err := h.core.ResetSession(r.Context(), tenantID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventSessionReset,
		TenantID: tenantID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"tenantId": tenantID,
	})
}

// GET /v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.core.ListSessions()
	if sessions == nil {
		sessions = []model.SessionSnapshot{}
	}

	counts := make(map[model.SessionStatus]int)
	for _, s := range sessions {
		counts[s.Status]++
	}

	log.Debug().Int("count", len(sessions)).Msg("listed sessions")

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"counts":   counts,
	})
}

// GET /v1/tenants/{tenantId}/pause
func (h *SessionHandler) GetPause(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	paused, err := h.core.IsPaused(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId": tenantID,
		"paused":   paused,
	})
}

// PUT /v1/tenants/{tenantId}/pause
func (h *SessionHandler) SetPause(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Paused == nil {
		writeError(w, apperrors.MissingRequired("paused"))
		return
	}

	if err := h.core.SetPaused(tenantID, *req.Paused); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventPauseChange,
		TenantID: tenantID,
		Details:  map[string]interface{}{"paused": *req.Paused},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId": tenantID,
		"paused":   *req.Paused,
	})
}
