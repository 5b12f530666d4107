package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zapflow/bot-server-go/internal/audit"
	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/util"
)

type ConversationHandler struct {
	core     Core
	sessions *SessionHandler
}

func NewConversationHandler(core Core, sessions *SessionHandler) *ConversationHandler {
	return &ConversationHandler{
		core:     core,
		sessions: sessions,
	}
}

// Routes is mounted under /v1/tenants/{tenantId}.
func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/pause", h.sessions.GetPause)
	r.Put("/pause", h.sessions.SetPause)
	r.Post("/messages", h.SendMessage)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{contactId}/messages", h.GetHistory)

	return r
}

// POST /v1/tenants/{tenantId}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	var req struct {
		ContactID string `json:"contactId"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ContactID) == "" {
		writeError(w, apperrors.MissingRequired("contactId"))
		return
	}

	err := h.core.SendManual(r.Context(), tenantID, req.ContactID, req.Text)

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventManualSend,
		TenantID:  tenantID,
		ContactID: util.MaskContact(req.ContactID),
		Details: map[string]interface{}{
			"length": len(req.Text),
			"ok":     err == nil,
			"code":   string(codeOf(err)),
		},
	})

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /v1/tenants/{tenantId}/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.core.GetRecentConversations(r.Context(), tenantParam(r), ParseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GET /v1/tenants/{tenantId}/conversations/{contactId}/messages
func (h *ConversationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactId")

	msgs, err := h.core.GetHistory(r.Context(), tenantParam(r), contactID, ParseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func codeOf(err error) apperrors.ErrorCode {
	if err == nil {
		return ""
	}
	return apperrors.GetCode(err)
}
