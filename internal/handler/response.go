package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/httputil"
	"github.com/zapflow/bot-server-go/internal/model"
)

// Core is the chat core as the HTTP layer sees it.
type Core interface {
	StartSession(tenantID string) (model.SessionSnapshot, error)
	GetSessionStatus(tenantID string) (model.SessionSnapshot, error)
	ResetSession(ctx context.Context, tenantID string) error
	SetPaused(tenantID string, paused bool) error
	IsPaused(tenantID string) (bool, error)
	ListSessions() []model.SessionSnapshot
	SendManual(ctx context.Context, tenantID, contactID, text string) error
	GetHistory(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error)
	GetRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func tenantParam(r *http.Request) string {
	return chi.URLParam(r, "tenantId")
}
