package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/sse"
)

type mockCore struct {
	mock.Mock
}

func (m *mockCore) StartSession(tenantID string) (model.SessionSnapshot, error) {
	args := m.Called(tenantID)
	return args.Get(0).(model.SessionSnapshot), args.Error(1)
}

func (m *mockCore) GetSessionStatus(tenantID string) (model.SessionSnapshot, error) {
	args := m.Called(tenantID)
	return args.Get(0).(model.SessionSnapshot), args.Error(1)
}

func (m *mockCore) ResetSession(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

func (m *mockCore) SetPaused(tenantID string, paused bool) error {
	return m.Called(tenantID, paused).Error(0)
}

func (m *mockCore) IsPaused(tenantID string) (bool, error) {
	args := m.Called(tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCore) ListSessions() []model.SessionSnapshot {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]model.SessionSnapshot)
	}
	return nil
}

func (m *mockCore) SendManual(ctx context.Context, tenantID, contactID, text string) error {
	return m.Called(ctx, tenantID, contactID, text).Error(0)
}

func (m *mockCore) GetHistory(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error) {
	args := m.Called(ctx, tenantID, contactID, limit)
	if v := args.Get(0); v != nil {
		return v.([]model.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCore) GetRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error) {
	args := m.Called(ctx, tenantID, limit)
	if v := args.Get(0); v != nil {
		return v.([]model.ConversationSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// newTestRouter mounts the handlers the same way the server does.
func newTestRouter(core *mockCore) http.Handler {
	events := NewEventsHandler(sse.NewBroker(nil), core)
	sessions := NewSessionHandler(core, events)
	conversations := NewConversationHandler(core, sessions)

	r := chi.NewRouter()
	r.Get("/v1/sessions", sessions.ListSessions)
	r.Route("/v1/tenants/{tenantId}", func(r chi.Router) {
		r.Mount("/session", sessions.Routes())
		r.Mount("/", conversations.Routes())
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSessionHandler(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("start returns the snapshot", func(t *testing.T) {
		core := &mockCore{}
		core.On("StartSession", "shop-a").Return(model.SessionSnapshot{
			TenantID:  "shop-a",
			Status:    model.SessionStatusConnecting,
			StartedAt: &now,
		}, nil)

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/shop-a/session", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "shop-a", body["tenantId"])
		assert.Equal(t, string(model.SessionStatusConnecting), body["status"])
		core.AssertExpectations(t)
	})

	t.Run("start maps invalid tenant to 400", func(t *testing.T) {
		core := &mockCore{}
		core.On("StartSession", "bad.tenant").Return(model.SessionSnapshot{}, apperrors.InvalidTenant("bad.tenant"))

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/bad.tenant/session", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_TENANT", decodeBody(t, rec)["code"])
	})

	t.Run("status includes the qr while pairing", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetSessionStatus", "shop-a").Return(model.SessionSnapshot{
			TenantID: "shop-a",
			Status:   model.SessionStatusQrReady,
			QR:       "2@abc",
		}, nil)

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/shop-a/session", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2@abc", decodeBody(t, rec)["qr"])
	})

	t.Run("reset", func(t *testing.T) {
		core := &mockCore{}
		core.On("ResetSession", mock.Anything, "shop-a").Return(nil)

		rec := do(t, newTestRouter(core), http.MethodDelete, "/v1/tenants/shop-a/session", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["success"])
		core.AssertExpectations(t)
	})

	t.Run("list sessions with counts", func(t *testing.T) {
		core := &mockCore{}
		core.On("ListSessions").Return([]model.SessionSnapshot{
			{TenantID: "a", Status: model.SessionStatusConnected},
			{TenantID: "b", Status: model.SessionStatusConnected},
			{TenantID: "c", Status: model.SessionStatusQrReady},
		})

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/sessions", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Len(t, body["sessions"], 3)
		counts := body["counts"].(map[string]any)
		assert.Equal(t, float64(2), counts[string(model.SessionStatusConnected)])
	})

	t.Run("list sessions when empty", func(t *testing.T) {
		core := &mockCore{}
		core.On("ListSessions").Return(nil)

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/sessions", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{}, decodeBody(t, rec)["sessions"])
	})
}

func TestPauseRoutes(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		core := &mockCore{}
		core.On("IsPaused", "shop-a").Return(true, nil)

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/shop-a/pause", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["paused"])
	})

	t.Run("put", func(t *testing.T) {
		core := &mockCore{}
		core.On("SetPaused", "shop-a", false).Return(nil)

		rec := do(t, newTestRouter(core), http.MethodPut, "/v1/tenants/shop-a/pause", `{"paused":false}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["paused"])
		core.AssertExpectations(t)
	})

	t.Run("put requires the flag", func(t *testing.T) {
		core := &mockCore{}

		rec := do(t, newTestRouter(core), http.MethodPut, "/v1/tenants/shop-a/pause", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_REQUIRED", decodeBody(t, rec)["code"])
		core.AssertNotCalled(t, "SetPaused", mock.Anything, mock.Anything)
	})

	t.Run("put rejects malformed json", func(t *testing.T) {
		rec := do(t, newTestRouter(&mockCore{}), http.MethodPut, "/v1/tenants/shop-a/pause", `{"paused":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, rec)["code"])
	})
}

func TestConversationHandler_SendMessage(t *testing.T) {
	t.Run("sends", func(t *testing.T) {
		core := &mockCore{}
		core.On("SendManual", mock.Anything, "shop-a", "5511999990000", "Olá!").Return(nil)

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/shop-a/messages",
			`{"contactId":"5511999990000","text":"Olá!"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["success"])
		core.AssertExpectations(t)
	})

	t.Run("requires a contact", func(t *testing.T) {
		core := &mockCore{}

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/shop-a/messages", `{"text":"Olá!"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		core.AssertNotCalled(t, "SendManual", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("maps a disconnected session to 409", func(t *testing.T) {
		core := &mockCore{}
		core.On("SendManual", mock.Anything, "shop-a", "5511999990000", "oi").Return(apperrors.SessionNotConnected())

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/shop-a/messages",
			`{"contactId":"5511999990000","text":"oi"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "SESSION_NOT_CONNECTED", decodeBody(t, rec)["code"])
	})

	t.Run("maps a transport failure to 502", func(t *testing.T) {
		core := &mockCore{}
		core.On("SendManual", mock.Anything, "shop-a", "5511999990000", "oi").Return(apperrors.SendFailed(errors.New("socket closed")))

		rec := do(t, newTestRouter(core), http.MethodPost, "/v1/tenants/shop-a/messages",
			`{"contactId":"5511999990000","text":"oi"}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestConversationHandler_Reads(t *testing.T) {
	t.Run("recent conversations pass the limit", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetRecentConversations", mock.Anything, "shop-a", 10).Return([]model.ConversationSummary{
			{ContactID: "5511999990000@s.whatsapp.net", DisplayName: "Ana", LastMessagePreview: "Civic"},
		}, nil)

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/shop-a/conversations?limit=10", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		convs := decodeBody(t, rec)["conversations"].([]any)
		require.Len(t, convs, 1)
		assert.Equal(t, "Ana", convs[0].(map[string]any)["displayName"])
	})

	t.Run("history uses the contact from the path", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetHistory", mock.Anything, "shop-a", "5511999990000@s.whatsapp.net", 0).Return([]model.ChatMessage{
			{ID: "m1", Body: "oi", Direction: model.DirectionCustomer},
			{ID: "m2", Body: "Olá!", Direction: model.DirectionBot},
		}, nil)

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/shop-a/conversations/5511999990000@s.whatsapp.net/messages", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		msgs := decodeBody(t, rec)["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].(map[string]any)["id"])
	})

	t.Run("history maps database errors to 500", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetHistory", mock.Anything, "shop-a", "5511", 0).Return(nil, apperrors.Database(errors.New("down")))

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/shop-a/conversations/5511/messages", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"limit=25", 25},
		{"limit=-1", 0},
		{"limit=abc", 0},
		{"limit=100000", MaxLimit},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
			assert.Equal(t, tc.want, ParseLimit(req))
		})
	}
}
