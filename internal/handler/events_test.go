package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/sse"
)

type sseFrame struct {
	event string
	data  string
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.event != "" {
				return f
			}
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("rejects an invalid tenant before streaming", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetSessionStatus", "bad.tenant").Return(model.SessionSnapshot{}, apperrors.InvalidTenant("bad.tenant"))

		rec := do(t, newTestRouter(core), http.MethodGet, "/v1/tenants/bad.tenant/session/events", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	})

	t.Run("sends the snapshot then published events", func(t *testing.T) {
		core := &mockCore{}
		core.On("GetSessionStatus", "shop-a").Return(model.SessionSnapshot{
			TenantID: "shop-a",
			Status:   model.SessionStatusConnecting,
		}, nil)

		broker := sse.NewBroker(nil)
		t.Cleanup(broker.Close)
		events := NewEventsHandler(broker, core)

		r := chi.NewRouter()
		r.Get("/v1/tenants/{tenantId}/session/events", events.ServeHTTP)
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/tenants/shop-a/session/events", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		reader := bufio.NewReader(resp.Body)

		first := readFrame(t, reader)
		assert.Equal(t, "session", first.event)
		var snap model.SessionSnapshot
		require.NoError(t, json.Unmarshal([]byte(first.data), &snap))
		assert.Equal(t, model.SessionStatusConnecting, snap.Status)

		qr := model.SessionSnapshot{TenantID: "shop-a", Status: model.SessionStatusQrReady, QR: "2@xyz"}
		require.NoError(t, broker.Publish(context.Background(), "shop-a", sse.Event{Type: "session", Data: qr.ToSSEEventData()}))

		next := readFrame(t, reader)
		assert.Equal(t, "session", next.event)
		assert.Contains(t, next.data, "2@xyz")

		require.Eventually(t, func() bool { return broker.ClientCount("shop-a") == 1 }, time.Second, 10*time.Millisecond)
		cancel()
		require.Eventually(t, func() bool { return broker.ClientCount("shop-a") == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	t.Run("writes event and data lines", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()

		err := handler.sendRawEvent(rec, rec, sse.Event{
			Type: "session",
			Data: json.RawMessage(`{"status":"connected"}`),
		})

		assert.NoError(t, err)
		assert.Equal(t, "event: session\ndata: {\"status\":\"connected\"}\n\n", rec.Body.String())
	})
}
