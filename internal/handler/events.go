package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/sse"
)

// StatusReader is the slice of the core the event stream needs.
type StatusReader interface {
	GetSessionStatus(tenantID string) (model.SessionSnapshot, error)
}

// EventsHandler streams a tenant's session changes (status, QR codes) as
// server-sent events. The current snapshot is sent first so a dashboard
// never starts blank.
type EventsHandler struct {
	broker    *sse.Broker
	status    StatusReader
	heartbeat time.Duration
}

func NewEventsHandler(broker *sse.Broker, status StatusReader) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		status:    status,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /v1/tenants/{tenantId}/session/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	snapshot, err := h.status.GetSessionStatus(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(tenantID)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("tenantId", tenantID).Msg("sse connection established")

	if err := h.sendRawEvent(w, flusher, sse.Event{Type: "session", Data: snapshot.ToSSEEventData()}); err != nil {
		log.Debug().Err(err).Str("tenantId", tenantID).Msg("failed to send initial snapshot")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("tenantId", tenantID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("tenantId", tenantID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("tenantId", tenantID).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("tenantId", tenantID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
