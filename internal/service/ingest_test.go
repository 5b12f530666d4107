package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/bot-server-go/internal/dedupe"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/transport"
)

type mockMessageHandler struct {
	mock.Mock
}

func (m *mockMessageHandler) Handle(ctx context.Context, tenantID, contactID, text, displayName string) error {
	args := m.Called(ctx, tenantID, contactID, text, displayName)
	return args.Error(0)
}

type stubLimiter struct {
	allow bool
	calls int
}

func (s *stubLimiter) Allow(ctx context.Context, tenantID, contactID string) bool {
	s.calls++
	return s.allow
}

var ingestNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIngestor(handler MessageHandler, deduper dedupe.Deduper, limiter InboundLimiter) (*Ingestor, *fakeMessageRepo) {
	repo := &fakeMessageRepo{}
	ing := NewIngestor(repo, handler, deduper, limiter, IngestConfig{StaleTolerance: 120 * time.Second})
	ing.now = func() time.Time { return ingestNow }
	return ing, repo
}

func inbound(id, text string) *transport.InboundMessage {
	return &transport.InboundMessage{
		ID:         id,
		ChatID:     testContact,
		SenderName: "Ana",
		Text:       text,
		Timestamp:  ingestNow.Add(-5 * time.Second),
	}
}

func TestIngestor_Accepts(t *testing.T) {
	ctx := context.Background()

	t.Run("records then hands over plain text", func(t *testing.T) {
		handler := new(mockMessageHandler)
		handler.On("Handle", ctx, testTenant, testContact, "Civic", "Ana").Return(nil)
		ing, repo := newTestIngestor(handler, nil, nil)

		ing.Ingest(ctx, testTenant, inbound("m1", "  Civic  "))

		handler.AssertExpectations(t)
		msgs := repo.All()
		require.Len(t, msgs, 1)
		assert.Equal(t, model.DirectionCustomer, msgs[0].Direction)
		assert.Equal(t, "Civic", msgs[0].Body)
		assert.Equal(t, "Ana", msgs[0].SenderName)
		require.NotNil(t, msgs[0].ExternalMessageID)
		assert.Equal(t, "m1", *msgs[0].ExternalMessageID)
	})

	t.Run("falls back to the caption", func(t *testing.T) {
		handler := new(mockMessageHandler)
		handler.On("Handle", ctx, testTenant, testContact, "esse aqui tem?", "Ana").Return(nil)
		ing, _ := newTestIngestor(handler, nil, nil)

		msg := inbound("m2", "")
		msg.Caption = "esse aqui tem?"
		ing.Ingest(ctx, testTenant, msg)

		handler.AssertExpectations(t)
	})

	t.Run("record failure does not stop the reply", func(t *testing.T) {
		handler := new(mockMessageHandler)
		handler.On("Handle", ctx, testTenant, testContact, "oi", "Ana").Return(nil)
		ing, repo := newTestIngestor(handler, nil, nil)
		repo.createErr = errors.New("db down")

		ing.Ingest(ctx, testTenant, inbound("m3", "oi"))

		handler.AssertExpectations(t)
	})

	t.Run("handler error is logged only", func(t *testing.T) {
		handler := new(mockMessageHandler)
		handler.On("Handle", ctx, testTenant, testContact, "oi", "Ana").Return(transport.ErrNotConnected)
		ing, repo := newTestIngestor(handler, nil, nil)

		ing.Ingest(ctx, testTenant, inbound("m4", "oi"))

		assert.Len(t, repo.All(), 1)
	})
}

func TestIngestor_Drops(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(m *transport.InboundMessage)
	}{
		{"group", func(m *transport.InboundMessage) { m.IsGroup = true }},
		{"broadcast", func(m *transport.InboundMessage) { m.IsBroadcast = true }},
		{"channel", func(m *transport.InboundMessage) { m.IsChannel = true }},
		{"own message", func(m *transport.InboundMessage) { m.FromMe = true }},
		{"no text", func(m *transport.InboundMessage) { m.Text = "   " }},
		{"no chat", func(m *transport.InboundMessage) { m.ChatID = "" }},
		{"stale", func(m *transport.InboundMessage) { m.Timestamp = ingestNow.Add(-121 * time.Second) }},
		{"missing timestamp", func(m *transport.InboundMessage) { m.Timestamp = time.Time{} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := new(mockMessageHandler)
			ing, repo := newTestIngestor(handler, nil, nil)

			msg := inbound("m1", "Civic")
			tc.mutate(msg)
			ing.Ingest(ctx, testTenant, msg)

			handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, repo.All())
		})
	}

	t.Run("nil message", func(t *testing.T) {
		handler := new(mockMessageHandler)
		ing, repo := newTestIngestor(handler, nil, nil)

		ing.Ingest(ctx, testTenant, nil)

		assert.Empty(t, repo.All())
	})

	t.Run("message at the tolerance edge is kept", func(t *testing.T) {
		handler := new(mockMessageHandler)
		handler.On("Handle", ctx, testTenant, testContact, "Civic", "Ana").Return(nil)
		ing, _ := newTestIngestor(handler, nil, nil)

		msg := inbound("m1", "Civic")
		msg.Timestamp = ingestNow.Add(-120 * time.Second)
		ing.Ingest(ctx, testTenant, msg)

		handler.AssertExpectations(t)
	})
}

func TestIngestor_Dedupe(t *testing.T) {
	ctx := context.Background()
	cache := dedupe.NewMemoryCache(time.Minute, 100)
	defer cache.Close()

	handler := new(mockMessageHandler)
	handler.On("Handle", ctx, mock.Anything, testContact, "Civic", "Ana").Return(nil)
	ing, repo := newTestIngestor(handler, cache, nil)

	ing.Ingest(ctx, testTenant, inbound("m1", "Civic"))
	ing.Ingest(ctx, testTenant, inbound("m1", "Civic"))
	ing.Ingest(ctx, "t2", inbound("m1", "Civic"))

	handler.AssertNumberOfCalls(t, "Handle", 2)
	assert.Len(t, repo.All(), 2)
}

func TestIngestor_FloodLimit(t *testing.T) {
	ctx := context.Background()
	handler := new(mockMessageHandler)
	limiter := &stubLimiter{allow: false}
	ing, repo := newTestIngestor(handler, nil, limiter)

	ing.Ingest(ctx, testTenant, inbound("m1", "Civic"))

	assert.Equal(t, 1, limiter.calls)
	assert.Len(t, repo.All(), 1)
	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestor_StaleNeverReplied(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine := NewDialogueEngine(NewStateStore(), sender, nil, nil, nil, DefaultMessages(), DialogueConfig{SearchLimit: 3})
	ing, repo := newTestIngestor(engine, nil, nil)

	msg := inbound("m1", "menu")
	msg.Timestamp = ingestNow.Add(-10 * time.Minute)
	ing.Ingest(ctx, testTenant, msg)

	assert.Empty(t, sender.Sent())
	for _, m := range repo.All() {
		assert.NotEqual(t, model.DirectionBot, m.Direction)
	}
}
