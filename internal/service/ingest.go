package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapflow/bot-server-go/internal/dedupe"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/repository"
	"github.com/zapflow/bot-server-go/internal/transport"
	"github.com/zapflow/bot-server-go/internal/util"
)

// MessageHandler consumes inbound customer text.
type MessageHandler interface {
	Handle(ctx context.Context, tenantID, contactID, text, displayName string) error
}

type IngestConfig struct {
	StaleTolerance time.Duration
}

// Ingestor filters raw inbound messages, records the survivors and hands
// them to the dialogue engine.
type Ingestor struct {
	messages repository.ChatMessageRepository
	handler  MessageHandler
	deduper  dedupe.Deduper
	limiter  InboundLimiter
	cfg      IngestConfig
	now      func() time.Time
}

// NewIngestor builds the pipeline. deduper and limiter are optional.
func NewIngestor(
	messages repository.ChatMessageRepository,
	handler MessageHandler,
	deduper dedupe.Deduper,
	limiter InboundLimiter,
	cfg IngestConfig,
) *Ingestor {
	return &Ingestor{
		messages: messages,
		handler:  handler,
		deduper:  deduper,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
}

type dropReason string

const (
	dropNotDirect dropReason = "not_direct"
	dropFromMe    dropReason = "from_me"
	dropNoText    dropReason = "no_text"
	dropStale     dropReason = "stale"
	dropDuplicate dropReason = "duplicate"
)

// Ingest runs on the tenant's worker, so messages of one tenant are handled
// in arrival order.
func (i *Ingestor) Ingest(ctx context.Context, tenantID string, msg *transport.InboundMessage) {
	if msg == nil {
		return
	}

	text, reason := i.filter(msg)
	if reason == "" {
		reason = i.checkDuplicate(ctx, tenantID, msg)
	}
	if reason != "" {
		log.Debug().
			Str("tenantId", tenantID).
			Str("messageId", msg.ID).
			Str("reason", string(reason)).
			Msg("inbound message dropped")
		return
	}

	params := model.CreateChatMessageParams{
		TenantID:   tenantID,
		ContactID:  msg.ChatID,
		Direction:  model.DirectionCustomer,
		Body:       text,
		SenderName: msg.SenderName,
	}
	if msg.ID != "" {
		id := msg.ID
		params.ExternalMessageID = &id
	}
	if _, err := i.messages.Create(ctx, params); err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(msg.ChatID)).
			Msg("failed to record inbound message")
	}

	if i.limiter != nil && !i.limiter.Allow(ctx, tenantID, msg.ChatID) {
		log.Warn().
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(msg.ChatID)).
			Msg("contact over inbound flood limit, skipping reply")
		return
	}

	if err := i.handler.Handle(ctx, tenantID, msg.ChatID, text, msg.SenderName); err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenantID).
			Str("contactId", util.MaskContact(msg.ChatID)).
			Msg("failed to handle inbound message")
	}
}

func (i *Ingestor) filter(msg *transport.InboundMessage) (string, dropReason) {
	if msg.IsGroup || msg.IsBroadcast || msg.IsChannel {
		return "", dropNotDirect
	}
	if msg.FromMe {
		return "", dropFromMe
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" || msg.ChatID == "" {
		return "", dropNoText
	}

	if msg.Timestamp.IsZero() || i.now().Sub(msg.Timestamp) > i.cfg.StaleTolerance {
		return "", dropStale
	}

	return text, ""
}

func (i *Ingestor) checkDuplicate(ctx context.Context, tenantID string, msg *transport.InboundMessage) dropReason {
	if i.deduper == nil || msg.ID == "" {
		return ""
	}

	seen, err := i.deduper.Seen(ctx, tenantID+":"+msg.ID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenantId", tenantID).
			Msg("dedupe check failed, processing message")
		return ""
	}
	if seen {
		return dropDuplicate
	}
	return ""
}
