package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/repository"
	"github.com/zapflow/bot-server-go/internal/transport"
)

// ConnProvider hands out a tenant's live connection.
type ConnProvider interface {
	Conn(tenantID string) (transport.Conn, error)
}

type sendKind string

const (
	sendKindMedia  sendKind = "media"
	sendKindDetail sendKind = "detail"
)

type DispatcherConfig struct {
	MediaSpacing  time.Duration
	DetailSpacing time.Duration
	SendTimeout   time.Duration
}

// Dispatcher is the only path to the transport for outbound messages. It
// resolves addresses, paces media and detail sends per tenant, and records
// every successful send in the chat log.
type Dispatcher struct {
	conns    ConnProvider
	messages repository.ChatMessageRepository
	cfg      DispatcherConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDispatcher(conns ConnProvider, messages repository.ChatMessageRepository, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		conns:    conns,
		messages: messages,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// NormalizeAddress turns a loosely formatted contact id into a transport
// address. Ids that already carry a server part are used as-is.
func NormalizeAddress(contactID string) (string, error) {
	contactID = strings.TrimSpace(contactID)
	if strings.Contains(contactID, "@") {
		if strings.HasPrefix(contactID, "@") || strings.HasSuffix(contactID, "@") {
			return "", apperrors.InvalidContact(contactID)
		}
		return contactID, nil
	}

	var digits strings.Builder
	for _, r := range contactID {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", apperrors.InvalidContact(contactID)
	}
	return digits.String() + "@" + transport.DefaultUserServer, nil
}

func (d *Dispatcher) SendText(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error {
	return d.send(ctx, tenantID, contactID, "", text, direction, "")
}

// SendDetail sends a structured item summary, spaced from the previous one.
func (d *Dispatcher) SendDetail(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error {
	return d.send(ctx, tenantID, contactID, "", text, direction, sendKindDetail)
}

// SendMedia sends an image by URI, spaced from the previous media send.
func (d *Dispatcher) SendMedia(ctx context.Context, tenantID, contactID, uri, caption string, direction model.Direction) error {
	if strings.TrimSpace(uri) == "" {
		return apperrors.MissingRequired("uri")
	}
	return d.send(ctx, tenantID, contactID, uri, caption, direction, sendKindMedia)
}

func (d *Dispatcher) send(ctx context.Context, tenantID, contactID, uri, text string, direction model.Direction, kind sendKind) error {
	to, err := NormalizeAddress(contactID)
	if err != nil {
		return err
	}

	if kind != "" {
		if err := d.limiter(tenantID, kind).Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s spacing: %w", kind, err)
		}
	}

	conn, err := d.conns.Conn(tenantID)
	if err != nil {
		return err
	}

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	var externalID string
	body := text
	if kind == sendKindMedia {
		externalID, err = conn.SendMedia(sendCtx, to, transport.Media{URI: uri, Caption: text})
		if body == "" {
			body = uri
		}
	} else {
		externalID, err = conn.SendText(sendCtx, to, text)
	}
	if err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return err
		}
		return fmt.Errorf("send to %s: %w", to, err)
	}

	params := model.CreateChatMessageParams{
		TenantID:  tenantID,
		ContactID: to,
		Direction: direction,
		Body:      body,
	}
	if externalID != "" {
		params.ExternalMessageID = &externalID
	}
	if _, err := d.messages.Create(ctx, params); err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenantID).
			Str("direction", string(direction)).
			Msg("failed to record outbound message")
	}

	return nil
}

func (d *Dispatcher) limiter(tenantID string, kind sendKind) *rate.Limiter {
	key := tenantID + "|" + string(kind)

	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.limiters[key]; ok {
		return l
	}

	spacing := d.cfg.DetailSpacing
	if kind == sendKindMedia {
		spacing = d.cfg.MediaSpacing
	}

	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	l := rate.NewLimiter(limit, 1)
	d.limiters[key] = l
	return l
}

// ForgetTenant drops the tenant's pacing state.
func (d *Dispatcher) ForgetTenant(tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.limiters, tenantID+"|"+string(sendKindMedia))
	delete(d.limiters, tenantID+"|"+string(sendKindDetail))
}
