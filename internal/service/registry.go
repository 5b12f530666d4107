package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/zapflow/bot-server-go/internal/errors"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/repository"
	"github.com/zapflow/bot-server-go/internal/transport"
	"github.com/zapflow/bot-server-go/internal/util"
)

const (
	defaultHistoryLimit      = 100
	defaultConversationLimit = 50
)

// Registry is the public entry point of the chat core. It validates caller
// input and composes the session manager, state store and dispatcher.
type Registry struct {
	sessions   *SessionManager
	state      *StateStore
	dispatcher *Dispatcher
	messages   repository.ChatMessageRepository
}

func NewRegistry(
	sessions *SessionManager,
	state *StateStore,
	dispatcher *Dispatcher,
	messages repository.ChatMessageRepository,
) *Registry {
	return &Registry{
		sessions:   sessions,
		state:      state,
		dispatcher: dispatcher,
		messages:   messages,
	}
}

func validateTenant(tenantID string) error {
	if !util.IsValidTenantID(tenantID) {
		return apperrors.InvalidTenant(tenantID)
	}
	return nil
}

func (r *Registry) StartSession(tenantID string) (model.SessionSnapshot, error) {
	if err := validateTenant(tenantID); err != nil {
		return model.SessionSnapshot{}, err
	}
	return r.sessions.Start(tenantID), nil
}

func (r *Registry) GetSessionStatus(tenantID string) (model.SessionSnapshot, error) {
	if err := validateTenant(tenantID); err != nil {
		return model.SessionSnapshot{}, err
	}
	return r.sessions.Status(tenantID), nil
}

// ResetSession forgets everything about the tenant except its pause flag.
func (r *Registry) ResetSession(ctx context.Context, tenantID string) error {
	if err := validateTenant(tenantID); err != nil {
		return err
	}
	r.sessions.Reset(ctx, tenantID)
	r.state.ForgetTenant(tenantID)
	r.dispatcher.ForgetTenant(tenantID)
	return nil
}

func (r *Registry) SetPaused(tenantID string, paused bool) error {
	if err := validateTenant(tenantID); err != nil {
		return err
	}
	r.state.SetPaused(tenantID, paused)
	log.Info().Str("tenantId", tenantID).Bool("paused", paused).Msg("auto-reply pause changed")
	return nil
}

func (r *Registry) IsPaused(tenantID string) (bool, error) {
	if err := validateTenant(tenantID); err != nil {
		return false, err
	}
	return r.state.IsPaused(tenantID), nil
}

// SendManual delivers an operator message without touching the dialogue state.
func (r *Registry) SendManual(ctx context.Context, tenantID, contactID, text string) error {
	if err := validateTenant(tenantID); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return apperrors.MissingRequired("text")
	}
	if _, err := NormalizeAddress(contactID); err != nil {
		return err
	}

	err := r.dispatcher.SendText(ctx, tenantID, contactID, text, model.DirectionOperator)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrNotConnected):
		return apperrors.SessionNotConnected()
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.SendFailed(err)
	}
}

// GetHistory returns the latest messages with a contact, oldest first.
func (r *Registry) GetHistory(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	address, err := NormalizeAddress(contactID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	msgs, err := r.messages.FindByContact(ctx, tenantID, address, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return msgs, nil
}

// GetRecentConversations lists contacts by most recent activity.
func (r *Registry) GetRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultConversationLimit
	}

	convs, err := r.messages.FindRecentConversations(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if convs == nil {
		convs = []model.ConversationSummary{}
	}
	return convs, nil
}

func (r *Registry) ListSessions() []model.SessionSnapshot {
	return r.sessions.List()
}
