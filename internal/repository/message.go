package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zapflow/bot-server-go/internal/model"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error)
	FindByContact(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error)
	FindRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error)
}

type chatMessageRepo struct {
	db *sqlx.DB
}

func NewChatMessageRepository(db *sqlx.DB) ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (r *chatMessageRepo) Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO chat_messages
			(id, tenant_id, contact_id, direction, body, sender_name, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, uuid.NewString(), params.TenantID, params.ContactID, params.Direction,
		params.Body, params.SenderName, params.ExternalMessageID, time.Now())
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByContact returns the latest messages of a conversation, oldest first.
func (r *chatMessageRepo) FindByContact(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT * FROM chat_messages
			WHERE tenant_id = $1 AND contact_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) latest
		ORDER BY created_at ASC
	`, tenantID, contactID, limit)
	return msgs, err
}

// FindRecentConversations returns one row per contact, most recently active first.
// The display name is the latest non-empty name a customer sent under.
func (r *chatMessageRepo) FindRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error) {
	var convs []model.ConversationSummary
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM (
			SELECT DISTINCT ON (m.contact_id)
				m.contact_id,
				COALESCE((
					SELECT c.sender_name FROM chat_messages c
					WHERE c.tenant_id = m.tenant_id
						AND c.contact_id = m.contact_id
						AND c.direction = 'customer'
						AND c.sender_name <> ''
					ORDER BY c.created_at DESC
					LIMIT 1
				), '') AS display_name,
				m.created_at AS last_timestamp,
				m.body AS last_message_preview
			FROM chat_messages m
			WHERE m.tenant_id = $1
			ORDER BY m.contact_id, m.created_at DESC
		) recent
		ORDER BY last_timestamp DESC
		LIMIT $2
	`, tenantID, limit)
	return convs, err
}
