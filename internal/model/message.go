package model

import (
	"time"
)

type ChatMessage struct {
	ID                string    `db:"id" json:"id"`
	TenantID          string    `db:"tenant_id" json:"tenantId"`
	ContactID         string    `db:"contact_id" json:"contactId"`
	Direction         Direction `db:"direction" json:"direction"`
	Body              string    `db:"body" json:"body"`
	SenderName        string    `db:"sender_name" json:"senderName"`
	ExternalMessageID *string   `db:"external_message_id" json:"externalMessageId,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

type CreateChatMessageParams struct {
	TenantID          string
	ContactID         string
	Direction         Direction
	Body              string
	SenderName        string
	ExternalMessageID *string
}
