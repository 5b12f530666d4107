package model

import (
	"time"
)

type ConversationSummary struct {
	ContactID          string    `db:"contact_id" json:"contactId"`
	DisplayName        string    `db:"display_name" json:"displayName"`
	LastTimestamp      time.Time `db:"last_timestamp" json:"lastTimestamp"`
	LastMessagePreview string    `db:"last_message_preview" json:"lastMessagePreview"`
}
