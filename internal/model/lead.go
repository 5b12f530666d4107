package model

import (
	"time"
)

type Lead struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	ContactID    string    `db:"contact_id" json:"contactId"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	LastMessage  string    `db:"last_message" json:"lastMessage"`
	MessageCount int       `db:"message_count" json:"messageCount"`
	FirstSeenAt  time.Time `db:"first_seen_at" json:"firstSeenAt"`
	LastSeenAt   time.Time `db:"last_seen_at" json:"lastSeenAt"`
}

type LeadInteraction struct {
	TenantID    string
	ContactID   string
	Text        string
	DisplayName string
}
