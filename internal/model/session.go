package model

import (
	"encoding/json"
	"time"
)

// SessionSnapshot is a point-in-time copy of a tenant's session state.
type SessionSnapshot struct {
	TenantID  string        `json:"tenantId"`
	Status    SessionStatus `json:"status"`
	QR        string        `json:"qr,omitempty"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
}

// ToSSEEventData returns JSON data for SSE session events
func (s SessionSnapshot) ToSSEEventData() json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
