// Package transport defines the connection contract the session manager
// depends on. Concrete messaging clients live in their own packages.
package transport

import (
	"context"
	"errors"
	"time"
)

// DefaultUserServer is appended to bare phone numbers to form an address.
const DefaultUserServer = "s.whatsapp.net"

// ErrNotConnected is returned by sends on a handle that is closed or not yet logged in.
var ErrNotConnected = errors.New("transport not connected")

type EventType string

const (
	EventQR           EventType = "qr"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
)

type DisconnectReason int

const (
	// DisconnectRecoverable covers network drops, stream replacement and
	// expired QR rounds. The session manager schedules a reconnect.
	DisconnectRecoverable DisconnectReason = iota
	// DisconnectLoggedOut means the pairing was revoked. Credentials are erased.
	DisconnectLoggedOut
)

func (r DisconnectReason) String() string {
	if r == DisconnectLoggedOut {
		return "logged_out"
	}
	return "recoverable"
}

type Event struct {
	Type    EventType
	QR      string
	Reason  DisconnectReason
	Err     error
	Message *InboundMessage
}

// InboundMessage is a transport-neutral view of a received message.
type InboundMessage struct {
	ID          string
	ChatID      string
	SenderName  string
	Text        string
	Caption     string
	Timestamp   time.Time
	IsGroup     bool
	IsBroadcast bool
	IsChannel   bool
	FromMe      bool
}

type Handler func(Event)

type Media struct {
	URI     string
	Caption string
}

// Conn is one tenant's live connection handle.
type Conn interface {
	// Connect starts the login flow and returns once the socket is open.
	// Pairing progress and the final result arrive as events.
	Connect(ctx context.Context) error
	// OnEvent registers the single event handler. Must be called before Connect.
	OnEvent(h Handler)
	SendText(ctx context.Context, to, text string) (string, error)
	SendMedia(ctx context.Context, to string, media Media) (string, error)
	// Persist flushes pairing credentials to durable storage.
	Persist(ctx context.Context) error
	Logout(ctx context.Context) error
	Close() error
}

type Factory interface {
	Open(ctx context.Context, tenantID string) (Conn, error)
}
