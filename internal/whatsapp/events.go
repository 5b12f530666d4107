package whatsapp

import (
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/zapflow/bot-server-go/internal/transport"
)

var (
	errStreamReplaced = errors.New("stream replaced by another client")
	errClientOutdated = errors.New("client version outdated")
)

// convertEvent maps a whatsmeow event onto the transport contract. Events
// the session manager has no use for are reported as not ok.
func convertEvent(evt any) (transport.Event, bool) {
	switch v := evt.(type) {
	case *events.Message:
		return transport.Event{Type: transport.EventMessage, Message: toInbound(v)}, true

	case *events.Connected:
		return transport.Event{Type: transport.EventConnected}, true

	case *events.LoggedOut:
		return disconnected(transport.DisconnectLoggedOut, fmt.Errorf("logged out: %v", v.Reason)), true

	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return disconnected(transport.DisconnectLoggedOut, fmt.Errorf("connect failure: %v", v.Reason)), true
		}
		return disconnected(transport.DisconnectRecoverable, fmt.Errorf("connect failure: %v %s", v.Reason, v.Message)), true

	case *events.TemporaryBan:
		return disconnected(transport.DisconnectRecoverable, fmt.Errorf("temporary ban: %v", v)), true

	case *events.StreamReplaced:
		return disconnected(transport.DisconnectRecoverable, errStreamReplaced), true

	case *events.ClientOutdated:
		return disconnected(transport.DisconnectRecoverable, errClientOutdated), true

	case *events.Disconnected:
		return disconnected(transport.DisconnectRecoverable, nil), true
	}

	return transport.Event{}, false
}

func disconnected(reason transport.DisconnectReason, err error) transport.Event {
	return transport.Event{Type: transport.EventDisconnected, Reason: reason, Err: err}
}

func toInbound(v *events.Message) *transport.InboundMessage {
	chat := v.Info.Chat
	return &transport.InboundMessage{
		ID:          string(v.Info.ID),
		ChatID:      chat.ToNonAD().String(),
		SenderName:  strings.TrimSpace(v.Info.PushName),
		Text:        messageText(v.Message),
		Caption:     messageCaption(v.Message),
		Timestamp:   v.Info.Timestamp,
		IsGroup:     v.Info.IsGroup || chat.Server == types.GroupServer,
		IsBroadcast: chat.Server == types.BroadcastServer,
		IsChannel:   chat.Server == types.NewsletterServer,
		FromMe:      v.Info.IsFromMe,
	}
}

func messageText(msg *waE2E.Message) string {
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

func messageCaption(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}
