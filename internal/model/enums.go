package model

type SessionStatus string

const (
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusConnecting   SessionStatus = "connecting"
	SessionStatusQrReady      SessionStatus = "qr_ready"
	SessionStatusConnected    SessionStatus = "connected"
)

type ConversationMode string

const (
	ConversationModeMenu       ConversationMode = "menu"
	ConversationModeWaitingFAQ ConversationMode = "waiting_faq"
	ConversationModeHandover   ConversationMode = "handover"
)

type Direction string

const (
	DirectionCustomer Direction = "customer"
	DirectionOperator Direction = "operator"
	DirectionBot      Direction = "bot"
)
