package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by prefix,
// e.g. "message." for everything message-related.
const (
	KindMessageInserted     = "message.inserted"
	KindMessageRedecrypted  = "message.redecrypted"
	KindMessageStatus       = "message.status_changed"
	KindMessageRecalled     = "message.recalled"
	KindConversationChanged = "conversation.changed"
	KindSessionChanged      = "session.companion_changed"
	KindStatusChanged       = "status.changed"
	KindCallCandidates      = "call.candidates_flushed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a message in change notifications.
type MessageRef struct {
	ConversationID string
	MessageID      string
}

// CallCandidates carries the ICE candidate payloads buffered while a call
// offer was pending, flushed alongside the terminal call message.
type CallCandidates struct {
	ConversationID string
	OfferID        string
	MessageID      string
	Candidates     []string
}
