// Package transport defines the realtime frame contract between the sync
// core and the server connection, plus a websocket adapter implementing it.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action identifies a frame's purpose.
type Action string

const (
	ActionCreateMessage        Action = "CREATE_MESSAGE"
	ActionCreateSessionMessage Action = "CREATE_SESSION_MESSAGE"
	ActionCreateCall           Action = "CREATE_CALL"
	ActionAcknowledgeReceipt   Action = "ACKNOWLEDGE_MESSAGE_RECEIPT"
	ActionAcknowledgeReceipts  Action = "ACKNOWLEDGE_MESSAGE_RECEIPTS"
	ActionListPendingMessages  Action = "LIST_PENDING_MESSAGES"
	ActionSendSessionMessage   Action = "SEND_SESSION_MESSAGE"
	ActionSendSessionAck       Action = "SEND_SESSION_ACK_MESSAGE"
)

// Frame is one unit on the realtime channel.
type Frame struct {
	ID     string          `json:"id"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Sender pushes outgoing frames. IsConnected feeds the job queue's
// self-healing suspend check.
type Sender interface {
	Send(ctx context.Context, f *Frame) error
	IsConnected() bool
}

// Handler receives incoming frames pushed by the connection.
type Handler func(f *Frame)

// EnvelopeData is the wire shape of an incoming message envelope.
type EnvelopeData struct {
	MessageID        string    `json:"message_id"`
	ConversationID   string    `json:"conversation_id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id,omitempty"`
	RepresentativeID string    `json:"representative_id,omitempty"`
	Category         string    `json:"category"`
	Data             string    `json:"data"`
	QuoteMessageID   string    `json:"quote_message_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	Source           string    `json:"source,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// AckReceipt acknowledges transport delivery of one message.
type AckReceipt struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// AckReceipts is a batched acknowledgment payload.
type AckReceipts struct {
	Messages []AckReceipt `json:"messages"`
}

// MessageParam is the payload for an outgoing control/plain message.
type MessageParam struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Category       string `json:"category"`
	Data           string `json:"data"`
	Status         string `json:"status,omitempty"`
}

func mustFrame(action Action, payload any) *Frame {
	data, _ := json.Marshal(payload)
	return &Frame{ID: uuid.NewString(), Action: action, Data: data}
}

// NewAck builds a delivery acknowledgment frame.
func NewAck(messageID, status string) *Frame {
	return mustFrame(ActionAcknowledgeReceipt, AckReceipt{MessageID: messageID, Status: status})
}

// NewBatchAck builds a batched acknowledgment frame.
func NewBatchAck(receipts []AckReceipt) *Frame {
	return mustFrame(ActionAcknowledgeReceipts, AckReceipts{Messages: receipts})
}

// NewSessionAck builds an acknowledgment addressed to the companion session.
func NewSessionAck(messageID, status string) *Frame {
	return mustFrame(ActionSendSessionAck, AckReceipt{MessageID: messageID, Status: status})
}

// NewSessionSend builds a mirror frame carrying a canonical message to the
// companion session.
func NewSessionSend(p MessageParam) *Frame {
	return mustFrame(ActionSendSessionMessage, p)
}

// NewListPending asks the server to re-push everything queued for this
// session since the given offset, sent on every (re)connect.
func NewListPending(offset int64) *Frame {
	return mustFrame(ActionListPendingMessages, map[string]int64{"offset": offset})
}

// NewMessage builds an outgoing message frame.
func NewMessage(p MessageParam) *Frame {
	return mustFrame(ActionCreateMessage, p)
}
