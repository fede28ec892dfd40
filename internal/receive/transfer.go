package receive

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/helia-im/helia/internal/category"
)

// Transfer payloads are the base64-encoded JSON bodies carried by plain and
// decrypted signal envelopes. Decode failures and invalid required fields
// drop the message without persisting it.

var errInvalidTransfer = errors.New("receive: invalid transfer payload")

// Attachment describes an image, video, file or audio body.
type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Name         string `json:"name,omitempty"`
	Width        int64  `json:"width,omitempty"`
	Height       int64  `json:"height,omitempty"`
	Duration     int64  `json:"duration,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
}

// Validate checks the required numeric fields for the attachment's kind.
func (a *Attachment) Validate(kind category.Kind) error {
	if a.MimeType == "" {
		return fmt.Errorf("%w: empty mime type", errInvalidTransfer)
	}
	if a.Size <= 0 {
		return fmt.Errorf("%w: non-positive size %d", errInvalidTransfer, a.Size)
	}
	if kind == category.KindImage || kind == category.KindVideo {
		if a.Width <= 0 || a.Height <= 0 {
			return fmt.Errorf("%w: dimensions %dx%d", errInvalidTransfer, a.Width, a.Height)
		}
	}
	return nil
}

// StickerRef references a sticker either directly by id or by album+name.
type StickerRef struct {
	StickerID string `json:"sticker_id,omitempty"`
	AlbumID   string `json:"album_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// ContactRef shares a directory user.
type ContactRef struct {
	UserID string `json:"user_id"`
}

// RecallRef points at the message being recalled.
type RecallRef struct {
	MessageID string `json:"message_id"`
}

// Plain-JSON control actions carried inside a conversation.
const (
	PlainActionResendKey      = "RESEND_KEY"
	PlainActionResendMessages = "RESEND_MESSAGES"
	PlainActionNoKey          = "NO_KEY"
)

// PlainJSON is the in-conversation control payload (resend protocol).
type PlainJSON struct {
	Action    string   `json:"action"`
	MessageID string   `json:"message_id,omitempty"`
	Messages  []string `json:"messages,omitempty"`
}

// System conversation actions.
const (
	SystemActionAdd    = "ADD"
	SystemActionRemove = "REMOVE"
	SystemActionJoin   = "JOIN"
	SystemActionExit   = "EXIT"
	SystemActionCreate = "CREATE"
	SystemActionRole   = "ROLE"
	SystemActionUpdate = "UPDATE"
)

// SystemConversation is a membership/ownership mutation event.
type SystemConversation struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	ParticipantID  string `json:"participant_id,omitempty"`
	Role           string `json:"role,omitempty"`
}

// Companion session lifecycle actions.
const (
	SessionActionProvision = "PROVISION"
	SessionActionDestroy   = "DESTROY"
)

// SystemSession announces a companion session being linked or unlinked.
type SystemSession struct {
	Action    string `json:"action"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Snapshot is an account balance change event.
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`
	Type       string `json:"type"`
	AssetID    string `json:"asset_id,omitempty"`
	Amount     string `json:"amount,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
}

func decodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return raw, nil
}

func decodeJSON(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidTransfer, err)
	}
	return nil
}

func decodeBase64JSON(payload string, out any) error {
	raw, err := decodeBase64(payload)
	if err != nil {
		return err
	}
	return decodeJSON(raw, out)
}
