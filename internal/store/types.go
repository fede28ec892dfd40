package store

import "github.com/helia-im/helia/internal/category"

// Status is a canonical message delivery status. Ranks are strictly
// increasing; FAILED is a terminal side branch.
type Status string

const (
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
	StatusUnknown   Status = "UNKNOWN"
)

var statusRank = map[Status]int{
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// Rank returns the monotonic order of a status, 0 for FAILED/UNKNOWN.
func (s Status) Rank() int {
	return statusRank[s]
}

// Conversation sync states. QUIT and unresolved START group conversations
// gate message processing.
const (
	ConversationStart   = "START"
	ConversationSuccess = "SUCCESS"
	ConversationQuit    = "QUIT"
)

// Conversation categories.
const (
	ConversationContact = "CONTACT"
	ConversationGroup   = "GROUP"
)

// Envelope is a raw incoming message staged before full processing. It is
// born at transport receipt and dies when the drain loop reaches a terminal
// outcome for it.
type Envelope struct {
	MessageID        string
	ConversationID   string
	SenderID         string
	SessionID        string
	RepresentativeID string
	Category         category.Category
	Payload          string // base64 transfer payload or encoded ciphertext
	QuoteMessageID   string
	Source           string
	SessionScoped    bool
	CreatedAt        int64 // unix millis
}

// Message is a finalized canonical chat message.
type Message struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Category       category.Category
	Content        string
	MediaURL       string
	MediaMimeType  string
	MediaSize      int64
	MediaWidth     int64
	MediaHeight    int64
	MediaDuration  int64
	MediaStatus    string
	ThumbImage     string
	Name           string
	StickerID      string
	SharedUserID   string
	SnapshotID     string
	Action         string
	ParticipantID  string
	QuoteMessageID string
	QuoteContent   string
	Status         Status
	CreatedAt      int64
}

// Conversation is the local record of a chat plus its derived summary.
type Conversation struct {
	ConversationID       string
	OwnerID              string
	Category             string
	Name                 string
	Status               string
	UnseenMessageCount   int
	LastMessageID        string
	LastMessageCreatedAt int64
	CreatedAt            int64
}

// Participant is a conversation membership record.
type Participant struct {
	ConversationID string
	UserID         string
	Role           string
	CreatedAt      int64
}

// User is a cached directory user. A non-empty AppID marks an automated
// participant (bot).
type User struct {
	UserID         string
	IdentityNumber string
	FullName       string
	AvatarURL      string
	AppID          string
	Relationship   string
}

// Sticker is a cached sticker asset.
type Sticker struct {
	StickerID   string
	AlbumID     string
	Name        string
	AssetURL    string
	AssetWidth  int64
	AssetHeight int64
}
