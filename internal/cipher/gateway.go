// Package cipher defines the contract of the session-encryption black box
// and the codec for the envelope's embedded ciphertext header. The ratchet
// algorithm itself is out of scope; this package only consumes it.
package cipher

import "context"

// Ratchet recovery states for a (conversation, sender) pair. REQUESTING
// suppresses re-issuing a resend-key request while one is outstanding.
const (
	RatchetOK         = ""
	RatchetRequesting = "REQUESTING"
)

// Ciphertext key types, mirroring the underlying protocol's message kinds.
const (
	KeyTypePreKey       uint8 = 1
	KeyTypeSignal       uint8 = 2
	KeyTypeSenderKey    uint8 = 4
	KeyTypeDistribution uint8 = 5
)

// DefaultDeviceID addresses the primary device session.
const DefaultDeviceID uint32 = 1

// Gateway is the session-encryption collaborator.
type Gateway interface {
	// Decrypt returns the plaintext for a ciphertext body, or an error on
	// session failure. A SIGNAL_KEY body updates session state and yields
	// no plaintext.
	Decrypt(ctx context.Context, conversationID, senderID string, keyType uint8, ciphertext []byte, category string, deviceID uint32) ([]byte, error)

	// Encrypt produces a ciphertext body addressed to a recipient for an
	// outgoing resend of a stored message.
	Encrypt(ctx context.Context, conversationID, recipientID string, plaintext []byte, category string) (string, error)

	// EncryptSenderKey produces a SIGNAL_KEY body carrying the local sender
	// key for the recipient's session.
	EncryptSenderKey(ctx context.Context, conversationID, recipientID string, deviceID uint32) (string, error)

	// RatchetStatus returns the recovery state for a pair.
	RatchetStatus(conversationID, senderID string) string
	SetRatchetStatus(conversationID, senderID, status string)
	// DeleteRatchetKey clears stale recovery state for a pair.
	DeleteRatchetKey(conversationID, senderID string)

	// ClearSenderKey drops the local sender key for a conversation, forcing
	// a re-exchange on next send.
	ClearSenderKey(conversationID, senderID string)
	// ContainsSession reports whether a session with the recipient exists.
	ContainsSession(userID string) bool

	// GenerateAndSyncKeys replenishes one-time prekeys with the server when
	// the pool runs low.
	GenerateAndSyncKeys(ctx context.Context) error
}
