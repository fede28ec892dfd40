package cipher

import (
	"context"
	"errors"
	"sync"
)

// ErrNoEngine is returned by a Memory gateway whose crypto functions were
// not bound to a session engine.
var ErrNoEngine = errors.New("cipher: no session engine bound")

// Memory implements Gateway with in-memory ratchet and session bookkeeping.
// The crypto operations delegate to the bound function fields; unbound they
// fail with ErrNoEngine. A ratchet recovery record exists per
// (conversation, sender) pair from its first failure until cleared.
type Memory struct {
	DecryptFunc          func(ctx context.Context, conversationID, senderID string, keyType uint8, ciphertext []byte, category string, deviceID uint32) ([]byte, error)
	EncryptFunc          func(ctx context.Context, conversationID, recipientID string, plaintext []byte, category string) (string, error)
	EncryptSenderKeyFunc func(ctx context.Context, conversationID, recipientID string, deviceID uint32) (string, error)
	SyncKeysFunc         func(ctx context.Context) error

	mu       sync.Mutex
	ratchets map[string]string
	sessions map[string]bool
}

// NewMemory creates an empty memory gateway.
func NewMemory() *Memory {
	return &Memory{
		ratchets: make(map[string]string),
		sessions: make(map[string]bool),
	}
}

func ratchetKey(conversationID, senderID string) string {
	return conversationID + "|" + senderID
}

func (m *Memory) Decrypt(ctx context.Context, conversationID, senderID string, keyType uint8, ciphertext []byte, category string, deviceID uint32) ([]byte, error) {
	if m.DecryptFunc == nil {
		return nil, ErrNoEngine
	}
	return m.DecryptFunc(ctx, conversationID, senderID, keyType, ciphertext, category, deviceID)
}

func (m *Memory) Encrypt(ctx context.Context, conversationID, recipientID string, plaintext []byte, category string) (string, error) {
	if m.EncryptFunc == nil {
		return "", ErrNoEngine
	}
	return m.EncryptFunc(ctx, conversationID, recipientID, plaintext, category)
}

func (m *Memory) EncryptSenderKey(ctx context.Context, conversationID, recipientID string, deviceID uint32) (string, error) {
	if m.EncryptSenderKeyFunc == nil {
		return "", ErrNoEngine
	}
	return m.EncryptSenderKeyFunc(ctx, conversationID, recipientID, deviceID)
}

func (m *Memory) RatchetStatus(conversationID, senderID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ratchets[ratchetKey(conversationID, senderID)]
}

func (m *Memory) SetRatchetStatus(conversationID, senderID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratchets[ratchetKey(conversationID, senderID)] = status
}

func (m *Memory) DeleteRatchetKey(conversationID, senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ratchets, ratchetKey(conversationID, senderID))
}

// ClearSenderKey drops every recovery record for the conversation; the next
// send re-exchanges keys.
func (m *Memory) ClearSenderKey(conversationID, senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.ratchets {
		if len(k) > len(conversationID) && k[:len(conversationID)] == conversationID && k[len(conversationID)] == '|' {
			delete(m.ratchets, k)
		}
	}
}

func (m *Memory) ContainsSession(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// AddSession registers a known recipient session.
func (m *Memory) AddSession(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = true
}

func (m *Memory) GenerateAndSyncKeys(ctx context.Context) error {
	if m.SyncKeysFunc == nil {
		return ErrNoEngine
	}
	return m.SyncKeysFunc(ctx)
}
