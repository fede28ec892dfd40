package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetConversation returns a conversation by id, nil when unknown.
func (db *DB) GetConversation(conversationID string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT conversation_id, owner_id, category, name, status, unseen_message_count,
			last_message_id, last_message_created_at, created_at
		FROM conversations WHERE conversation_id = ?`, conversationID).
		Scan(&c.ConversationID, &c.OwnerID, &c.Category, &c.Name, &c.Status,
			&c.UnseenMessageCount, &c.LastMessageID, &c.LastMessageCreatedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationStatus returns the sync status of a conversation, "" when the
// conversation is locally unknown.
func (db *DB) ConversationStatus(conversationID string) (string, error) {
	var status string
	err := db.QueryRow(`SELECT status FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return status, err
}

// CreatePlaceholderConversation materializes a START-status stub so messages
// can land before the remote record is fetched.
func (db *DB) CreatePlaceholderConversation(conversationID, ownerID string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO conversations (conversation_id, owner_id, status, created_at)
		VALUES (?, ?, 'START', ?)`,
		conversationID, ownerID, time.Now().UnixMilli())
	return err
}

// CreateConversation materializes a full conversation plus its membership in
// one transaction and marks the requested sync status.
func (db *DB) CreateConversation(c *Conversation, participants []Participant) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	if _, err := tx.Exec(`
		INSERT INTO conversations (conversation_id, owner_id, category, name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			category = excluded.category,
			name = excluded.name,
			status = excluded.status`,
		c.ConversationID, c.OwnerID, c.Category, c.Name, c.Status, c.CreatedAt); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM participants WHERE conversation_id = ?`, c.ConversationID); err != nil {
		return err
	}
	for _, p := range participants {
		if p.CreatedAt == 0 {
			p.CreatedAt = time.Now().UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO participants (conversation_id, user_id, role, created_at)
			VALUES (?, ?, ?, ?)`,
			c.ConversationID, p.UserID, p.Role, p.CreatedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateConversationStatus moves a conversation to a new sync status.
func (db *DB) UpdateConversationStatus(conversationID, status string) error {
	_, err := db.Exec(`UPDATE conversations SET status = ? WHERE conversation_id = ?`,
		status, conversationID)
	return err
}

// UpdateConversationOwner sets the owner, returning false when the
// conversation is unknown.
func (db *DB) UpdateConversationOwner(conversationID, ownerID string) (bool, error) {
	res, err := db.Exec(`UPDATE conversations SET owner_id = ? WHERE conversation_id = ?`,
		ownerID, conversationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteConversation tears down a conversation locally: its record, its
// membership and its messages. Used when the local user is removed by an
// EXIT system action.
func (db *DB) DeleteConversation(conversationID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM participants WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE conversation_id = ?`,
	} {
		if _, err := tx.Exec(q, conversationID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BotConversations lists conversations whose owning peer is an automated
// participant. Only these are eligible for the bulk drain.
func (db *DB) BotConversations() ([]string, error) {
	rows, err := db.Query(`
		SELECT c.conversation_id
		FROM conversations c
		JOIN users u ON c.owner_id = u.user_id
		WHERE u.app_id != ''`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddParticipant records a membership addition together with its system
// message in one transaction.
func (db *DB) AddParticipant(m *Message, participantID, role string, selfID string) error {
	return db.participantTx(m, selfID, `
		INSERT OR REPLACE INTO participants (conversation_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)`,
		m.ConversationID, participantID, role, time.Now().UnixMilli())
}

// RemoveParticipant records a membership removal together with its system
// message in one transaction.
func (db *DB) RemoveParticipant(m *Message, participantID string, selfID string) error {
	return db.participantTx(m, selfID,
		`DELETE FROM participants WHERE conversation_id = ? AND user_id = ?`,
		m.ConversationID, participantID)
}

// UpdateParticipantRole records a role change together with its system
// message in one transaction.
func (db *DB) UpdateParticipantRole(m *Message, participantID, role string, selfID string) error {
	return db.participantTx(m, selfID,
		`UPDATE participants SET role = ? WHERE conversation_id = ? AND user_id = ?`,
		role, m.ConversationID, participantID)
}

func (db *DB) participantTx(m *Message, selfID, query string, args ...any) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(query, args...); err != nil {
		return err
	}
	if _, err := db.insertMessageTx(tx, m, selfID); err != nil {
		return err
	}
	return tx.Commit()
}
