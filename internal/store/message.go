package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/helia-im/helia/internal/category"
)

const messageColumns = `message_id, conversation_id, sender_id, category, content,
	media_url, media_mime_type, media_size, media_width, media_height, media_duration,
	media_status, thumb_image, name, sticker_id, shared_user_id, snapshot_id, action,
	participant_id, quote_message_id, quote_content, status, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var cat, status string
	err := row.Scan(&m.MessageID, &m.ConversationID, &m.SenderID, &cat, &m.Content,
		&m.MediaURL, &m.MediaMimeType, &m.MediaSize, &m.MediaWidth, &m.MediaHeight,
		&m.MediaDuration, &m.MediaStatus, &m.ThumbImage, &m.Name, &m.StickerID,
		&m.SharedUserID, &m.SnapshotID, &m.Action, &m.ParticipantID, &m.QuoteMessageID,
		&m.QuoteContent, &status, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Category = category.Category(cat)
	m.Status = Status(status)
	return &m, nil
}

// GetMessage returns a canonical message by id, nil when absent.
func (db *DB) GetMessage(messageID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// MessageExists reports whether the id is present in the canonical store or
// in the historical-id index. Both count as duplicates for ingestion.
func (db *DB) MessageExists(messageID string) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM messages WHERE message_id = ?)
		     + (SELECT COUNT(*) FROM messages_history WHERE message_id = ?)`,
		messageID, messageID).Scan(&n)
	return n > 0, err
}

// ReplaceHistory records a message id as terminally processed so replays are
// detected after the canonical row is gone.
func (db *DB) ReplaceHistory(messageID string) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO messages_history (message_id) VALUES (?)`, messageID)
	return err
}

// InsertMessage persists a canonical message in one transaction together
// with its derived state: denormalized quote snapshot, conversation
// last-message summary and unseen count. A duplicate message id is ignored
// and reported as inserted=false.
func (db *DB) InsertMessage(m *Message, selfID string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := db.insertMessageTx(tx, m, selfID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (db *DB) insertMessageTx(tx *sql.Tx, m *Message, selfID string) (bool, error) {
	if m.QuoteMessageID != "" && m.QuoteContent == "" {
		if snapshot, err := quoteSnapshotTx(tx, m.QuoteMessageID); err != nil {
			return false, err
		} else if snapshot != "" {
			m.QuoteContent = snapshot
		}
	}

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.ConversationID, m.SenderID, string(m.Category), m.Content,
		m.MediaURL, m.MediaMimeType, m.MediaSize, m.MediaWidth, m.MediaHeight,
		m.MediaDuration, m.MediaStatus, m.ThumbImage, m.Name, m.StickerID,
		m.SharedUserID, m.SnapshotID, m.Action, m.ParticipantID, m.QuoteMessageID,
		m.QuoteContent, string(m.Status), m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := updateLastMessageTx(tx, m); err != nil {
		return false, err
	}
	if err := updateUnseenCountTx(tx, m.ConversationID, selfID); err != nil {
		return false, err
	}
	return true, nil
}

// quoteSnapshotTx returns the JSON snapshot of a non-failed message, empty
// when the target is absent or failed.
func quoteSnapshotTx(tx *sql.Tx, messageID string) (string, error) {
	m, err := scanMessage(tx.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ? AND status <> 'FAILED'`,
		messageID))
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func updateLastMessageTx(tx *sql.Tx, m *Message) error {
	_, err := tx.Exec(`
		UPDATE conversations
		SET last_message_id = ?, last_message_created_at = ?
		WHERE conversation_id = ? AND last_message_created_at <= ?`,
		m.MessageID, m.CreatedAt, m.ConversationID, m.CreatedAt)
	return err
}

func updateUnseenCountTx(tx *sql.Tx, conversationID, selfID string) error {
	_, err := tx.Exec(`
		UPDATE conversations SET unseen_message_count = (
			SELECT COUNT(*) FROM messages
			WHERE conversation_id = ? AND status = 'DELIVERED' AND sender_id != ?
		) WHERE conversation_id = ?`, conversationID, selfID, conversationID)
	return err
}

// UpdateMessageStatus advances a message's status. The persisted rank never
// decreases: downgrades and writes against a FAILED message are rejected as
// no-ops.
func (db *DB) UpdateMessageStatus(messageID string, status Status, selfID string) (bool, error) {
	old, err := db.GetMessage(messageID)
	if err != nil {
		return false, err
	}
	if old == nil || old.Status == StatusFailed {
		return false, nil
	}
	if status.Rank() <= old.Status.Rank() {
		return false, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`UPDATE messages SET status = ? WHERE message_id = ?`,
		string(status), messageID); err != nil {
		return false, err
	}
	if err := updateUnseenCountTx(tx, old.ConversationID, selfID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// FindFailedMessages lists ids of FAILED placeholders from one sender in a
// conversation, most recent first. These are the candidates for a
// resend-messages request.
func (db *DB) FindFailedMessages(conversationID, senderID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT message_id FROM messages
		WHERE conversation_id = ? AND sender_id = ? AND status = 'FAILED'
		ORDER BY created_at DESC
		LIMIT 1000`, conversationID, senderID)
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

// UpdateTextMessage repairs a redecrypted text placeholder in place.
func (db *DB) UpdateTextMessage(messageID, content string, status Status, selfID string) error {
	return db.updateRepaired(messageID, selfID, `content = ?, status = ?`, content, string(status))
}

// UpdateMediaMessage repairs a redecrypted media placeholder in place.
func (db *DB) UpdateMediaMessage(messageID string, m *Message, status Status, mediaStatus string, selfID string) error {
	return db.updateRepaired(messageID, selfID,
		`content = ?, media_url = ?, media_mime_type = ?, media_size = ?, media_width = ?,
		 media_height = ?, media_duration = ?, thumb_image = ?, name = ?, media_status = ?, status = ?`,
		m.Content, m.MediaURL, m.MediaMimeType, m.MediaSize, m.MediaWidth,
		m.MediaHeight, m.MediaDuration, m.ThumbImage, m.Name, mediaStatus, string(status))
}

// UpdateStickerMessage repairs a redecrypted sticker placeholder in place.
func (db *DB) UpdateStickerMessage(messageID, stickerID string, status Status, selfID string) error {
	return db.updateRepaired(messageID, selfID, `sticker_id = ?, content = '', status = ?`,
		stickerID, string(status))
}

// UpdateContactMessage repairs a redecrypted contact placeholder in place.
func (db *DB) UpdateContactMessage(messageID, sharedUserID string, status Status, selfID string) error {
	return db.updateRepaired(messageID, selfID, `shared_user_id = ?, content = '', status = ?`,
		sharedUserID, string(status))
}

// updateRepaired applies a redecryption repair. Recalled messages are
// immutable and never repaired.
func (db *DB) updateRepaired(messageID, selfID, set string, args ...any) error {
	old, err := db.GetMessage(messageID)
	if err != nil || old == nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	args = append(args, messageID)
	if _, err := tx.Exec(
		`UPDATE messages SET `+set+` WHERE message_id = ? AND category != 'MESSAGE_RECALL'`,
		args...); err != nil {
		return err
	}
	if err := updateUnseenCountTx(tx, old.ConversationID, selfID); err != nil {
		return err
	}
	if err := refreshQuotesTx(tx, messageID, old.ConversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// refreshQuotesTx re-denormalizes the quote snapshot on every message that
// quotes messageID.
func refreshQuotesTx(tx *sql.Tx, messageID, conversationID string) error {
	snapshot, err := quoteSnapshotTx(tx, messageID)
	if err != nil {
		return err
	}
	if snapshot == "" {
		return nil
	}
	_, err = tx.Exec(`
		UPDATE messages SET quote_content = ?
		WHERE conversation_id = ? AND quote_message_id = ?`,
		snapshot, conversationID, messageID)
	return err
}

// RecallMessage clears a message's content per its category, flips it to the
// recall marker and refreshes the quote snapshot of every message quoting
// it. A FAILED target is upgraded to DELIVERED; this is the only sanctioned
// escape from the FAILED branch.
func (db *DB) RecallMessage(m *Message, selfID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	set := `category = 'MESSAGE_RECALL'`
	switch {
	case category.KindOf(m.Category) == category.KindText || m.Status == StatusUnknown:
		set += `, content = '', quote_message_id = '', quote_content = ''`
	case category.IsMedia(m.Category):
		set += `, content = '', media_url = '', media_mime_type = '', media_size = 0,
			media_width = 0, media_height = 0, media_duration = 0, media_status = '',
			thumb_image = '', name = ''`
	case category.KindOf(m.Category) == category.KindSticker:
		set += `, sticker_id = ''`
	case category.KindOf(m.Category) == category.KindContact:
		set += `, shared_user_id = ''`
	}
	if m.Status == StatusFailed {
		set += `, status = 'DELIVERED'`
	}

	if _, err := tx.Exec(`UPDATE messages SET `+set+` WHERE message_id = ?`, m.MessageID); err != nil {
		return err
	}
	if m.Status == StatusFailed {
		if err := updateUnseenCountTx(tx, m.ConversationID, selfID); err != nil {
			return err
		}
	}
	if err := refreshQuotesTx(tx, m.MessageID, m.ConversationID); err != nil {
		return err
	}
	return tx.Commit()
}
