package store

import (
	"database/sql"

	"github.com/helia-im/helia/internal/category"
)

// InsertEnvelope stages a raw envelope. Returns false when an envelope with
// the same id is already staged; a duplicate is a signal to skip, not an
// error.
func (db *DB) InsertEnvelope(e *Envelope) (bool, error) {
	res, err := db.Exec(`
		INSERT OR IGNORE INTO staged_envelopes
			(message_id, conversation_id, sender_id, session_id, representative_id,
			 category, payload, quote_message_id, source, is_session_scoped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MessageID, e.ConversationID, e.SenderID, e.SessionID, e.RepresentativeID,
		string(e.Category), e.Payload, e.QuoteMessageID, e.Source, e.SessionScoped, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// NextStagedBatch returns up to limit staged envelopes in arrival order.
func (db *DB) NextStagedBatch(limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT message_id, conversation_id, sender_id, session_id, representative_id,
			category, payload, quote_message_id, source, is_session_scoped, created_at
		FROM staged_envelopes
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEnvelopes(rows)
}

// StagedForConversation returns up to limit non-session staged envelopes of
// one conversation in arrival order. Used by the bulk drain.
func (db *DB) StagedForConversation(conversationID string, limit int) ([]Envelope, error) {
	rows, err := db.Query(`
		SELECT message_id, conversation_id, sender_id, session_id, representative_id,
			category, payload, quote_message_id, source, is_session_scoped, created_at
		FROM staged_envelopes
		WHERE conversation_id = ? AND is_session_scoped = 0
		ORDER BY created_at ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]Envelope, error) {
	defer func() { _ = rows.Close() }()
	var envs []Envelope
	for rows.Next() {
		var e Envelope
		var cat string
		if err := rows.Scan(&e.MessageID, &e.ConversationID, &e.SenderID, &e.SessionID,
			&e.RepresentativeID, &cat, &e.Payload, &e.QuoteMessageID, &e.Source,
			&e.SessionScoped, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Category = category.Category(cat)
		envs = append(envs, e)
	}
	return envs, rows.Err()
}

// DeleteEnvelope removes a staged envelope once it reached a terminal
// outcome.
func (db *DB) DeleteEnvelope(envelopeID string) error {
	_, err := db.Exec(`DELETE FROM staged_envelopes WHERE message_id = ?`, envelopeID)
	return err
}

// StagedCount returns the current backlog size.
func (db *DB) StagedCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM staged_envelopes`).Scan(&n)
	return n, err
}

// DeleteStagedRange removes up to limit non-session staged envelopes of a
// conversation whose created_at is at or below upTo. The range is keyed by
// timestamp rather than the exact processed id set, which tolerates inserts
// arriving mid-transaction; an insert sharing the boundary timestamp can be
// consumed with the batch. Known approximation, see DESIGN.md.
func (db *DB) DeleteStagedRange(tx *sql.Tx, conversationID string, upTo int64, limit int) error {
	_, err := tx.Exec(`
		DELETE FROM staged_envelopes WHERE message_id IN (
			SELECT message_id FROM staged_envelopes
			WHERE conversation_id = ? AND is_session_scoped = 0 AND created_at <= ?
			ORDER BY created_at ASC
			LIMIT ?
		)`, conversationID, upTo, limit)
	return err
}
