package store

import "fmt"

// CommitBulk lands a bulk-drained page in a single transaction: canonical
// messages with quote snapshots, the consumed staged range (by timestamp
// upper bound) and the refreshed conversation summary. This trades
// per-message transactionality for throughput on bot bursts.
// The staged range is deleted even when no envelope produced a message, so
// a page of unparseable input cannot wedge the drain.
func (db *DB) CommitBulk(conversationID string, msgs []*Message, lastCreatedAt int64, pageSize int, selfID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if _, err := db.insertMessageTx(tx, m, selfID); err != nil {
			return fmt.Errorf("bulk insert %s: %w", m.MessageID, err)
		}
	}
	if err := db.DeleteStagedRange(tx, conversationID, lastCreatedAt, pageSize); err != nil {
		return fmt.Errorf("delete staged range: %w", err)
	}
	return tx.Commit()
}
