package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/helia-im/helia/internal/category"
)

const testSelfID = "self"

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConversation(t *testing.T, db *DB, conversationID string) {
	t.Helper()
	err := db.CreateConversation(&Conversation{
		ConversationID: conversationID,
		OwnerID:        "peer",
		Category:       ConversationContact,
		Status:         ConversationSuccess,
		CreatedAt:      time.Now().UnixMilli(),
	}, []Participant{
		{ConversationID: conversationID, UserID: testSelfID},
		{ConversationID: conversationID, UserID: "peer"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func textMessage(conversationID, messageID, senderID string, createdAt int64) *Message {
	return &Message{
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Category:       category.PlainText,
		Content:        "hello",
		Status:         StatusDelivered,
		CreatedAt:      createdAt,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestStatusRank(t *testing.T) {
	ordered := []Status{StatusSending, StatusSent, StatusDelivered, StatusRead}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("rank(%s) = %d not above rank(%s) = %d",
				ordered[i], ordered[i].Rank(), ordered[i-1], ordered[i-1].Rank())
		}
	}
	if StatusFailed.Rank() != 0 || StatusUnknown.Rank() != 0 {
		t.Error("FAILED and UNKNOWN must rank 0")
	}
}
