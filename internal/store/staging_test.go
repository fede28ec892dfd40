package store

import (
	"fmt"
	"testing"

	"github.com/helia-im/helia/internal/category"
)

func testEnvelope(conversationID, messageID string, createdAt int64) *Envelope {
	return &Envelope{
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       "peer",
		Category:       category.PlainText,
		Payload:        "aGVsbG8=",
		CreatedAt:      createdAt,
	}
}

func TestInsertEnvelopeIdempotent(t *testing.T) {
	db := testDB(t)

	inserted, err := db.InsertEnvelope(testEnvelope("c1", "m1", 100))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	inserted, err = db.InsertEnvelope(testEnvelope("c1", "m1", 200))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}

	n, err := db.StagedCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("staged count = %d, want 1", n)
	}
}

func TestNextStagedBatchOrdering(t *testing.T) {
	db := testDB(t)

	// Insert out of arrival order.
	for _, e := range []*Envelope{
		testEnvelope("c1", "m3", 300),
		testEnvelope("c1", "m1", 100),
		testEnvelope("c2", "m2", 200),
	} {
		if _, err := db.InsertEnvelope(e); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := db.NextStagedBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batch))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if batch[i].MessageID != want {
			t.Errorf("batch[%d] = %s, want %s", i, batch[i].MessageID, want)
		}
	}

	batch, err = db.NextStagedBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Errorf("limited batch size = %d, want 2", len(batch))
	}
}

func TestDeleteEnvelope(t *testing.T) {
	db := testDB(t)
	if _, err := db.InsertEnvelope(testEnvelope("c1", "m1", 100)); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteEnvelope("m1"); err != nil {
		t.Fatal(err)
	}
	n, _ := db.StagedCount()
	if n != 0 {
		t.Errorf("staged count = %d, want 0", n)
	}
	// Deleting an absent envelope is a no-op.
	if err := db.DeleteEnvelope("m1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestStagedForConversation(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		if _, err := db.InsertEnvelope(testEnvelope("c1", fmt.Sprintf("a%d", i), int64(100+i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.InsertEnvelope(testEnvelope("c2", "b1", 100)); err != nil {
		t.Fatal(err)
	}

	envs, err := db.StagedForConversation("c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 3 {
		t.Fatalf("page size = %d, want 3", len(envs))
	}
	if envs[0].MessageID != "a0" || envs[2].MessageID != "a2" {
		t.Errorf("page = %s..%s, want a0..a2", envs[0].MessageID, envs[2].MessageID)
	}
}

func TestDeleteStagedRangeByTimestampBound(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 4; i++ {
		if _, err := db.InsertEnvelope(testEnvelope("c1", fmt.Sprintf("m%d", i), int64(100+i*100))); err != nil {
			t.Fatal(err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	// Upper bound 300 covers m0..m2; m3 (created 400) survives.
	if err := db.DeleteStagedRange(tx, "c1", 300, 10); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	batch, err := db.NextStagedBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].MessageID != "m3" {
		t.Errorf("remaining = %v, want only m3", batch)
	}
}

func TestDeleteStagedRangeSkipsSessionScoped(t *testing.T) {
	db := testDB(t)
	e := testEnvelope("c1", "s1", 100)
	e.SessionScoped = true
	if _, err := db.InsertEnvelope(e); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertEnvelope(testEnvelope("c1", "m1", 100)); err != nil {
		t.Fatal(err)
	}

	tx, _ := db.Begin()
	if err := db.DeleteStagedRange(tx, "c1", 200, 10); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	batch, _ := db.NextStagedBatch(10)
	if len(batch) != 1 || batch[0].MessageID != "s1" {
		t.Errorf("remaining = %v, want only session-scoped s1", batch)
	}
}
