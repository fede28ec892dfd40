package cipher

import (
	"bytes"
	"context"
	"testing"
)

func TestCiphertextRoundTrip(t *testing.T) {
	ct := &Ciphertext{
		KeyType:         KeyTypeSignal,
		Cipher:          []byte("opaque-bytes"),
		ResendMessageID: "m-failed",
	}
	encoded, err := EncodeCiphertext(ct)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeCiphertext(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.KeyType != KeyTypeSignal {
		t.Errorf("key type = %d, want %d", decoded.KeyType, KeyTypeSignal)
	}
	if !bytes.Equal(decoded.Cipher, ct.Cipher) {
		t.Errorf("cipher = %q, want %q", decoded.Cipher, ct.Cipher)
	}
	if decoded.ResendMessageID != "m-failed" {
		t.Errorf("resend id = %q, want m-failed", decoded.ResendMessageID)
	}
}

func TestDecodeCiphertextRejectsGarbage(t *testing.T) {
	if _, err := DecodeCiphertext("not-base64!!!"); err == nil {
		t.Error("invalid base64 should fail")
	}
	if _, err := DecodeCiphertext("bm90IGpzb24="); err == nil {
		t.Error("valid base64 of non-JSON should fail")
	}
}

func TestMemoryRatchetBookkeeping(t *testing.T) {
	m := NewMemory()

	if got := m.RatchetStatus("c1", "u1"); got != RatchetOK {
		t.Errorf("initial status = %q, want OK", got)
	}

	m.SetRatchetStatus("c1", "u1", RatchetRequesting)
	if got := m.RatchetStatus("c1", "u1"); got != RatchetRequesting {
		t.Errorf("status = %q, want REQUESTING", got)
	}
	if got := m.RatchetStatus("c1", "u2"); got != RatchetOK {
		t.Errorf("other pair status = %q, want OK", got)
	}

	m.DeleteRatchetKey("c1", "u1")
	if got := m.RatchetStatus("c1", "u1"); got != RatchetOK {
		t.Errorf("status after delete = %q, want OK", got)
	}
}

func TestMemoryClearSenderKeyDropsConversation(t *testing.T) {
	m := NewMemory()
	m.SetRatchetStatus("c1", "u1", RatchetRequesting)
	m.SetRatchetStatus("c1", "u2", RatchetRequesting)
	m.SetRatchetStatus("c2", "u1", RatchetRequesting)

	m.ClearSenderKey("c1", "u1")

	if m.RatchetStatus("c1", "u1") != RatchetOK || m.RatchetStatus("c1", "u2") != RatchetOK {
		t.Error("c1 pairs should be cleared")
	}
	if m.RatchetStatus("c2", "u1") != RatchetRequesting {
		t.Error("c2 pair should survive")
	}
}

func TestMemoryUnboundEngine(t *testing.T) {
	m := NewMemory()
	if _, err := m.Decrypt(context.Background(), "c", "u", KeyTypeSignal, nil, "SIGNAL_TEXT", DefaultDeviceID); err == nil {
		t.Error("unbound decrypt should fail")
	}
	if m.ContainsSession("u1") {
		t.Error("session should not exist yet")
	}
	m.AddSession("u1")
	if !m.ContainsSession("u1") {
		t.Error("session should exist after AddSession")
	}
}
