package cipher

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Ciphertext is the decoded header of a signal-family envelope payload: the
// key type, the cipher body and an optional resend reference pointing at the
// FAILED placeholder this retransmission repairs.
type Ciphertext struct {
	KeyType         uint8  `json:"key_type"`
	Cipher          []byte `json:"cipher"`
	ResendMessageID string `json:"resend_message_id,omitempty"`
}

// DecodeCiphertext decodes the base64 envelope payload into its header.
func DecodeCiphertext(encoded string) (*Ciphertext, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ciphertext base64: %w", err)
	}
	var ct Ciphertext
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil, fmt.Errorf("ciphertext header: %w", err)
	}
	return &ct, nil
}

// EncodeCiphertext is the inverse of DecodeCiphertext.
func EncodeCiphertext(ct *Ciphertext) (string, error) {
	raw, err := json.Marshal(ct)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
