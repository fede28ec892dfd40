package receive

import (
	"fmt"

	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// handleApp persists an opaque application payload (card or button group)
// as-is; there is nothing to decrypt or validate beyond the encoding.
func (s *Service) handleApp(e *store.Envelope) error {
	s.ack(e, store.StatusRead)

	raw, err := decodeBase64(e.Payload)
	if err != nil {
		s.logger.Warn("undecodable app payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	m := &store.Message{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Category:       e.Category,
		Content:        string(raw),
		QuoteMessageID: e.QuoteMessageID,
		Status:         store.StatusDelivered,
		CreatedAt:      e.CreatedAt,
	}
	if err := s.insertMessage(m); err != nil {
		return fmt.Errorf("insert app message: %w", err)
	}
	s.mirrorToCompanion(e, m)
	return nil
}
