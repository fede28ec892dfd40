package receive

import (
	"fmt"
	"time"

	"github.com/helia-im/helia/internal/bus"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// handleRecall clears the referenced message's content per its category and
// refreshes the denormalized quote snapshots of messages quoting it. A
// recall arriving before its target is a no-op; the reference is not kept.
// The recall envelope's own id is recorded in the history index either way
// so a replayed copy is caught at the duplicate check.
func (s *Service) handleRecall(e *store.Envelope) error {
	s.ack(e, store.StatusRead)

	var ref RecallRef
	if err := decodeBase64JSON(e.Payload, &ref); err != nil {
		s.logger.Warn("undecodable recall payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return s.db.ReplaceHistory(e.MessageID)
	}
	if ref.MessageID == "" {
		return s.db.ReplaceHistory(e.MessageID)
	}

	target, err := s.db.GetMessage(ref.MessageID)
	if err != nil {
		return err
	}
	if target == nil || target.ConversationID != e.ConversationID {
		s.logger.Debug("recall target not present", zap.String("target_id", ref.MessageID))
		return s.db.ReplaceHistory(e.MessageID)
	}
	if err := s.db.RecallMessage(target, s.selfID); err != nil {
		return fmt.Errorf("recall message %s: %w", ref.MessageID, err)
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageRecalled,
		Timestamp: time.Now(),
		Payload:   bus.MessageRef{ConversationID: target.ConversationID, MessageID: target.MessageID},
	})
	s.mirrorToCompanion(e, target)
	return s.db.ReplaceHistory(e.MessageID)
}
