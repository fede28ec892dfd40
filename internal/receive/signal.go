package receive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helia-im/helia/internal/bus"
	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/cipher"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// handleSignal runs a ciphertext envelope through the session gateway.
// Receipt is acknowledged up front regardless of decrypt outcome:
// acknowledgment is about transport delivery, not application success.
func (s *Service) handleSignal(ctx context.Context, e *store.Envelope) error {
	if e.Category == category.SignalKey {
		s.ack(e, store.StatusRead)
	} else {
		s.ack(e, store.StatusDelivered)
	}

	ct, err := cipher.DecodeCiphertext(e.Payload)
	if err != nil {
		s.logger.Warn("undecodable ciphertext header", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}

	plaintext, err := s.gateway.Decrypt(ctx, e.ConversationID, e.SenderID,
		ct.KeyType, ct.Cipher, string(e.Category), cipher.DefaultDeviceID)
	if err != nil {
		return s.handleDecryptFailure(ctx, e, ct, err)
	}

	switch {
	case e.Category == category.SignalKey:
		// Session state was updated inside the gateway; only the history
		// index records that the exchange was consumed.
		if err := s.db.ReplaceHistory(e.MessageID); err != nil {
			return err
		}
	case ct.ResendMessageID != "":
		if err := s.redecrypt(ctx, e, ct.ResendMessageID, plaintext); err != nil {
			return err
		}
	default:
		m, berr := s.buildContentMessage(ctx, e, plaintext, store.StatusDelivered)
		if berr != nil {
			if ctx.Err() != nil {
				return berr
			}
			s.logger.Warn("rejected decrypted transfer", zap.Error(berr), zap.String("message_id", e.MessageID))
			return nil
		}
		s.syncUser(ctx, e.SenderID)
		if err := s.insertMessage(m); err != nil {
			return fmt.Errorf("insert decrypted message: %w", err)
		}
		s.mirrorToCompanion(e, m)
	}

	// A successful decrypt while a resend-key request is outstanding means
	// the sender's new key arrived; close out the recovery state and ask for
	// the messages that failed in the meantime.
	if s.gateway.RatchetStatus(e.ConversationID, e.SenderID) == cipher.RatchetRequesting {
		s.gateway.DeleteRatchetKey(e.ConversationID, e.SenderID)
		s.requestResendMessages(e.ConversationID, e.SenderID)
	}
	return nil
}

func (s *Service) handleDecryptFailure(ctx context.Context, e *store.Envelope, ct *cipher.Ciphertext, derr error) error {
	if errors.Is(derr, context.Canceled) || ctx.Err() != nil {
		return derr
	}
	s.logger.Warn("decrypt failed",
		zap.Error(derr),
		zap.String("message_id", e.MessageID),
		zap.String("conversation_id", e.ConversationID),
		zap.String("sender_id", e.SenderID))

	// A failing retransmission means the placeholder repair already happened
	// through another copy; nothing more to do.
	if ct.ResendMessageID != "" {
		return nil
	}

	if e.Category == category.SignalKey {
		// Stale key exchange: drop local recovery state and replenish keys.
		s.gateway.DeleteRatchetKey(e.ConversationID, e.SenderID)
		s.refreshKeys(ctx, e.ConversationID)
		return s.db.ReplaceHistory(e.MessageID)
	}

	if err := s.insertFailedPlaceholder(e); err != nil {
		return fmt.Errorf("insert failed placeholder: %w", err)
	}
	s.refreshKeys(ctx, e.ConversationID)
	if s.gateway.RatchetStatus(e.ConversationID, e.SenderID) != cipher.RatchetRequesting {
		s.requestResendKey(e.ConversationID, e.SenderID, e.MessageID)
		s.gateway.SetRatchetStatus(e.ConversationID, e.SenderID, cipher.RatchetRequesting)
	}
	return nil
}

// insertFailedPlaceholder keeps the raw ciphertext so a later resend can
// repair the message in place.
func (s *Service) insertFailedPlaceholder(e *store.Envelope) error {
	return s.insertMessage(&store.Message{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Category:       e.Category,
		Content:        e.Payload,
		QuoteMessageID: e.QuoteMessageID,
		Status:         store.StatusFailed,
		CreatedAt:      e.CreatedAt,
	})
}

// redecrypt repairs the FAILED placeholder identified by resendID with the
// retransmitted plaintext, then records the carrier envelope's id so later
// copies are recognized as duplicates.
func (s *Service) redecrypt(ctx context.Context, e *store.Envelope, resendID string, plaintext []byte) error {
	target, err := s.db.GetMessage(resendID)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}

	repaired := *e
	repaired.MessageID = resendID
	m, berr := s.buildContentMessage(ctx, &repaired, plaintext, store.StatusDelivered)
	if berr != nil {
		if ctx.Err() != nil {
			return berr
		}
		s.logger.Warn("rejected redecrypted transfer", zap.Error(berr), zap.String("message_id", resendID))
		return nil
	}

	switch category.KindOf(e.Category) {
	case category.KindText:
		err = s.db.UpdateTextMessage(resendID, m.Content, store.StatusDelivered, s.selfID)
	case category.KindImage, category.KindVideo, category.KindData, category.KindAudio:
		err = s.db.UpdateMediaMessage(resendID, m, store.StatusDelivered, mediaPending, s.selfID)
	case category.KindSticker:
		err = s.db.UpdateStickerMessage(resendID, m.StickerID, store.StatusDelivered, s.selfID)
	case category.KindContact:
		err = s.db.UpdateContactMessage(resendID, m.SharedUserID, store.StatusDelivered, s.selfID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("repair message %s: %w", resendID, err)
	}

	if err := s.db.ReplaceHistory(e.MessageID); err != nil {
		return err
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageRedecrypted,
		Timestamp: time.Now(),
		Payload:   bus.MessageRef{ConversationID: e.ConversationID, MessageID: resendID},
	})
	return nil
}
