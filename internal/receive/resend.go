package receive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/cipher"
	"github.com/helia-im/helia/internal/jobs"
	"github.com/helia-im/helia/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// refreshKeys replenishes one-time prekeys, rate-limited per conversation so
// a burst of decrypt failures cannot storm the key server.
func (s *Service) refreshKeys(ctx context.Context, conversationID string) {
	s.refreshMu.Lock()
	lim, ok := s.refresh[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Duration(s.cfg.KeyRefreshSeconds)*time.Second), 1)
		s.refresh[conversationID] = lim
	}
	s.refreshMu.Unlock()

	if !lim.Allow() {
		return
	}
	if err := s.gateway.GenerateAndSyncKeys(ctx); err != nil {
		s.logger.Warn("key refresh failed", zap.Error(err), zap.String("conversation_id", conversationID))
	}
}

func encodePlainJSON(p PlainJSON) string {
	raw, _ := json.Marshal(p)
	return base64.StdEncoding.EncodeToString(raw)
}

// requestResendKey asks the sender for a fresh sender key. The job id is
// derived from the pair, so a request already queued for the same pair is
// not duplicated; the REQUESTING ratchet status guards across completions.
func (s *Service) requestResendKey(conversationID, userID, messageID string) {
	f := transport.NewMessage(transport.MessageParam{
		MessageID:      newID(),
		ConversationID: conversationID,
		RecipientID:    userID,
		Category:       string(category.PlainJSON),
		Data:           encodePlainJSON(PlainJSON{Action: PlainActionResendKey, MessageID: messageID}),
	})
	s.queue.Submit(jobs.Job{
		ID:     "resend-key-" + conversationID + "-" + userID,
		Action: "resend-key",
		Run: func(ctx context.Context) error {
			return s.sender.Send(ctx, f)
		},
	})
}

// requestResendMessages asks the sender to retransmit every message that
// failed to decrypt from them in this conversation.
func (s *Service) requestResendMessages(conversationID, userID string) {
	ids, err := s.db.FindFailedMessages(conversationID, userID)
	if err != nil {
		s.logger.Error("failed to list failed messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	if len(ids) == 0 {
		return
	}
	f := transport.NewMessage(transport.MessageParam{
		MessageID:      newID(),
		ConversationID: conversationID,
		RecipientID:    userID,
		Category:       string(category.PlainJSON),
		Data:           encodePlainJSON(PlainJSON{Action: PlainActionResendMessages, Messages: ids}),
	})
	s.queue.Submit(jobs.Job{
		ID:     "resend-messages-" + conversationID + "-" + userID,
		Action: "resend-messages",
		Run: func(ctx context.Context) error {
			return s.sender.Send(ctx, f)
		},
	})
}

// submitSendKey services a peer's RESEND_KEY request by sending them our
// sender key for the conversation.
func (s *Service) submitSendKey(conversationID, userID string) {
	s.queue.Submit(jobs.Job{
		ID:     "send-key-" + conversationID + "-" + userID,
		Action: "send-key",
		Run: func(ctx context.Context) error {
			data, err := s.gateway.EncryptSenderKey(ctx, conversationID, userID, cipher.DefaultDeviceID)
			if err != nil {
				return fmt.Errorf("encrypt sender key: %w", err)
			}
			return s.sender.Send(ctx, transport.NewMessage(transport.MessageParam{
				MessageID:      newID(),
				ConversationID: conversationID,
				RecipientID:    userID,
				Category:       string(category.SignalKey),
				Data:           data,
			}))
		},
	})
}

// serviceResendMessages re-encrypts and retransmits our own stored messages
// the peer failed to decrypt. Ids we no longer hold are skipped.
func (s *Service) serviceResendMessages(conversationID, userID string, messageIDs []string) {
	for _, id := range messageIDs {
		id := id
		s.queue.Submit(jobs.Job{
			ID:     "resend-message-" + id + "-" + userID,
			Action: "resend-message",
			Run: func(ctx context.Context) error {
				m, err := s.db.GetMessage(id)
				if err != nil {
					return err
				}
				if m == nil || m.SenderID != s.selfID || category.FamilyOf(m.Category) != category.FamilySignal {
					return nil
				}
				data, err := s.gateway.Encrypt(ctx, conversationID, userID, []byte(m.Content), string(m.Category))
				if err != nil {
					return fmt.Errorf("re-encrypt message %s: %w", id, err)
				}
				return s.sender.Send(ctx, transport.NewMessage(transport.MessageParam{
					MessageID:      newID(),
					ConversationID: conversationID,
					RecipientID:    userID,
					Category:       string(m.Category),
					Data:           data,
				}))
			},
		})
	}
}
