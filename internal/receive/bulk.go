package receive

import (
	"context"

	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/jobs"
	"github.com/helia-im/helia/internal/store"
	"github.com/helia-im/helia/internal/transport"
	"go.uber.org/zap"
)

// drainBotBulk is the high-throughput path for automated peers: when the
// staging backlog passes the threshold, bot conversations are consumed in
// large pages committed in one transaction each, with acknowledgments
// batched instead of per-message jobs.
func (s *Service) drainBotBulk(ctx context.Context) {
	count, err := s.db.StagedCount()
	if err != nil {
		s.logger.Error("failed to count staging backlog", zap.Error(err))
		return
	}
	if count < s.cfg.BulkThreshold {
		return
	}
	convs, err := s.db.BotConversations()
	if err != nil {
		s.logger.Error("failed to list bot conversations", zap.Error(err))
		return
	}

	page := s.cfg.BulkPageSize
	if s.CompanionSession() != "" {
		page = s.cfg.CompanionBulkPageSize
	}

	for _, conv := range convs {
		for {
			if ctx.Err() != nil || !s.machine.Authenticated() {
				return
			}
			envs, err := s.db.StagedForConversation(conv, page)
			if err != nil {
				s.logger.Error("failed to read staged page", zap.Error(err), zap.String("conversation_id", conv))
				break
			}
			if len(envs) == 0 {
				break
			}
			s.commitBulkPage(ctx, conv, envs)
			if len(envs) < page {
				break
			}
		}
	}
}

// commitBulkPage classifies one page of staged envelopes, persists the
// resulting messages and the ranged staging delete in a single transaction,
// then acknowledges the whole page in batches. The delete is bounded by the
// page's last timestamp, a deliberate approximation tolerating inserts that
// raced in behind the page.
func (s *Service) commitBulkPage(ctx context.Context, conversationID string, envs []store.Envelope) {
	msgs := make([]*store.Message, 0, len(envs))
	receipts := make([]transport.AckReceipt, 0, len(envs))
	senders := make([]string, 0, 4)
	seen := make(map[string]struct{})

	for i := range envs {
		e := &envs[i]
		st := store.StatusDelivered
		if category.FamilyOf(e.Category) == category.FamilyApp {
			st = store.StatusRead
		}
		receipts = append(receipts, transport.AckReceipt{MessageID: e.MessageID, Status: string(st)})
		m := s.buildBulkMessage(ctx, e)
		if m == nil {
			continue
		}
		msgs = append(msgs, m)
		if _, ok := seen[e.SenderID]; !ok {
			seen[e.SenderID] = struct{}{}
			senders = append(senders, e.SenderID)
		}
	}
	s.syncUsers(ctx, senders)

	last := envs[len(envs)-1].CreatedAt
	if err := s.db.CommitBulk(conversationID, msgs, last, len(envs), s.selfID); err != nil {
		s.logger.Error("bulk commit failed", zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	for _, m := range msgs {
		s.publishInserted(m)
	}
	s.notifyConversation(conversationID)
	s.submitBatchAcks(receipts)
}

// buildBulkMessage classifies one envelope on the bulk path. Automated
// peers speak the plain and app families; anything else in their backlog is
// consumed without producing a message.
func (s *Service) buildBulkMessage(ctx context.Context, e *store.Envelope) *store.Message {
	if !category.Legal(e.Category) {
		return nil
	}
	switch category.FamilyOf(e.Category) {
	case category.FamilyPlain:
		if e.Category == category.PlainJSON {
			return nil
		}
		raw, err := decodeBase64(e.Payload)
		if err != nil {
			return nil
		}
		m, err := s.buildContentMessage(ctx, e, raw, store.StatusDelivered)
		if err != nil {
			s.logger.Debug("rejected bulk transfer", zap.Error(err), zap.String("message_id", e.MessageID))
			return nil
		}
		return m
	case category.FamilyApp:
		raw, err := decodeBase64(e.Payload)
		if err != nil {
			return nil
		}
		return &store.Message{
			MessageID:      e.MessageID,
			ConversationID: e.ConversationID,
			SenderID:       e.SenderID,
			Category:       e.Category,
			Content:        string(raw),
			QuoteMessageID: e.QuoteMessageID,
			Status:         store.StatusDelivered,
			CreatedAt:      e.CreatedAt,
		}
	}
	return nil
}

// submitBatchAcks splits a page's receipts into batch frames. Each job id is
// unique; batches are independent units, not candidates for dedup.
func (s *Service) submitBatchAcks(receipts []transport.AckReceipt) {
	for start := 0; start < len(receipts); start += s.cfg.AckBatchSize {
		end := start + s.cfg.AckBatchSize
		if end > len(receipts) {
			end = len(receipts)
		}
		f := transport.NewBatchAck(receipts[start:end])
		s.queue.Submit(jobs.Job{
			ID:     "ack-batch-" + newID(),
			Action: "ack-batch",
			Run: func(ctx context.Context) error {
				return s.sender.Send(ctx, f)
			},
		})
	}
}
