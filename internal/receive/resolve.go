package receive

import (
	"context"
	"errors"
	"time"

	"github.com/helia-im/helia/internal/directory"
	"github.com/helia-im/helia/internal/jobs"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// resolveConversation ensures the envelope's conversation is locally
// materialized. It returns false only when the conversation was quit
// locally, in which case the envelope is acknowledged and dropped. Every
// other outcome degrades to best effort: a placeholder plus a background
// refresh, never a blocked loop.
func (s *Service) resolveConversation(ctx context.Context, e *store.Envelope) bool {
	st, err := s.db.ConversationStatus(e.ConversationID)
	if err != nil {
		s.logger.Error("failed to read conversation status", zap.Error(err), zap.String("conversation_id", e.ConversationID))
		return true
	}
	switch st {
	case store.ConversationQuit:
		return false
	case store.ConversationSuccess:
		return true
	case store.ConversationStart:
		s.submitRefreshConversation(e.ConversationID)
		return true
	}

	// First sight: try a synchronous fetch, fall back to a placeholder.
	resp, err := s.dir.FetchConversation(ctx, e.ConversationID)
	if err != nil {
		if cerr := s.db.CreatePlaceholderConversation(e.ConversationID, e.SenderID); cerr != nil {
			s.logger.Error("failed to create placeholder conversation", zap.Error(cerr), zap.String("conversation_id", e.ConversationID))
		}
		s.submitRefreshConversation(e.ConversationID)
		return true
	}
	s.materializeConversation(ctx, resp)
	return true
}

func (s *Service) materializeConversation(ctx context.Context, resp *directory.ConversationResponse) {
	now := time.Now().UnixMilli()
	participants := make([]store.Participant, 0, len(resp.Participants))
	ids := make([]string, 0, len(resp.Participants))
	for _, p := range resp.Participants {
		participants = append(participants, store.Participant{
			ConversationID: resp.ConversationID,
			UserID:         p.UserID,
			Role:           p.Role,
			CreatedAt:      now,
		})
		ids = append(ids, p.UserID)
	}
	s.syncUsers(ctx, ids)

	err := s.db.CreateConversation(&store.Conversation{
		ConversationID: resp.ConversationID,
		OwnerID:        resp.OwnerID,
		Category:       resp.Category,
		Name:           resp.Name,
		Status:         store.ConversationSuccess,
		CreatedAt:      now,
	}, participants)
	if err != nil {
		s.logger.Error("failed to materialize conversation", zap.Error(err), zap.String("conversation_id", resp.ConversationID))
		return
	}
	s.notifyConversation(resp.ConversationID)
}

// submitRefreshConversation queues a background refresh. The refresh- prefix
// is dedup-exempt, so every request runs; the fetch itself retries until it
// succeeds or the conversation is gone.
func (s *Service) submitRefreshConversation(conversationID string) {
	s.queue.Submit(jobs.Job{
		ID:     "refresh-conversation-" + conversationID,
		Action: "refresh-conversation",
		Run: func(ctx context.Context) error {
			var resp *directory.ConversationResponse
			err := directory.Retry(ctx, func() error {
				var ferr error
				resp, ferr = s.dir.FetchConversation(ctx, conversationID)
				return ferr
			})
			if errors.Is(err, directory.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			s.materializeConversation(ctx, resp)
			return nil
		},
	})
}
