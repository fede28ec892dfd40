package receive

import (
	"context"
	"fmt"

	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

func (s *Service) handleSystem(ctx context.Context, e *store.Envelope) error {
	s.ack(e, store.StatusRead)

	switch e.Category {
	case category.SystemConversation:
		return s.handleSystemConversation(ctx, e)
	case category.SystemAccountSnapshot:
		return s.handleSnapshot(ctx, e)
	case category.SystemSession:
		return s.handleSystemSession(e)
	}
	return nil
}

func (s *Service) handleSystemConversation(ctx context.Context, e *store.Envelope) error {
	var p SystemConversation
	if err := decodeBase64JSON(e.Payload, &p); err != nil {
		s.logger.Warn("undecodable system conversation payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	if p.ConversationID == "" {
		p.ConversationID = e.ConversationID
	}

	m := &store.Message{
		MessageID:      e.MessageID,
		ConversationID: p.ConversationID,
		SenderID:       e.SenderID,
		Category:       e.Category,
		Action:         p.Action,
		ParticipantID:  p.ParticipantID,
		Status:         store.StatusRead,
		CreatedAt:      e.CreatedAt,
	}

	switch p.Action {
	case SystemActionAdd, SystemActionJoin:
		s.syncUser(ctx, p.ParticipantID)
		if err := s.db.AddParticipant(m, p.ParticipantID, p.Role, s.selfID); err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		if p.ParticipantID == s.selfID {
			// We were (re)added: membership and keys may be stale.
			s.submitRefreshConversation(p.ConversationID)
			s.refreshKeys(ctx, p.ConversationID)
		}
		s.publishInserted(m)

	case SystemActionRemove:
		if p.ParticipantID == s.selfID {
			if err := s.db.UpdateConversationStatus(p.ConversationID, store.ConversationQuit); err != nil {
				return fmt.Errorf("quit conversation: %w", err)
			}
			s.gateway.ClearSenderKey(p.ConversationID, s.selfID)
		}
		if err := s.db.RemoveParticipant(m, p.ParticipantID, s.selfID); err != nil {
			return fmt.Errorf("remove participant: %w", err)
		}
		s.publishInserted(m)

	case SystemActionExit:
		if p.ParticipantID == s.selfID {
			// Local teardown, no membership message for our own exit.
			s.gateway.ClearSenderKey(p.ConversationID, s.selfID)
			if err := s.db.DeleteConversation(p.ConversationID); err != nil {
				return fmt.Errorf("delete conversation: %w", err)
			}
			s.notifyConversation(p.ConversationID)
			return nil
		}
		if err := s.db.RemoveParticipant(m, p.ParticipantID, s.selfID); err != nil {
			return fmt.Errorf("exit participant: %w", err)
		}
		s.publishInserted(m)

	case SystemActionCreate:
		if p.UserID != "" {
			if _, err := s.db.UpdateConversationOwner(p.ConversationID, p.UserID); err != nil {
				return fmt.Errorf("update owner: %w", err)
			}
		}
		s.submitRefreshConversation(p.ConversationID)

	case SystemActionRole:
		if err := s.db.UpdateParticipantRole(m, p.ParticipantID, p.Role, s.selfID); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		s.publishInserted(m)

	case SystemActionUpdate:
		s.submitRefreshConversation(p.ConversationID)

	default:
		s.logger.Warn("unknown system conversation action", zap.String("action", p.Action), zap.String("message_id", e.MessageID))
		return nil
	}

	s.notifyConversation(p.ConversationID)
	s.mirrorToCompanion(e, m)
	return nil
}

func (s *Service) handleSnapshot(ctx context.Context, e *store.Envelope) error {
	raw, err := decodeBase64(e.Payload)
	if err != nil {
		s.logger.Warn("undecodable snapshot payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	var snap Snapshot
	if err := decodeJSON(raw, &snap); err != nil {
		s.logger.Warn("invalid snapshot payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	if snap.SnapshotID == "" {
		return nil
	}
	s.syncUser(ctx, snap.OpponentID)

	m := &store.Message{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Category:       e.Category,
		Content:        string(raw),
		SnapshotID:     snap.SnapshotID,
		Status:         store.StatusDelivered,
		CreatedAt:      e.CreatedAt,
	}
	if err := s.insertMessage(m); err != nil {
		return fmt.Errorf("insert snapshot message: %w", err)
	}
	s.mirrorToCompanion(e, m)
	return nil
}

func (s *Service) handleSystemSession(e *store.Envelope) error {
	var p SystemSession
	if err := decodeBase64JSON(e.Payload, &p); err != nil {
		s.logger.Warn("undecodable session payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	switch p.Action {
	case SessionActionProvision:
		if p.SessionID == "" {
			return nil
		}
		s.setCompanionSession(p.SessionID)
		s.logger.Info("companion session linked", zap.String("session_id", p.SessionID))
	case SessionActionDestroy:
		s.setCompanionSession("")
		s.logger.Info("companion session unlinked")
	default:
		s.logger.Warn("unknown session action", zap.String("action", p.Action))
	}
	return nil
}
