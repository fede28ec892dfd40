package receive

import (
	"fmt"
	"time"

	"github.com/helia-im/helia/internal/bus"
	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// pendingCall is an offer awaiting a completion signal. Candidates arriving
// while the offer is pending are buffered here and flushed (or dropped) when
// the call completes or times out.
type pendingCall struct {
	offerID        string
	conversationID string
	senderID       string
	createdAt      int64
	timer          *time.Timer
	candidates     []string
}

func (s *Service) callTimeout() time.Duration {
	return time.Duration(s.cfg.CallTimeoutSeconds) * time.Second
}

func (s *Service) handleCall(e *store.Envelope) error {
	s.ack(e, store.StatusDelivered)

	switch {
	case e.Category == category.CallOffer:
		return s.handleCallOffer(e)
	case e.Category == category.CallCandidate:
		s.bufferCandidate(e)
		return s.db.ReplaceHistory(e.MessageID)
	case category.IsCallCompletion(e.Category):
		return s.completeCall(e)
	}
	return nil
}

func (s *Service) handleCallOffer(e *store.Envelope) error {
	age := time.Since(time.UnixMilli(e.CreatedAt))
	if age >= s.callTimeout() {
		// Arrived past the answer window; record it as a missed call.
		return s.insertCallMessage(e.MessageID, e.ConversationID, e.SenderID, category.CallCancel, "", e.CreatedAt)
	}

	pc := &pendingCall{
		offerID:        e.MessageID,
		conversationID: e.ConversationID,
		senderID:       e.SenderID,
		createdAt:      e.CreatedAt,
	}
	pc.timer = time.AfterFunc(s.callTimeout()-age, func() {
		s.expireCall(pc.offerID)
	})

	s.callMu.Lock()
	s.calls[e.MessageID] = pc
	s.callMu.Unlock()
	s.logger.Debug("call offer pending", zap.String("offer_id", e.MessageID))
	return s.db.ReplaceHistory(e.MessageID)
}

func (s *Service) bufferCandidate(e *store.Envelope) {
	offerID := e.QuoteMessageID
	if offerID == "" {
		return
	}
	s.callMu.Lock()
	defer s.callMu.Unlock()
	pc, ok := s.calls[offerID]
	if !ok {
		s.logger.Debug("candidate without pending offer", zap.String("offer_id", offerID))
		return
	}
	pc.candidates = append(pc.candidates, e.Payload)
}

func (s *Service) completeCall(e *store.Envelope) error {
	offerID := e.QuoteMessageID
	pc := s.popCall(offerID)
	if pc != nil {
		pc.timer.Stop()
	}
	if err := s.insertCallMessage(e.MessageID, e.ConversationID, e.SenderID, e.Category, offerID, e.CreatedAt); err != nil {
		return err
	}
	// Candidates buffered against the pending offer reach the call engine
	// with the completion; a timed-out offer discards them instead.
	if pc != nil && len(pc.candidates) > 0 {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindCallCandidates,
			Timestamp: time.Now(),
			Payload: bus.CallCandidates{
				ConversationID: pc.conversationID,
				OfferID:        pc.offerID,
				MessageID:      e.MessageID,
				Candidates:     pc.candidates,
			},
		})
	}
	return nil
}

// expireCall fires when an offer was never answered: the pending handle is
// discarded together with its buffered candidates and a cancelled terminal
// message takes the offer's place.
func (s *Service) expireCall(offerID string) {
	pc := s.popCall(offerID)
	if pc == nil {
		return
	}
	if err := s.insertCallMessage(pc.offerID, pc.conversationID, pc.senderID, category.CallCancel, "", pc.createdAt); err != nil {
		s.logger.Error("failed to expire call", zap.Error(err), zap.String("offer_id", offerID))
	}
}

func (s *Service) popCall(offerID string) *pendingCall {
	if offerID == "" {
		return nil
	}
	s.callMu.Lock()
	defer s.callMu.Unlock()
	pc, ok := s.calls[offerID]
	if ok {
		delete(s.calls, offerID)
	}
	return pc
}

func (s *Service) insertCallMessage(messageID, conversationID, senderID string, cat category.Category, quoteID string, createdAt int64) error {
	m := &store.Message{
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Category:       cat,
		QuoteMessageID: quoteID,
		Status:         store.StatusDelivered,
		CreatedAt:      createdAt,
	}
	if err := s.insertMessage(m); err != nil {
		return fmt.Errorf("insert call message: %w", err)
	}
	return nil
}
