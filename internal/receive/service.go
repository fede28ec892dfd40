// Package receive is the ingestion core: it stages incoming envelopes,
// drains them through category handlers into the canonical store, and runs
// the acknowledgment and resend protocols.
package receive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/helia-im/helia/internal/bus"
	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/cipher"
	"github.com/helia-im/helia/internal/config"
	"github.com/helia-im/helia/internal/directory"
	"github.com/helia-im/helia/internal/jobs"
	"github.com/helia-im/helia/internal/status"
	"github.com/helia-im/helia/internal/store"
	"github.com/helia-im/helia/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service owns the staging drain loop and all per-category handlers. It is
// the single consumer of the staging store; the ratchet refresh limiters and
// the pending-call table are owned here and touched by no other component.
type Service struct {
	db      *store.DB
	queue   *jobs.Queue
	gateway cipher.Gateway
	dir     directory.API
	sender  transport.Sender
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	cfg     config.Receive

	selfID    string
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	draining atomic.Bool

	refreshMu sync.Mutex
	refresh   map[string]*rate.Limiter

	callMu sync.Mutex
	calls  map[string]*pendingCall

	companionMu sync.RWMutex
	companion   string
}

// New creates the receive service for the given account.
func New(db *store.DB, queue *jobs.Queue, gateway cipher.Gateway, dir directory.API,
	sender transport.Sender, machine *status.Machine, b *bus.Bus,
	cfg config.Receive, selfID, sessionID string, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		queue:     queue,
		gateway:   gateway,
		dir:       dir,
		sender:    sender,
		machine:   machine,
		bus:       b,
		logger:    logger,
		cfg:       cfg,
		selfID:    selfID,
		sessionID: sessionID,
		refresh:   make(map[string]*rate.Limiter),
		calls:     make(map[string]*pendingCall),
	}
}

// Start arms the service and drains any backlog surviving a restart.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.TriggerDrain()
}

// Stop cancels the drain loop and expires pending call timers.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.callMu.Lock()
	for id, pc := range s.calls {
		pc.timer.Stop()
		delete(s.calls, id)
	}
	s.callMu.Unlock()
}

// HandleFrame is the transport push callback.
func (s *Service) HandleFrame(f *transport.Frame) {
	switch f.Action {
	case transport.ActionAcknowledgeReceipt:
		var r transport.AckReceipt
		if err := json.Unmarshal(f.Data, &r); err != nil {
			s.logger.Warn("malformed ack frame", zap.Error(err))
			return
		}
		s.applyRemoteStatus(r.MessageID, store.Status(r.Status))

	case transport.ActionCreateMessage, transport.ActionCreateCall, transport.ActionCreateSessionMessage:
		var d transport.EnvelopeData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			s.logger.Warn("malformed envelope frame", zap.Error(err), zap.String("action", string(f.Action)))
			return
		}
		if d.Category == "" && d.UserID == s.selfID {
			// Echo of our own send carrying only a delivery status.
			s.applyRemoteStatus(d.MessageID, store.Status(d.Status))
			return
		}
		inserted, err := s.db.InsertEnvelope(&store.Envelope{
			MessageID:        d.MessageID,
			ConversationID:   d.ConversationID,
			SenderID:         d.UserID,
			SessionID:        d.SessionID,
			RepresentativeID: d.RepresentativeID,
			Category:         category.Category(d.Category),
			Payload:          d.Data,
			QuoteMessageID:   d.QuoteMessageID,
			Source:           string(f.Action),
			SessionScoped:    f.Action == transport.ActionCreateSessionMessage,
			CreatedAt:        d.CreatedAt.UnixMilli(),
		})
		if err != nil {
			s.logger.Error("failed to stage envelope", zap.Error(err), zap.String("message_id", d.MessageID))
			return
		}
		if inserted {
			s.TriggerDrain()
		}

	default:
		// Unknown actions are acknowledged so the server stops re-pushing.
		var d transport.EnvelopeData
		if err := json.Unmarshal(f.Data, &d); err == nil && d.MessageID != "" {
			s.submitAck(d.MessageID, store.StatusRead)
		}
	}
}

func (s *Service) applyRemoteStatus(messageID string, st store.Status) {
	if messageID == "" || st.Rank() == 0 {
		return
	}
	changed, err := s.db.UpdateMessageStatus(messageID, st, s.selfID)
	if err != nil {
		s.logger.Error("failed to apply remote status", zap.Error(err), zap.String("message_id", messageID))
		return
	}
	if changed {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageStatus,
			Timestamp: time.Now(),
			Payload:   bus.MessageRef{MessageID: messageID},
		})
	}
}

// TriggerDrain kicks the drain loop; concurrent triggers coalesce into the
// running pass, which loops until staging is empty.
func (s *Service) TriggerDrain() {
	if s.ctx == nil {
		return
	}
	go s.Drain(s.ctx)
}

// Drain pulls staged envelope batches and processes each to a terminal
// outcome. Only one instance runs at a time.
func (s *Service) Drain(ctx context.Context) {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	defer s.draining.Store(false)

	for {
		if ctx.Err() != nil || !s.machine.Authenticated() {
			return
		}
		batch, err := s.db.NextStagedBatch(s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("failed to read staged batch", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}
		for i := range batch {
			e := &batch[i]
			if ctx.Err() != nil || !s.machine.Authenticated() {
				return
			}
			if err := s.processEnvelope(ctx, e); err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				// Data errors are terminal for the envelope: log and fall
				// through to the delete so the queue keeps draining.
				s.logger.Warn("envelope degraded",
					zap.Error(err),
					zap.String("message_id", e.MessageID),
					zap.String("category", string(e.Category)))
			}
			if err := s.db.DeleteEnvelope(e.MessageID); err != nil {
				s.logger.Error("failed to delete staged envelope", zap.Error(err), zap.String("message_id", e.MessageID))
				return
			}
		}
		if len(batch) == s.cfg.BatchSize {
			s.drainBotBulk(ctx)
		}
	}
}

func (s *Service) processEnvelope(ctx context.Context, e *store.Envelope) error {
	if !category.Legal(e.Category) {
		s.logger.Warn("unrecognized category", zap.String("category", string(e.Category)), zap.String("message_id", e.MessageID))
		s.ack(e, store.StatusDelivered)
		return nil
	}
	exists, err := s.db.MessageExists(e.MessageID)
	if err != nil {
		return err
	}
	if exists {
		s.ack(e, store.StatusDelivered)
		return nil
	}
	if !s.resolveConversation(ctx, e) {
		s.ack(e, store.StatusDelivered)
		return nil
	}

	switch category.FamilyOf(e.Category) {
	case category.FamilySystem:
		return s.handleSystem(ctx, e)
	case category.FamilyPlain:
		return s.handlePlain(ctx, e)
	case category.FamilySignal:
		return s.handleSignal(ctx, e)
	case category.FamilyApp:
		return s.handleApp(e)
	case category.FamilyCall:
		return s.handleCall(e)
	case category.FamilyRecall:
		return s.handleRecall(e)
	}
	return nil
}

// ack routes an acknowledgment over the conversation channel, or the
// companion session channel for session-scoped envelopes.
func (s *Service) ack(e *store.Envelope, st store.Status) {
	if e.SessionScoped {
		s.submitSessionAck(e.MessageID, st)
		return
	}
	s.submitAck(e.MessageID, st)
}

func (s *Service) submitAck(messageID string, st store.Status) {
	f := transport.NewAck(messageID, string(st))
	s.queue.Submit(jobs.Job{
		ID:     "ack-" + messageID,
		Action: "ack",
		Run: func(ctx context.Context) error {
			return s.sender.Send(ctx, f)
		},
	})
}

func (s *Service) submitSessionAck(messageID string, st store.Status) {
	f := transport.NewSessionAck(messageID, string(st))
	s.queue.Submit(jobs.Job{
		ID:     "session-ack-" + messageID,
		Action: "session-ack",
		Run: func(ctx context.Context) error {
			return s.sender.Send(ctx, f)
		},
	})
}

// CompanionSession returns the linked companion session id, empty when none.
func (s *Service) CompanionSession() string {
	s.companionMu.RLock()
	defer s.companionMu.RUnlock()
	return s.companion
}

func (s *Service) setCompanionSession(sessionID string) {
	s.companionMu.Lock()
	s.companion = sessionID
	s.companionMu.Unlock()
	s.bus.Publish(bus.Event{
		Kind:      bus.KindSessionChanged,
		Timestamp: time.Now(),
		Payload:   sessionID,
	})
}

// mirrorToCompanion forwards a canonical message to the linked companion
// session. Session-scoped input is never mirrored back.
func (s *Service) mirrorToCompanion(e *store.Envelope, m *store.Message) {
	if e.SessionScoped || s.CompanionSession() == "" {
		return
	}
	f := transport.NewSessionSend(transport.MessageParam{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		Category:       string(m.Category),
		Data:           e.Payload,
		Status:         string(m.Status),
	})
	s.queue.Submit(jobs.Job{
		ID:     "session-send-" + m.MessageID,
		Action: "session-send",
		Run: func(ctx context.Context) error {
			return s.sender.Send(ctx, f)
		},
	})
}

func (s *Service) notifyConversation(conversationID string) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindConversationChanged,
		Timestamp: time.Now(),
		Payload:   conversationID,
	})
}

func newID() string {
	return uuid.NewString()
}

func (s *Service) publishInserted(m *store.Message) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageInserted,
		Timestamp: time.Now(),
		Payload:   bus.MessageRef{ConversationID: m.ConversationID, MessageID: m.MessageID},
	})
}

// insertMessage persists a canonical message and notifies subscribers.
func (s *Service) insertMessage(m *store.Message) error {
	inserted, err := s.db.InsertMessage(m, s.selfID)
	if err != nil {
		return err
	}
	if inserted {
		s.publishInserted(m)
	}
	return nil
}

func (s *Service) syncUser(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	known, err := s.db.UserExists(userID)
	if err != nil || known {
		return
	}
	var u *store.User
	err = directory.Retry(ctx, func() error {
		var ferr error
		u, ferr = s.dir.FetchUser(ctx, userID)
		return ferr
	})
	if err != nil {
		s.logger.Warn("user sync failed", zap.Error(err), zap.String("user_id", userID))
		return
	}
	if err := s.db.UpsertUser(u); err != nil {
		s.logger.Error("failed to store user", zap.Error(err), zap.String("user_id", userID))
	}
}

// requireUser is the strict variant of syncUser: the caller's operation
// fails when the user cannot be resolved.
func (s *Service) requireUser(ctx context.Context, userID string) error {
	known, err := s.db.UserExists(userID)
	if err != nil || known {
		return err
	}
	var u *store.User
	err = directory.Retry(ctx, func() error {
		var ferr error
		u, ferr = s.dir.FetchUser(ctx, userID)
		return ferr
	})
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: user %s gone", errInvalidTransfer, userID)
	}
	if err != nil {
		return err
	}
	return s.db.UpsertUser(u)
}

func (s *Service) syncUsers(ctx context.Context, userIDs []string) {
	missing, err := s.db.MissingUsers(userIDs)
	if err != nil || len(missing) == 0 {
		return
	}
	var users []store.User
	err = directory.Retry(ctx, func() error {
		var ferr error
		users, ferr = s.dir.FetchUsers(ctx, missing)
		return ferr
	})
	if err != nil {
		s.logger.Warn("bulk user sync failed", zap.Error(err), zap.Int("count", len(missing)))
		return
	}
	if err := s.db.UpsertUsers(users); err != nil {
		s.logger.Error("failed to store users", zap.Error(err))
	}
}
