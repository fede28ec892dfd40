package receive

import (
	"context"
	"errors"
	"fmt"

	"github.com/helia-im/helia/internal/category"
	"github.com/helia-im/helia/internal/directory"
	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// Media download states carried by attachment messages.
const (
	mediaPending  = "PENDING"
	mediaCanceled = "CANCELED"
)

func (s *Service) handlePlain(ctx context.Context, e *store.Envelope) error {
	if e.Category == category.PlainJSON {
		s.ack(e, store.StatusRead)
		if err := s.handlePlainJSON(e); err != nil {
			return err
		}
		// Control envelopes persist no message; the history index is the
		// only replay guard they get.
		return s.db.ReplaceHistory(e.MessageID)
	}

	raw, err := decodeBase64(e.Payload)
	if err != nil {
		s.ack(e, store.StatusDelivered)
		s.logger.Warn("undecodable plain payload", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	m, err := s.buildContentMessage(ctx, e, raw, store.StatusDelivered)
	s.ack(e, store.StatusDelivered)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Warn("rejected plain transfer", zap.Error(err), zap.String("message_id", e.MessageID), zap.String("category", string(e.Category)))
		return nil
	}
	s.syncUser(ctx, e.SenderID)
	if err := s.insertMessage(m); err != nil {
		return fmt.Errorf("insert plain message: %w", err)
	}
	s.mirrorToCompanion(e, m)
	return nil
}

// buildContentMessage turns a decoded plain/signal body into a canonical
// message per its content kind. Validation failures return an error and the
// message is dropped.
func (s *Service) buildContentMessage(ctx context.Context, e *store.Envelope, raw []byte, st store.Status) (*store.Message, error) {
	m := &store.Message{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Category:       e.Category,
		QuoteMessageID: e.QuoteMessageID,
		Status:         st,
		CreatedAt:      e.CreatedAt,
	}

	switch category.KindOf(e.Category) {
	case category.KindText:
		m.Content = string(raw)

	case category.KindImage, category.KindVideo, category.KindData, category.KindAudio:
		var a Attachment
		if err := decodeJSON(raw, &a); err != nil {
			return nil, err
		}
		if err := a.Validate(category.KindOf(e.Category)); err != nil {
			return nil, err
		}
		m.Content = a.AttachmentID
		m.MediaMimeType = a.MimeType
		m.MediaSize = a.Size
		m.MediaWidth = a.Width
		m.MediaHeight = a.Height
		m.MediaDuration = a.Duration
		m.ThumbImage = a.Thumbnail
		m.Name = a.Name
		m.MediaStatus = mediaPending

	case category.KindSticker:
		var ref StickerRef
		if err := decodeJSON(raw, &ref); err != nil {
			return nil, err
		}
		id, err := s.resolveSticker(ctx, &ref)
		if err != nil {
			return nil, err
		}
		m.StickerID = id

	case category.KindContact:
		var c ContactRef
		if err := decodeJSON(raw, &c); err != nil {
			return nil, err
		}
		if c.UserID == "" {
			return nil, fmt.Errorf("%w: empty contact user id", errInvalidTransfer)
		}
		// A contact message without its user record is unrenderable; the
		// shared user must resolve before the message persists.
		if err := s.requireUser(ctx, c.UserID); err != nil {
			return nil, err
		}
		m.SharedUserID = c.UserID

	default:
		return nil, fmt.Errorf("%w: category %s carries no content", errInvalidTransfer, e.Category)
	}
	return m, nil
}

// resolveSticker maps a sticker reference to a locally-cached sticker id,
// fetching unknown stickers from the directory first.
func (s *Service) resolveSticker(ctx context.Context, ref *StickerRef) (string, error) {
	if ref.StickerID == "" {
		if ref.AlbumID == "" || ref.Name == "" {
			return "", fmt.Errorf("%w: empty sticker reference", errInvalidTransfer)
		}
		st, err := s.db.FindStickerByName(ref.AlbumID, ref.Name)
		if err != nil {
			return "", err
		}
		if st == nil {
			return "", fmt.Errorf("%w: unknown sticker %s/%s", errInvalidTransfer, ref.AlbumID, ref.Name)
		}
		return st.StickerID, nil
	}

	known, err := s.db.StickerExists(ref.StickerID)
	if err != nil {
		return "", err
	}
	if known {
		return ref.StickerID, nil
	}
	var st *store.Sticker
	err = directory.Retry(ctx, func() error {
		var ferr error
		st, ferr = s.dir.FetchSticker(ctx, ref.StickerID)
		return ferr
	})
	if errors.Is(err, directory.ErrNotFound) {
		return "", fmt.Errorf("%w: sticker %s gone", errInvalidTransfer, ref.StickerID)
	}
	if err != nil {
		return "", err
	}
	if err := s.db.UpsertSticker(st); err != nil {
		return "", err
	}
	return ref.StickerID, nil
}

// handlePlainJSON services in-conversation resend control actions from
// peers; it never persists a message.
func (s *Service) handlePlainJSON(e *store.Envelope) error {
	var p PlainJSON
	if err := decodeBase64JSON(e.Payload, &p); err != nil {
		s.logger.Warn("undecodable plain json", zap.Error(err), zap.String("message_id", e.MessageID))
		return nil
	}
	switch p.Action {
	case PlainActionResendKey:
		if s.gateway.ContainsSession(e.SenderID) {
			s.submitSendKey(e.ConversationID, e.SenderID)
		}
	case PlainActionResendMessages:
		s.serviceResendMessages(e.ConversationID, e.SenderID, p.Messages)
	case PlainActionNoKey:
		s.gateway.DeleteRatchetKey(e.ConversationID, e.SenderID)
	default:
		s.logger.Debug("ignored plain json action", zap.String("action", p.Action))
	}
	return nil
}
