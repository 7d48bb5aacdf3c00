// Package transcript reads and writes the message list of a conversation.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/blob"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
)

const messagesField = "messages"

// Directory resolves conversation membership and updates summaries after a
// message is appended.
type Directory interface {
	Load(ctx context.Context, principalID string) (*model.Directory, error)
	TouchOnMessage(ctx context.Context, conversationID, senderID, recipientID, preview string, markUnseen bool) error
}

// Service implements the conversation transcript.
type Service struct {
	docs   store.Store
	blobs  blob.Store
	dir    Directory
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a transcript service.
func New(docs store.Store, blobs blob.Store, dir Directory, logger *zap.Logger) *Service {
	return &Service{
		docs:   docs,
		blobs:  blobs,
		dir:    dir,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func decode(rec store.Record) ([]model.Message, error) {
	var c model.Conversation
	if err := store.Decode(rec, &c); err != nil {
		return nil, err
	}
	if c.Messages == nil {
		c.Messages = []model.Message{}
	}
	return c.Messages, nil
}

// Messages reads the conversation's message list once.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rec, err := s.docs.Get(ctx, model.ConversationsCollection, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, apperr.ErrBackend("load messages", err)
	}
	msgs, err := decode(rec)
	if err != nil {
		return nil, apperr.ErrBackend("decode messages", err)
	}
	return msgs, nil
}

// Observe emits the full message list on every change. Each emission
// replaces the previous one.
func (s *Service) Observe(ctx context.Context, conversationID string) (<-chan []model.Message, func()) {
	ctx, cancel := context.WithCancel(ctx)
	snaps, stop := s.docs.Subscribe(ctx, model.ConversationsCollection, conversationID)
	out := make(chan []model.Message, 1)

	go func() {
		defer close(out)
		defer stop()
		for snap := range snaps {
			if snap.Err != nil {
				s.logger.Warn("transcript subscription error", zap.String("conversation", conversationID), zap.Error(snap.Err))
				continue
			}
			msgs := []model.Message{}
			if snap.Exists {
				var err error
				if msgs, err = decode(snap.Record); err != nil {
					s.logger.Warn("transcript decode failed", zap.String("conversation", conversationID), zap.Error(err))
					continue
				}
			}
			bus.Offer(out, msgs)
		}
	}()
	return out, cancel
}

// Counterparty returns the other participant of conversationID as recorded
// in principalID's own directory. A conversation the principal is not linked
// to fails with apperr.ErrNoConversation.
func (s *Service) Counterparty(ctx context.Context, conversationID, principalID string) (string, error) {
	d, err := s.dir.Load(ctx, principalID)
	if err != nil {
		return "", apperr.ErrBackend("load directory", err)
	}
	i := d.Find(conversationID)
	if i < 0 {
		return "", apperr.ErrNoConversation
	}
	return d.Summaries[i].CounterpartyID, nil
}

// SendText appends a text message and updates both directories. Empty text
// or no active conversation is a no-op. The recipient is the counterparty in
// the sender's directory, not active.CounterpartyID.
func (s *Service) SendText(ctx context.Context, active *model.ActiveConversation, senderID, text string) error {
	if text == "" || active == nil || active.ID == "" {
		return nil
	}
	recipientID, err := s.Counterparty(ctx, active.ID, senderID)
	if err != nil {
		return err
	}
	msg := model.Message{SenderID: senderID, Text: text}
	return s.send(ctx, active.ID, recipientID, msg, model.Preview(text))
}

// SendImage uploads a local image, appends a message referencing its public
// URL and updates both directories with the "Image" preview. Images sharing
// a base name overwrite each other's blob.
func (s *Service) SendImage(ctx context.Context, active *model.ActiveConversation, senderID, localPath string) error {
	if localPath == "" || active == nil || active.ID == "" {
		return nil
	}
	recipientID, err := s.Counterparty(ctx, active.ID, senderID)
	if err != nil {
		return err
	}
	url, err := blob.UploadFile(ctx, s.blobs, localPath)
	if err != nil {
		return apperr.ErrBackend("upload image", err)
	}
	msg := model.Message{SenderID: senderID, Image: url}
	return s.send(ctx, active.ID, recipientID, msg, model.ImagePreview)
}

func (s *Service) send(ctx context.Context, conversationID, recipientID string, msg model.Message, preview string) error {
	msg.ID = s.newID()
	msg.CreatedAt = s.now().UnixMilli()
	msg.Liked = false

	err := s.docs.AppendToArrayField(ctx, model.ConversationsCollection, conversationID, messagesField, msg)
	if err != nil {
		return apperr.ErrBackend("append message", err)
	}
	if err := s.dir.TouchOnMessage(ctx, conversationID, msg.SenderID, recipientID, preview, true); err != nil {
		s.logger.Warn("directory update after send failed", zap.String("conversation", conversationID), zap.Error(err))
		return err
	}
	return nil
}

// ToggleLike flips the liked flag of target within local and writes the
// whole list back. Messages are matched by id; messages stored without one
// fall back to createdAt equality. Liking one's own message, or a target
// that is not in local, changes nothing. A principal not linked to the
// conversation gets apperr.ErrNoConversation.
func (s *Service) ToggleLike(ctx context.Context, conversationID string, local []model.Message, target model.Message, byPrincipalID string) ([]model.Message, error) {
	if _, err := s.Counterparty(ctx, conversationID, byPrincipalID); err != nil {
		return local, err
	}
	out := make([]model.Message, len(local))
	copy(out, local)
	if target.SenderID == byPrincipalID {
		return out, nil
	}

	i := indexOf(out, target)
	if i < 0 {
		return out, nil
	}
	out[i].Liked = !out[i].Liked

	if err := s.docs.Update(ctx, model.ConversationsCollection, conversationID, store.Record{messagesField: out}); err != nil {
		return local, apperr.ErrBackend("toggle like", err)
	}
	return out, nil
}

func indexOf(msgs []model.Message, target model.Message) int {
	for i, m := range msgs {
		if target.ID != "" {
			if m.ID == target.ID {
				return i
			}
			continue
		}
		if m.ID == "" && m.CreatedAt == target.CreatedAt {
			return i
		}
	}
	return -1
}
