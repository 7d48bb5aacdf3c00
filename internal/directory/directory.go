// Package directory maintains each principal's list of conversation
// summaries and keeps both sides of a conversation in step.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errLookupFailed = errors.New("profile lookup failed")

// prefixSentinel closes a prefix range on the username field.
const prefixSentinel = "\uf8ff"

// Service implements the conversation directory on a document store.
type Service struct {
	docs   store.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a directory service.
func New(docs store.Store, logger *zap.Logger) *Service {
	return &Service{docs: docs, logger: logger, now: time.Now}
}

// Lookup reads a principal's profile. It makes Service a ProfileLookup.
func (s *Service) Lookup(ctx context.Context, principalID string) (*model.Principal, error) {
	rec, err := s.docs.Get(ctx, model.UsersCollection, principalID)
	if err != nil {
		return nil, err
	}
	var p model.Principal
	if err := store.Decode(rec, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load returns the principal's directory. A missing document reads as empty.
func (s *Service) Load(ctx context.Context, principalID string) (*model.Directory, error) {
	rec, err := s.docs.Get(ctx, model.DirectoriesCollection, principalID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Directory{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDirectory(rec)
}

func decodeDirectory(rec store.Record) (*model.Directory, error) {
	var d model.Directory
	if err := store.Decode(rec, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns the joined, ordered directory once.
func (s *Service) List(ctx context.Context, principalID string, lookup ProfileLookup) ([]model.Entry, error) {
	d, err := s.Load(ctx, principalID)
	if err != nil {
		return nil, apperr.ErrBackend("load directory", err)
	}
	return JoinAll(ctx, d.Summaries, lookup), nil
}

// Observe emits the joined directory on every change of the principal's
// directory document. A read error is logged and the emission skipped.
func (s *Service) Observe(ctx context.Context, principalID string, lookup ProfileLookup) (<-chan []model.Entry, func()) {
	ctx, cancel := context.WithCancel(ctx)
	snaps, stop := s.docs.Subscribe(ctx, model.DirectoriesCollection, principalID)
	out := make(chan []model.Entry, 1)

	go func() {
		defer close(out)
		defer stop()
		for snap := range snaps {
			if snap.Err != nil {
				s.logger.Warn("directory subscription error", zap.String("principal", principalID), zap.Error(snap.Err))
				continue
			}
			d := &model.Directory{}
			if snap.Exists {
				var err error
				if d, err = decodeDirectory(snap.Record); err != nil {
					s.logger.Warn("directory decode failed", zap.String("principal", principalID), zap.Error(err))
					continue
				}
			}
			bus.Offer(out, JoinAll(ctx, d.Summaries, lookup))
		}
	}()
	return out, cancel
}

// FindByUsernamePrefix returns principals whose username starts with the
// lowercased, trimmed text. Blank text matches nobody.
func (s *Service) FindByUsernamePrefix(ctx context.Context, text string) ([]model.Principal, error) {
	prefix := strings.ToLower(strings.TrimSpace(text))
	if prefix == "" {
		return nil, nil
	}
	recs, err := s.docs.Query(ctx, model.UsersCollection, store.RangeFilter{
		Field: "username",
		GTE:   prefix,
		LTE:   prefix + prefixSentinel,
	})
	if err != nil {
		return nil, apperr.ErrBackend("search users", err)
	}
	out := make([]model.Principal, 0, len(recs))
	for _, rec := range recs {
		var p model.Principal
		if err := store.Decode(rec, &p); err != nil {
			s.logger.Warn("skipping undecodable profile", zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// StartConversation creates a conversation between self and other and links
// it from both directories. When self's directory already references other
// the existing conversation id is returned with created=false; the empty
// conversation created first is left behind in that case.
//
// Two principals starting a conversation with each other at the same time
// can end up with two conversations.
func (s *Service) StartConversation(ctx context.Context, selfID, otherID string) (string, bool, error) {
	if selfID == "" {
		return "", false, apperr.ErrNotSignedIn
	}
	if otherID == "" {
		return "", false, apperr.InvalidArg("no principal selected")
	}
	if selfID == otherID {
		return "", false, apperr.ErrSelfConversation
	}

	conversationID := uuid.NewString()
	conv, err := store.Encode(model.Conversation{Messages: []model.Message{}})
	if err != nil {
		return "", false, apperr.ErrBackend("encode conversation", err)
	}
	if err := s.docs.Set(ctx, model.ConversationsCollection, conversationID, conv); err != nil {
		return "", false, apperr.ErrBackend("create conversation", err)
	}

	own, err := s.Load(ctx, selfID)
	if err != nil {
		return "", false, apperr.ErrBackend("load directory", err)
	}
	if i := own.FindCounterparty(otherID); i >= 0 {
		s.logger.Debug("conversation already exists",
			zap.String("conversation", own.Summaries[i].ConversationID),
			zap.String("orphan", conversationID))
		return own.Summaries[i].ConversationID, false, nil
	}

	now := s.now().UnixMilli()
	mine := model.ConversationSummary{ConversationID: conversationID, CounterpartyID: otherID, UpdatedAt: now, Seen: true}
	theirs := model.ConversationSummary{ConversationID: conversationID, CounterpartyID: selfID, UpdatedAt: now, Seen: true}

	if err := s.appendSummary(ctx, selfID, mine); err != nil {
		return "", false, apperr.ErrBackend("link conversation", err)
	}
	if err := s.appendSummary(ctx, otherID, theirs); err != nil {
		// Self now holds a summary without its mirror; readers tolerate it.
		s.logger.Warn("mirrored summary write failed",
			zap.String("conversation", conversationID),
			zap.String("counterparty", otherID),
			zap.Error(err))
		return "", false, apperr.ErrBackend("link counterparty", err)
	}

	s.logger.Info("conversation started", zap.String("conversation", conversationID))
	return conversationID, true, nil
}

// appendSummary adds a summary to a directory, creating the directory
// document when it does not exist yet.
func (s *Service) appendSummary(ctx context.Context, ownerID string, summary model.ConversationSummary) error {
	err := s.docs.AppendToArrayField(ctx, model.DirectoriesCollection, ownerID, "chatsData", summary)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	rec, err := store.Encode(model.Directory{Summaries: []model.ConversationSummary{summary}})
	if err != nil {
		return err
	}
	return s.docs.Set(ctx, model.DirectoriesCollection, ownerID, rec)
}

// Link adds summary to the owner's directory without checking for an
// existing entry.
func (s *Service) Link(ctx context.Context, ownerID string, summary model.ConversationSummary) error {
	if err := s.appendSummary(ctx, ownerID, summary); err != nil {
		return apperr.ErrBackend("link summary", err)
	}
	return nil
}

// MarkSeen sets seen=true on the principal's summary for the conversation.
// The whole array is written back; a concurrent writer to the same
// directory can be overwritten.
func (s *Service) MarkSeen(ctx context.Context, principalID, conversationID string) error {
	_, err := s.rewrite(ctx, principalID, conversationID, func(sum *model.ConversationSummary) {
		sum.Seen = true
	})
	if err != nil {
		return apperr.ErrBackend("mark seen", err)
	}
	return nil
}

// TouchOnMessage records a new message in both directories: preview and
// timestamp on both sides, and seen=false on the recipient's side when
// markUnseen is set. The two directories are rewritten independently; a
// failure on one side does not stop the other, and a side without a
// matching summary is skipped.
func (s *Service) TouchOnMessage(ctx context.Context, conversationID, senderID, recipientID, preview string, markUnseen bool) error {
	now := s.now().UnixMilli()
	owners := []string{senderID, recipientID}
	errs := make([]error, len(owners))
	var g errgroup.Group
	for i, owner := range owners {
		isRecipient := owner != senderID
		g.Go(func() error {
			found, err := s.rewrite(ctx, owner, conversationID, func(sum *model.ConversationSummary) {
				sum.LastMessage = preview
				sum.UpdatedAt = now
				if markUnseen && isRecipient {
					sum.Seen = false
				}
			})
			if err != nil {
				errs[i] = fmt.Errorf("touch directory %s: %w", owner, err)
				return nil
			}
			if !found {
				s.logger.Debug("no summary to touch", zap.String("owner", owner), zap.String("conversation", conversationID))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return apperr.ErrBackend("update directories", err)
	}
	return nil
}

// rewrite reads the owner's directory, applies fn to the summary for
// conversationID and writes the full array back. It reports whether the
// summary was found; a missing directory or summary is not an error.
func (s *Service) rewrite(ctx context.Context, ownerID, conversationID string, fn func(*model.ConversationSummary)) (bool, error) {
	rec, err := s.docs.Get(ctx, model.DirectoriesCollection, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	d, err := decodeDirectory(rec)
	if err != nil {
		return false, err
	}
	i := d.Find(conversationID)
	if i < 0 {
		return false, nil
	}
	fn(&d.Summaries[i])

	updated, err := store.Encode(d)
	if err != nil {
		return false, err
	}
	if err := s.docs.Update(ctx, model.DirectoriesCollection, ownerID, store.Record{"chatsData": updated["chatsData"]}); err != nil {
		return false, err
	}
	return true, nil
}
