package api

import (
	"context"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/identity"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/transcript"
	"google.golang.org/grpc"
)

// TranscriptService implements chatbox.v1.Transcript.
type TranscriptService struct {
	identity   *identity.Service
	transcript *transcript.Service
	bus        *bus.Bus
}

// NewTranscriptService creates a new transcript service.
func NewTranscriptService(id *identity.Service, tr *transcript.Service, b *bus.Bus) *TranscriptService {
	return &TranscriptService{identity: id, transcript: tr, bus: b}
}

func (s *TranscriptService) Desc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: TranscriptServiceName,
		HandlerType: (*Registrar)(nil),
		Methods: []grpc.MethodDesc{
			unary(TranscriptServiceName, "ListMessages", s.ListMessages),
			unary(TranscriptServiceName, "SendText", s.SendText),
			unary(TranscriptServiceName, "SendImage", s.SendImage),
			unary(TranscriptServiceName, "ToggleLike", s.ToggleLike),
		},
		Streams: []grpc.StreamDesc{
			serverStream("WatchMessages", s.WatchMessages),
		},
	}
}

func (s *TranscriptService) ListMessages(ctx context.Context, req *ConversationRequest) (*MessagesReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if _, err := s.transcript.Counterparty(ctx, req.ConversationID, self.ID); err != nil {
		return nil, err
	}
	msgs, err := s.transcript.Messages(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	return &MessagesReply{Messages: msgs}, nil
}

func (s *TranscriptService) SendText(ctx context.Context, req *SendRequest) (*Empty, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if err := s.transcript.SendText(ctx, active(req), self.ID, req.Text); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *TranscriptService) SendImage(ctx context.Context, req *SendRequest) (*Empty, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if err := s.transcript.SendImage(ctx, active(req), self.ID, req.ImagePath); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// ToggleLike reads the current list, locates the target in it and flips it.
func (s *TranscriptService) ToggleLike(ctx context.Context, req *LikeRequest) (*MessagesReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if _, err := s.transcript.Counterparty(ctx, req.ConversationID, self.ID); err != nil {
		return nil, err
	}
	local, err := s.transcript.Messages(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	target, ok := findMessage(local, req)
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	msgs, err := s.transcript.ToggleLike(ctx, req.ConversationID, local, target, self.ID)
	if err != nil {
		return nil, err
	}
	return &MessagesReply{Messages: msgs}, nil
}

// WatchMessages streams the full message list on every change until the
// session is cleared.
func (s *TranscriptService) WatchMessages(ctx context.Context, req *ConversationRequest, send func(*MessagesReply) error) error {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return err
	}
	if req.ConversationID == "" {
		return apperr.ErrNoConversation
	}
	if _, err := s.transcript.Counterparty(ctx, req.ConversationID, self.ID); err != nil {
		return err
	}
	ctx, cancel := untilCleared(ctx, s.bus)
	defer cancel()

	lists, stop := s.transcript.Observe(ctx, req.ConversationID)
	defer stop()
	for msgs := range lists {
		if err := send(&MessagesReply{Messages: msgs}); err != nil {
			return err
		}
	}
	return nil
}

func active(req *SendRequest) *model.ActiveConversation {
	if req.ConversationID == "" {
		return nil
	}
	return &model.ActiveConversation{ID: req.ConversationID}
}

func findMessage(msgs []model.Message, req *LikeRequest) (model.Message, bool) {
	for _, m := range msgs {
		if req.MessageID != "" {
			if m.ID == req.MessageID {
				return m, true
			}
			continue
		}
		if m.ID == "" && m.CreatedAt == req.CreatedAt {
			return m, true
		}
	}
	return model.Message{}, false
}
