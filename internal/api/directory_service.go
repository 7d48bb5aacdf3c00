package api

import (
	"context"

	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/directory"
	"github.com/matheus3301/chatbox/internal/identity"
	"google.golang.org/grpc"
)

// DirectoryService implements chatbox.v1.Directory for the signed-in
// principal.
type DirectoryService struct {
	identity  *identity.Service
	directory *directory.Service
	bus       *bus.Bus
}

// NewDirectoryService creates a new directory service.
func NewDirectoryService(id *identity.Service, dir *directory.Service, b *bus.Bus) *DirectoryService {
	return &DirectoryService{identity: id, directory: dir, bus: b}
}

func (s *DirectoryService) Desc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: DirectoryServiceName,
		HandlerType: (*Registrar)(nil),
		Methods: []grpc.MethodDesc{
			unary(DirectoryServiceName, "ListChats", s.ListChats),
			unary(DirectoryServiceName, "SearchUsers", s.SearchUsers),
			unary(DirectoryServiceName, "StartChat", s.StartChat),
			unary(DirectoryServiceName, "MarkSeen", s.MarkSeen),
		},
		Streams: []grpc.StreamDesc{
			serverStream("WatchChats", s.WatchChats),
		},
	}
}

func (s *DirectoryService) ListChats(ctx context.Context, _ *Empty) (*ChatsReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	entries, err := s.directory.List(ctx, self.ID, s.directory)
	if err != nil {
		return nil, err
	}
	return &ChatsReply{Entries: entries}, nil
}

func (s *DirectoryService) SearchUsers(ctx context.Context, req *SearchRequest) (*UsersReply, error) {
	if _, err := currentPrincipal(s.identity); err != nil {
		return nil, err
	}
	users, err := s.directory.FindByUsernamePrefix(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return &UsersReply{Users: users}, nil
}

func (s *DirectoryService) StartChat(ctx context.Context, req *StartChatRequest) (*StartChatReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	id, created, err := s.directory.StartConversation(ctx, self.ID, req.PrincipalID)
	if err != nil {
		return nil, err
	}
	return &StartChatReply{ConversationID: id, Created: created}, nil
}

func (s *DirectoryService) MarkSeen(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if err := s.directory.MarkSeen(ctx, self.ID, req.ConversationID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// WatchChats streams the joined directory of the signed-in principal until
// the session is cleared.
func (s *DirectoryService) WatchChats(ctx context.Context, _ *Empty, send func(*ChatsReply) error) error {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return err
	}
	ctx, cancel := untilCleared(ctx, s.bus)
	defer cancel()

	entries, stop := s.directory.Observe(ctx, self.ID, s.directory)
	defer stop()
	for list := range entries {
		if err := send(&ChatsReply{Entries: list}); err != nil {
			return err
		}
	}
	return nil
}
