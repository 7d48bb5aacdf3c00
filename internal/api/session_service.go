package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/identity"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/status"
	"google.golang.org/grpc"
)

// SessionService implements chatbox.v1.Session.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	identity    *identity.Service
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, id *identity.Service) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		identity:    id,
	}
}

func (s *SessionService) Desc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: SessionServiceName,
		HandlerType: (*Registrar)(nil),
		Methods: []grpc.MethodDesc{
			unary(SessionServiceName, "GetStatus", s.GetStatus),
			unary(SessionServiceName, "SignUp", s.SignUp),
			unary(SessionServiceName, "SignIn", s.SignIn),
			unary(SessionServiceName, "SignOut", s.SignOut),
			unary(SessionServiceName, "UpdateProfile", s.UpdateProfile),
		},
		Streams: []grpc.StreamDesc{
			serverStream("WatchSession", s.WatchSession),
		},
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusReply, error) {
	state, advisory := s.machine.Snapshot()
	return &StatusReply{
		Session:   s.sessionName,
		State:     string(state),
		Advisory:  advisory,
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
		Principal: s.identity.Current(),
	}, nil
}

func (s *SessionService) SignUp(ctx context.Context, req *SignUpRequest) (*PrincipalReply, error) {
	p, err := s.identity.SignUp(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &PrincipalReply{Principal: p}, nil
}

func (s *SessionService) SignIn(ctx context.Context, req *SignInRequest) (*PrincipalReply, error) {
	p, err := s.identity.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &PrincipalReply{Principal: p}, nil
}

func (s *SessionService) SignOut(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.identity.SignOut(ctx); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *SessionService) UpdateProfile(ctx context.Context, req *ProfileRequest) (*PrincipalReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	if err := s.identity.UpdateProfile(ctx, self.ID, req.Name, req.Bio, req.AvatarPath); err != nil {
		return nil, err
	}
	return &PrincipalReply{Principal: s.identity.Current()}, nil
}

// WatchSession streams session changes until the client goes away. Unlike
// the other watch streams it survives sign-out, which it reports.
func (s *SessionService) WatchSession(ctx context.Context, _ *Empty, send func(*SessionEvent) error) error {
	events, stop := s.identity.Observe(ctx)
	defer stop()
	for evt := range events {
		if err := send(&SessionEvent{Kind: string(evt.Kind), Principal: evt.Principal, Advisory: evt.Advisory}); err != nil {
			return err
		}
	}
	return nil
}

func currentPrincipal(id *identity.Service) (*model.Principal, error) {
	p := id.Current()
	if p == nil {
		return nil, apperr.ErrNotSignedIn
	}
	return p, nil
}
