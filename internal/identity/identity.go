// Package identity owns the signed-in principal of a session: sign-up,
// sign-in, sign-out, profile edits and the profile hydration that follows
// every auth state change.
package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/auth"
	"github.com/matheus3301/chatbox/internal/blob"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/status"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProfileMissingAdvisory is reported when a credential has no profile yet.
const ProfileMissingAdvisory = "profile not found, sign-up may still be in progress"

// ErrProfileMissing is returned by SignIn when the account has no profile.
var ErrProfileMissing = apperr.New(apperr.CodeNotFound, ProfileMissingAdvisory)

// EventKind tells whether a session event signs a principal in or out.
type EventKind string

const (
	SignedOut EventKind = "SIGNED_OUT"
	SignedIn  EventKind = "SIGNED_IN"
)

// Event is published on every session change.
type Event struct {
	Kind      EventKind
	Principal *model.Principal
	Advisory  string
}

// Cleared is the payload of bus.KindSessionCleared.
type Cleared struct {
	PrincipalID string
}

// Service implements the identity session of one daemon.
type Service struct {
	auth    auth.Provider
	docs    store.Store
	blobs   blob.Store
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}

	// hydrateMu serializes profile hydration between the auth watcher and
	// the sign-up/sign-in calls.
	hydrateMu sync.Mutex

	mu      sync.RWMutex
	current *model.Principal
}

// New creates an identity service.
func New(p auth.Provider, docs store.Store, blobs blob.Store, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Service {
	return &Service{
		auth:    p,
		docs:    docs,
		blobs:   blobs,
		bus:     b,
		machine: m,
		logger:  logger,
	}
}

// Start follows auth state changes and hydrates the principal for each.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	creds, stop := s.auth.ObserveAuthState(ctx)

	go func() {
		defer close(s.done)
		defer stop()
		for cred := range creds {
			if cred == nil {
				s.clear()
				continue
			}
			if _, err := s.hydrate(ctx, cred); err != nil && !errors.Is(err, ErrProfileMissing) && ctx.Err() == nil {
				s.logger.Warn("profile hydration failed", zap.Error(err))
			}
		}
	}()
}

// Stop stops following auth state.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Current returns a copy of the signed-in principal, or nil.
func (s *Service) Current() *model.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// Observe emits the current session state, then every change. Intermediate
// events may be coalesced when the receiver lags.
func (s *Service) Observe(ctx context.Context) (<-chan Event, func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsub := s.bus.Subscribe(bus.KindSessionChanged, 16)
	out := make(chan Event, 1)
	out <- s.snapshot()

	go func() {
		defer close(out)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				if e, ok := evt.Payload.(Event); ok {
					bus.Offer(out, e)
				}
			}
		}
	}()
	return out, cancel
}

func (s *Service) snapshot() Event {
	if p := s.Current(); p != nil {
		return Event{Kind: SignedIn, Principal: p}
	}
	_, advisory := s.machine.Snapshot()
	return Event{Kind: SignedOut, Advisory: advisory}
}

func validateCredentials(email, password string) error {
	if !emailPattern.MatchString(email) {
		return apperr.ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < 6 {
		return apperr.ErrWeakPassword
	}
	return nil
}

// SignUp creates the credential, the profile document and an empty
// directory, in that order. A failure after the credential exists leaves it
// without a profile; the next sign-in reports ProfileMissingAdvisory.
func (s *Service) SignUp(ctx context.Context, username, email, password string) (*model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, apperr.ErrEmptyUsername
	}
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	taken, err := s.docs.Query(ctx, model.UsersCollection, store.Equal("username", username))
	if err != nil {
		return nil, apperr.ErrBackend("check username", err)
	}
	if len(taken) > 0 {
		return nil, apperr.ErrUsernameTaken
	}

	cred, err := s.auth.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, authError(err)
	}

	profile := model.Principal{
		ID:       cred.UID,
		Email:    email,
		Username: username,
		Avatar:   model.DefaultAvatar,
		Bio:      model.DefaultBio,
		LastSeen: time.Now().UnixMilli(),
	}
	rec, err := store.Encode(profile)
	if err != nil {
		return nil, apperr.ErrBackend("encode profile", err)
	}
	if err := s.docs.Set(ctx, model.UsersCollection, cred.UID, rec); err != nil {
		s.logger.Error("profile write failed after account creation", zap.String("uid", cred.UID), zap.Error(err))
		return nil, apperr.ErrBackend("create profile", err)
	}
	dir, err := store.Encode(model.Directory{Summaries: []model.ConversationSummary{}})
	if err != nil {
		return nil, apperr.ErrBackend("encode directory", err)
	}
	if err := s.docs.Set(ctx, model.DirectoriesCollection, cred.UID, dir); err != nil {
		s.logger.Error("directory write failed after account creation", zap.String("uid", cred.UID), zap.Error(err))
		return nil, apperr.ErrBackend("create directory", err)
	}

	s.logger.Info("signed up", zap.String("uid", cred.UID), zap.String("username", username))
	return s.hydrate(ctx, cred)
}

// SignIn authenticates and loads the principal's profile.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	cred, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, authError(err)
	}

	err = s.docs.Update(ctx, model.UsersCollection, cred.UID, store.Record{"lastSeen": time.Now().UnixMilli()})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("lastSeen update failed", zap.String("uid", cred.UID), zap.Error(err))
	}

	s.logger.Info("signed in", zap.String("uid", cred.UID))
	return s.hydrate(ctx, cred)
}

// SignOut drops the credential and clears the session state.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.auth.SignOut(ctx); err != nil {
		return apperr.ErrBackend("sign out", err)
	}
	s.clear()
	return nil
}

// UpdateProfile sets name and bio and, when avatarPath is given, uploads it
// and points the avatar at its public URL first.
func (s *Service) UpdateProfile(ctx context.Context, principalID, name, bio, avatarPath string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.ErrEmptyName
	}
	if principalID == "" {
		return apperr.ErrNotSignedIn
	}

	if avatarPath != "" {
		url, err := blob.UploadFile(ctx, s.blobs, avatarPath)
		if err != nil {
			return apperr.ErrBackend("upload avatar", err)
		}
		if err := s.docs.Update(ctx, model.UsersCollection, principalID, store.Record{"avatar": url}); err != nil {
			return apperr.ErrBackend("update avatar", err)
		}
	}
	if err := s.docs.Update(ctx, model.UsersCollection, principalID, store.Record{"name": name, "bio": bio}); err != nil {
		return apperr.ErrBackend("update profile", err)
	}

	if cur := s.Current(); cur != nil && cur.ID == principalID {
		if p, err := s.loadProfile(ctx, principalID); err == nil {
			s.mu.Lock()
			s.current = p
			s.mu.Unlock()
			s.bus.Emit(bus.KindSessionChanged, Event{Kind: SignedIn, Principal: p})
		}
	}
	return nil
}

// hydrate loads the profile for cred and publishes the resulting state.
func (s *Service) hydrate(ctx context.Context, cred *auth.Credential) (*model.Principal, error) {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()

	prev := s.Current()
	s.transition(status.Authenticating, "")
	p, err := s.loadProfile(ctx, cred.UID)
	if err != nil || (prev != nil && prev.ID != p.ID) {
		defer s.clearedFrom(prev)
	}

	// The credential may have been dropped while the profile was loading.
	if cur := s.auth.Current(); cur == nil || cur.UID != cred.UID {
		return nil, apperr.ErrNotSignedIn
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Info("profile not found, ignore if right after sign-up", zap.String("uid", cred.UID))
		s.setCurrent(nil)
		s.transition(status.ProfileMissing, ProfileMissingAdvisory)
		s.bus.Emit(bus.KindSessionChanged, Event{Kind: SignedOut, Advisory: ProfileMissingAdvisory})
		return nil, ErrProfileMissing
	case err != nil:
		advisory := "could not load profile"
		s.setCurrent(nil)
		s.transition(status.SignedOut, advisory)
		s.bus.Emit(bus.KindSessionChanged, Event{Kind: SignedOut, Advisory: advisory})
		return nil, apperr.ErrBackend("load profile", err)
	}

	s.setCurrent(p)
	s.transition(status.SignedIn, "")
	s.bus.Emit(bus.KindSessionChanged, Event{Kind: SignedIn, Principal: p})
	cp := *p
	return &cp, nil
}

// clear drops the session-scoped principal. Watchers tied to it stop on
// the published bus.KindSessionCleared event.
func (s *Service) clear() {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()

	prev := s.Current()
	s.setCurrent(nil)
	if s.machine.Current() == status.SignedOut && prev == nil {
		return
	}
	s.transition(status.SignedOut, "")
	s.bus.Emit(bus.KindSessionChanged, Event{Kind: SignedOut})
	s.clearedFrom(prev)
}

func (s *Service) clearedFrom(prev *model.Principal) {
	if prev == nil {
		return
	}
	s.logger.Info("signed out", zap.String("uid", prev.ID))
	s.bus.Emit(bus.KindSessionCleared, Cleared{PrincipalID: prev.ID})
}

func (s *Service) loadProfile(ctx context.Context, uid string) (*model.Principal, error) {
	rec, err := s.docs.Get(ctx, model.UsersCollection, uid)
	if err != nil {
		return nil, err
	}
	var p model.Principal
	if err := store.Decode(rec, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = uid
	}
	return &p, nil
}

func (s *Service) setCurrent(p *model.Principal) {
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}

func (s *Service) transition(to status.State, advisory string) {
	if s.machine.Current() == to && to == status.Authenticating {
		return
	}
	if err := s.machine.TransitionWithAdvisory(to, advisory); err != nil {
		s.logger.Debug("status transition skipped", zap.Error(err))
	}
}

// authError converts a provider failure into an error whose advisory is the
// readable auth reason.
func authError(err error) error {
	var ae *auth.Error
	if errors.As(err, &ae) {
		if ae.Code == auth.CodeInternal {
			return apperr.ErrBackend("auth", err)
		}
		return apperr.ErrAuth(ae.Reason(), err)
	}
	return apperr.ErrBackend("auth", err)
}
