package model

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/matheus3301/chatbox/internal/api"
	"github.com/matheus3301/chatbox/internal/identity"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/tui/client"
)

// ViewModel caches state from the daemon's streams and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client    *client.Client
	Status    *api.StatusReply
	Principal *model.Principal
	Entries   []model.Entry
	Messages  []model.Message
	Active    model.Entry
	Flash     Flash

	chatsCancel    context.CancelFunc
	messagesCancel context.CancelFunc

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the session status and the signed-in principal.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = resp
	vm.Principal = resp.Principal
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SignIn authenticates with email and password.
func (vm *ViewModel) SignIn(ctx context.Context, email, password string) error {
	resp, err := vm.client.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	vm.setPrincipal(resp.Principal)
	return nil
}

// SignUp registers a new principal and signs it in.
func (vm *ViewModel) SignUp(ctx context.Context, username, email, password string) error {
	resp, err := vm.client.SignUp(ctx, username, email, password)
	if err != nil {
		return err
	}
	vm.setPrincipal(resp.Principal)
	return nil
}

// SignOut ends the session.
func (vm *ViewModel) SignOut(ctx context.Context) error {
	return vm.client.SignOut(ctx)
}

// UpdateProfile saves the principal's name, bio and optional avatar.
func (vm *ViewModel) UpdateProfile(ctx context.Context, name, bio, avatarPath string) error {
	resp, err := vm.client.UpdateProfile(ctx, api.ProfileRequest{Name: name, Bio: bio, AvatarPath: avatarPath})
	if err != nil {
		return err
	}
	vm.setPrincipal(resp.Principal)
	vm.Flash.Info("Profile saved")
	return nil
}

func (vm *ViewModel) setPrincipal(p *model.Principal) {
	vm.mu.Lock()
	vm.Principal = p
	vm.mu.Unlock()
	vm.signalRefresh()
}

// WatchSession follows sign-in and sign-out until ctx ends. onChange is
// called after the cached state is updated.
func (vm *ViewModel) WatchSession(ctx context.Context, onChange func(signedIn bool, advisory string)) error {
	stream, err := vm.client.WatchSession(ctx)
	if err != nil {
		return err
	}
	return drain(stream, func(evt *api.SessionEvent) {
		signedIn := evt.Kind == string(identity.SignedIn)
		if !signedIn {
			vm.clear()
		} else {
			vm.setPrincipal(evt.Principal)
		}
		onChange(signedIn, evt.Advisory)
	})
}

// clear drops everything cached for the previous principal.
func (vm *ViewModel) clear() {
	vm.mu.Lock()
	vm.Principal = nil
	vm.Entries = nil
	vm.Messages = nil
	vm.Active = model.Entry{}
	if vm.chatsCancel != nil {
		vm.chatsCancel()
		vm.chatsCancel = nil
	}
	if vm.messagesCancel != nil {
		vm.messagesCancel()
		vm.messagesCancel = nil
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// FollowChats starts streaming the chat list in the background. The stream
// ends on sign-out.
func (vm *ViewModel) FollowChats(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	vm.mu.Lock()
	if vm.chatsCancel != nil {
		vm.chatsCancel()
	}
	vm.chatsCancel = cancel
	vm.mu.Unlock()

	go func() {
		stream, err := vm.client.WatchChats(ctx)
		if err != nil {
			vm.fail("Chats", err)
			return
		}
		if err := drain(stream, func(resp *api.ChatsReply) {
			vm.mu.Lock()
			vm.Entries = resp.Entries
			vm.mu.Unlock()
			vm.signalRefresh()
		}); err != nil && ctx.Err() == nil {
			vm.fail("Chats", err)
		}
	}()
}

// Open makes entry the active conversation, marks it seen and starts
// streaming its messages.
func (vm *ViewModel) Open(ctx context.Context, entry model.Entry) {
	ctx, cancel := context.WithCancel(ctx)
	vm.mu.Lock()
	if vm.messagesCancel != nil {
		vm.messagesCancel()
	}
	vm.messagesCancel = cancel
	vm.Active = entry
	vm.Messages = nil
	vm.mu.Unlock()
	vm.signalRefresh()

	go func() {
		if err := vm.client.MarkSeen(ctx, entry.ConversationID); err != nil {
			vm.fail("Mark seen", err)
		}
		stream, err := vm.client.WatchMessages(ctx, entry.ConversationID)
		if err != nil {
			vm.fail("Messages", err)
			return
		}
		if err := drain(stream, func(resp *api.MessagesReply) {
			vm.mu.Lock()
			if vm.Active.ConversationID == entry.ConversationID {
				vm.Messages = resp.Messages
			}
			vm.mu.Unlock()
			vm.signalRefresh()
		}); err != nil && ctx.Err() == nil {
			vm.fail("Messages", err)
		}
	}()
}

// Close leaves the active conversation.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	if vm.messagesCancel != nil {
		vm.messagesCancel()
		vm.messagesCancel = nil
	}
	vm.Active = model.Entry{}
	vm.Messages = nil
	vm.mu.Unlock()
}

// Send posts text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	active, err := vm.requireActive()
	if err != nil {
		return err
	}
	return vm.client.SendText(ctx, active.ConversationID, text)
}

// SendImage uploads the file at path to the active conversation.
func (vm *ViewModel) SendImage(ctx context.Context, path string) error {
	active, err := vm.requireActive()
	if err != nil {
		return err
	}
	return vm.client.SendImage(ctx, active.ConversationID, path)
}

func (vm *ViewModel) requireActive() (model.Entry, error) {
	active := vm.GetActive()
	if active.ConversationID == "" {
		return active, errors.New("no conversation open")
	}
	return active, nil
}

// ToggleLike flips the like flag of msg in the active conversation.
func (vm *ViewModel) ToggleLike(ctx context.Context, msg model.Message) error {
	active := vm.GetActive()
	req := api.LikeRequest{ConversationID: active.ConversationID, MessageID: msg.ID}
	if msg.ID == "" {
		req.CreatedAt = msg.CreatedAt
	}
	resp, err := vm.client.ToggleLike(ctx, req)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Messages = resp.Messages
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SearchUsers returns the principals whose username starts with query.
func (vm *ViewModel) SearchUsers(ctx context.Context, query string) ([]model.Principal, error) {
	resp, err := vm.client.SearchUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// StartChat opens the conversation with p, creating it when missing.
func (vm *ViewModel) StartChat(ctx context.Context, p model.Principal) (model.Entry, error) {
	resp, err := vm.client.StartChat(ctx, p.ID)
	if err != nil {
		return model.Entry{}, err
	}
	entry := model.Entry{
		ConversationSummary: model.ConversationSummary{
			ConversationID: resp.ConversationID,
			CounterpartyID: p.ID,
			Seen:           true,
		},
		Counterparty: &p,
	}
	return entry, nil
}

func (vm *ViewModel) fail(what string, err error) {
	vm.Flash.Error(what + " failed: " + err.Error())
	vm.signalRefresh()
}

// GetPrincipal returns the signed-in principal, or nil.
func (vm *ViewModel) GetPrincipal() *model.Principal {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Principal
}

// GetEntries returns a snapshot of the chat list.
func (vm *ViewModel) GetEntries() []model.Entry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Entries
}

// GetMessages returns a snapshot of the active conversation's messages.
func (vm *ViewModel) GetMessages() []model.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetActive returns the active conversation, zero when none is open.
func (vm *ViewModel) GetActive() model.Entry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Active
}

// GetStatus returns a snapshot of the last fetched status.
func (vm *ViewModel) GetStatus() *api.StatusReply {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

func drain[T any](stream *client.Stream[T], fn func(*T)) error {
	for {
		v, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(v)
	}
}
