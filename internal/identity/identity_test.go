package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/auth"
	"github.com/matheus3301/chatbox/internal/blob"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/status"
	"github.com/matheus3301/chatbox/internal/store"
	"github.com/matheus3301/chatbox/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc     *Service
	auth    *auth.Local
	docs    *store.Documents
	bus     *bus.Bus
	machine *status.Machine
	blobDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, b := storetest.New(t)
	provider := auth.NewLocal(docs, b, auth.LocalConfig{
		Secret:   []byte("test"),
		HashCost: bcrypt.MinCost,
	}, zap.NewNop())
	blobDir := t.TempDir()
	blobs, err := blob.NewDir(blobDir)
	require.NoError(t, err)
	m := status.NewMachine(b)
	return &fixture{
		svc:     New(provider, docs, blobs, b, m, zap.NewNop()),
		auth:    provider,
		docs:    docs,
		bus:     b,
		machine: m,
		blobDir: blobDir,
	}
}

func TestSignUpCreatesProfileAndDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	p, err := f.svc.SignUp(ctx, "  Alice ", "Alice@Example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "", p.Name)
	assert.Equal(t, model.DefaultBio, p.Bio)
	assert.Equal(t, model.DefaultAvatar, p.Avatar)
	assert.GreaterOrEqual(t, p.LastSeen, before)
	assert.Equal(t, p.ID, f.svc.Current().ID)
	assert.Equal(t, status.SignedIn, f.machine.Current())

	rec, err := f.docs.Get(ctx, model.DirectoriesCollection, p.ID)
	require.NoError(t, err)
	var dir model.Directory
	require.NoError(t, store.Decode(rec, &dir))
	assert.NotNil(t, dir.Summaries)
	assert.Empty(t, dir.Summaries)
}

func TestSignUpValidationNeverReachesBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name                      string
		username, email, password string
		want                      error
	}{
		{"blank username", "   ", "a@b.co", "secret1", apperr.ErrEmptyUsername},
		{"bad email", "alice", "alice-at-example", "secret1", apperr.ErrInvalidEmail},
		{"short password", "alice", "a@b.co", "12345", apperr.ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignUp(ctx, tt.username, tt.email, tt.password)
			assert.Equal(t, tt.want, err)
			assert.True(t, apperr.IsInvalidArg(err))
		})
	}

	_, err := f.docs.Get(ctx, auth.CredentialsCollection, "a@b.co")
	assert.True(t, errors.Is(err, store.ErrNotFound), "no credential must be created")
}

func TestSignUpUsernameTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.svc.SignUp(ctx, "ALICE", "other@example.com", "secret1")
	assert.Equal(t, apperr.ErrUsernameTaken, err)
}

func TestSignUpEmailInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.svc.SignUp(ctx, "alice2", "alice@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "email already in use", apperr.Advisory(err))
}

func TestSignInUpdatesLastSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.docs.Update(ctx, model.UsersCollection, p.ID, store.Record{"lastSeen": 1}))
	require.NoError(t, f.svc.SignOut(ctx))

	signedIn, err := f.svc.SignIn(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, signedIn.ID)
	assert.Greater(t, signedIn.LastSeen, int64(1))
}

func TestSignInWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx))

	_, err = f.svc.SignIn(ctx, "alice@example.com", "wrong-one")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
	assert.Equal(t, "wrong password", apperr.Advisory(err))
	assert.Nil(t, f.svc.Current())
}

func TestSignInWithoutProfileIsAdvisory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A credential whose profile write never happened.
	_, err := f.auth.CreateAccount(ctx, "ghost@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.auth.SignOut(ctx))

	_, err = f.svc.SignIn(ctx, "ghost@example.com", "secret1")
	assert.True(t, errors.Is(err, ErrProfileMissing))
	assert.Nil(t, f.svc.Current())

	state, advisory := f.machine.Snapshot()
	assert.Equal(t, status.ProfileMissing, state)
	assert.Equal(t, ProfileMissingAdvisory, advisory)
}

func TestSignOutClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cleared, unsub := f.bus.Subscribe(bus.KindSessionCleared, 4)
	defer unsub()

	p, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx))

	assert.Nil(t, f.svc.Current())
	assert.Equal(t, status.SignedOut, f.machine.Current())
	select {
	case evt := <-cleared:
		assert.Equal(t, Cleared{PrincipalID: p.ID}, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session.cleared")
	}
}

func TestObserveFollowsAuthState(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.svc.Start(ctx)
	defer f.svc.Stop()

	events, stop := f.svc.Observe(ctx)
	defer stop()

	waitFor := func(kind EventKind) Event {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case e := <-events:
				if e.Kind == kind {
					return e
				}
			case <-deadline:
				t.Fatalf("timeout waiting for %s", kind)
			}
		}
	}

	waitFor(SignedOut)

	_, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	e := waitFor(SignedIn)
	assert.Equal(t, "alice", e.Principal.Username)

	require.NoError(t, f.svc.SignOut(ctx))
	waitFor(SignedOut)
}

func TestStartRestoresPersistedSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signed in before the service starts, as after a daemon restart.
	p, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	f.svc.setCurrent(nil)

	f.svc.Start(ctx)
	defer f.svc.Stop()

	require.Eventually(t, func() bool {
		cur := f.svc.Current()
		return cur != nil && cur.ID == p.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, apperr.ErrEmptyName, f.svc.UpdateProfile(ctx, p.ID, "  ", "bio", ""))

	avatar := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(avatar, []byte("png"), 0600))
	require.NoError(t, f.svc.UpdateProfile(ctx, p.ID, "Alice A", "", avatar))

	rec, err := f.docs.Get(ctx, model.UsersCollection, p.ID)
	require.NoError(t, err)
	var got model.Principal
	require.NoError(t, store.Decode(rec, &got))
	assert.Equal(t, "Alice A", got.Name)
	assert.Equal(t, "", got.Bio)
	assert.Contains(t, got.Avatar, "/images/me.png")

	_, err = os.Stat(filepath.Join(f.blobDir, "images", "me.png"))
	assert.NoError(t, err)
	assert.Equal(t, "Alice A", f.svc.Current().Name)
}

func TestUpdateProfileMissingAvatarFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SignUp(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	err = f.svc.UpdateProfile(ctx, p.ID, "Alice", "bio", filepath.Join(t.TempDir(), "nope.png"))
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))

	rec, err := f.docs.Get(ctx, model.UsersCollection, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "", rec["name"], "name must not be written when the upload fails")
}
