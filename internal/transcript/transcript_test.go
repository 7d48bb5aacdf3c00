package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/blob"
	"github.com/matheus3301/chatbox/internal/directory"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/store"
	"github.com/matheus3301/chatbox/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *Service
	dir    *directory.Service
	docs   *store.Documents
	active *model.ActiveConversation
}

// newFixture signs up nothing; it seeds principals a and b with a started
// conversation between them.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, _ := storetest.New(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		rec, err := store.Encode(model.Principal{ID: id, Username: id})
		require.NoError(t, err)
		require.NoError(t, docs.Set(ctx, model.UsersCollection, id, rec))
	}
	dir := directory.New(docs, zap.NewNop())
	id, _, err := dir.StartConversation(ctx, "a", "b")
	require.NoError(t, err)

	blobs, err := blob.NewDir(t.TempDir())
	require.NoError(t, err)

	svc := New(docs, blobs, dir, zap.NewNop())
	var clock int64 = 1000
	svc.now = func() time.Time {
		clock++
		return time.UnixMilli(clock)
	}
	return &fixture{
		svc:    svc,
		dir:    dir,
		docs:   docs,
		active: &model.ActiveConversation{ID: id, CounterpartyID: "b"},
	}
}

func (f *fixture) summary(t *testing.T, owner string) model.ConversationSummary {
	t.Helper()
	d, err := f.dir.Load(context.Background(), owner)
	require.NoError(t, err)
	i := d.Find(f.active.ID)
	require.GreaterOrEqual(t, i, 0)
	return d.Summaries[i]
}

func TestSendTextAppendsAndTouchesDirectories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text := "this message is definitely longer than thirty characters"
	require.NoError(t, f.svc.SendText(ctx, f.active, "a", text))

	msgs, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].SenderID)
	assert.Equal(t, text, msgs[0].Text)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].Liked)

	theirs := f.summary(t, "b")
	assert.False(t, theirs.Seen)
	assert.Equal(t, text[:30], theirs.LastMessage)

	mine := f.summary(t, "a")
	assert.True(t, mine.Seen, "sender's seen flag is unaffected")
	assert.Equal(t, text[:30], mine.LastMessage)
}

func TestSendTextNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendText(ctx, f.active, "a", ""))
	require.NoError(t, f.svc.SendText(ctx, nil, "a", "hi"))
	require.NoError(t, f.svc.SendText(ctx, &model.ActiveConversation{}, "a", "hi"))

	msgs, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, f.summary(t, "b").Seen)
}

func TestSendTextToMissingConversationFails(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SendText(context.Background(), &model.ActiveConversation{ID: "gone", CounterpartyID: "b"}, "a", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNoConversation))
}

func TestSendTextResolvesRecipientFromDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendText(ctx, &model.ActiveConversation{ID: f.active.ID}, "a", "hello"))
	assert.Equal(t, "hello", f.summary(t, "b").LastMessage)
	assert.False(t, f.summary(t, "b").Seen)

	// A wrong counterparty from the caller does not redirect the update.
	require.NoError(t, f.svc.SendText(ctx, &model.ActiveConversation{ID: f.active.ID, CounterpartyID: "mallory"}, "a", "again"))
	assert.Equal(t, "again", f.summary(t, "b").LastMessage)
	d, err := f.dir.Load(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, d.Summaries)
}

func TestSendRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SendText(ctx, f.active, "mallory", "hello")
	assert.True(t, errors.Is(err, apperr.ErrNoConversation))

	img := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0600))
	err = f.svc.SendImage(ctx, f.active, "mallory", img)
	assert.True(t, errors.Is(err, apperr.ErrNoConversation))

	msgs, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, f.summary(t, "a").Seen)
	assert.True(t, f.summary(t, "b").Seen)
}

func TestSendImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	img := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0600))
	require.NoError(t, f.svc.SendImage(ctx, f.active, "b", img))

	msgs, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsImage())
	assert.Empty(t, msgs[0].Text)
	assert.True(t, strings.HasSuffix(msgs[0].Image, "/images/cat.png"))

	assert.Equal(t, model.ImagePreview, f.summary(t, "a").LastMessage)
	assert.False(t, f.summary(t, "a").Seen)
	assert.True(t, f.summary(t, "b").Seen)
}

func TestSendImageUploadFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SendImage(ctx, f.active, "a", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)

	msgs, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendText(ctx, f.active, "a", "one"))
	require.NoError(t, f.svc.SendText(ctx, f.active, "a", "two"))
	local, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	require.Len(t, local, 2)

	// The sender cannot like their own message.
	same, err := f.svc.ToggleLike(ctx, f.active.ID, local, local[0], "a")
	require.NoError(t, err)
	assert.Equal(t, local, same)
	stored, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.Equal(t, local, stored)

	liked, err := f.svc.ToggleLike(ctx, f.active.ID, local, local[1], "b")
	require.NoError(t, err)
	assert.False(t, liked[0].Liked)
	assert.True(t, liked[1].Liked)
	stored, err = f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.Equal(t, liked, stored)

	restored, err := f.svc.ToggleLike(ctx, f.active.ID, liked, liked[1], "b")
	require.NoError(t, err)
	assert.Equal(t, local, restored)
}

func TestToggleLikeSameTimestampFlipsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, f.svc.SendText(ctx, f.active, "a", "one"))
	require.NoError(t, f.svc.SendText(ctx, f.active, "a", "two"))
	local, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	require.Len(t, local, 2)
	require.Equal(t, local[0].CreatedAt, local[1].CreatedAt)

	liked, err := f.svc.ToggleLike(ctx, f.active.ID, local, local[1], "b")
	require.NoError(t, err)
	assert.False(t, liked[0].Liked)
	assert.True(t, liked[1].Liked)
}

func TestToggleLikeLegacyMessageByTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy := []model.Message{
		{SenderID: "a", Text: "old", CreatedAt: 10},
		{SenderID: "a", Text: "older", CreatedAt: 20},
	}
	require.NoError(t, f.docs.Update(ctx, model.ConversationsCollection, f.active.ID, store.Record{"messages": legacy}))

	liked, err := f.svc.ToggleLike(ctx, f.active.ID, legacy, model.Message{SenderID: "a", CreatedAt: 20}, "b")
	require.NoError(t, err)
	assert.False(t, liked[0].Liked)
	assert.True(t, liked[1].Liked)
}

func TestToggleLikeUnknownTargetIsNoOp(t *testing.T) {
	f := newFixture(t)
	local := []model.Message{{ID: "m1", SenderID: "a", CreatedAt: 1}}

	got, err := f.svc.ToggleLike(context.Background(), f.active.ID, local, model.Message{ID: "zzz", SenderID: "a"}, "b")
	require.NoError(t, err)
	assert.Equal(t, local, got)
}

func TestToggleLikeRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendText(ctx, f.active, "a", "one"))
	local, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)

	got, err := f.svc.ToggleLike(ctx, f.active.ID, local, local[0], "mallory")
	assert.True(t, errors.Is(err, apperr.ErrNoConversation))
	assert.Equal(t, local, got)

	stored, err := f.svc.Messages(ctx, f.active.ID)
	require.NoError(t, err)
	assert.False(t, stored[0].Liked)
}

func TestObserveEmitsFullList(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, stop := f.svc.Observe(ctx, f.active.ID)
	defer stop()

	select {
	case msgs := <-ch:
		assert.Empty(t, msgs)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial list")
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.SendText(ctx, f.active, "a", fmt.Sprintf("m%d", i)))
	}

	require.Eventually(t, func() bool {
		select {
		case msgs := <-ch:
			return len(msgs) == 3 && msgs[2].Text == "m2"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
