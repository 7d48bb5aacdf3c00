package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestCanonicalSortsKeysRecursively(t *testing.T) {
	in := map[string]any{
		"rId":       "u2",
		"messageId": "c1",
		"nested":    map[string]any{"b": 1.0, "a": []any{map[string]any{"z": true, "y": "x"}}},
	}
	got := canonical(in).(bson.D)

	require.Len(t, got, 3)
	assert.Equal(t, "messageId", got[0].Key)
	assert.Equal(t, "nested", got[1].Key)
	assert.Equal(t, "rId", got[2].Key)

	nested := got[1].Value.(bson.D)
	assert.Equal(t, "a", nested[0].Key)
	inner := nested[0].Value.(bson.A)[0].(bson.D)
	assert.Equal(t, "y", inner[0].Key)
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a, err := bson.Marshal(canonical(map[string]any{"x": 1.0, "y": "s"}))
	require.NoError(t, err)
	b, err := bson.Marshal(canonical(map[string]any{"y": "s", "x": 1.0}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFromRawStripsID(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "u1"},
		{Key: "username", Value: "alice"},
		{Key: "lastSeen", Value: int64(1700000000123)},
	})
	require.NoError(t, err)

	rec, rev, err := fromRaw(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, rev)
	assert.NotContains(t, rec, "_id")
	assert.Equal(t, "alice", rec["username"])
	assert.InDelta(t, 1700000000123, rec["lastSeen"], 0)
}

func TestDocumentPutsIDFirst(t *testing.T) {
	doc, err := document("u1", store.Record{"_id": "other", "b": "2", "a": "1"})
	require.NoError(t, err)
	require.Len(t, doc, 3)
	assert.Equal(t, bson.E{Key: "_id", Value: "u1"}, doc[0])
	assert.Equal(t, "a", doc[1].Key)
}

// The tests below need a running server: CHATBOX_TEST_MONGO_URI=mongodb://localhost:27017
func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("CHATBOX_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CHATBOX_TEST_MONGO_URI not set")
	}
	s, err := Open(context.Background(), uri, "chatbox_test_"+uuid.NewString()[:8], bus.New(), 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestMongoRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "users", "u1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.Set(ctx, "users", "u1", store.Record{"username": "alice", "bio": "hi"}))
	require.NoError(t, s.Update(ctx, "users", "u1", store.Record{"bio": "updated"}))

	rec, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec["username"])
	assert.Equal(t, "updated", rec["bio"])

	err = s.Update(ctx, "users", "missing", store.Record{"bio": "x"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestMongoCreateDoesNotReplace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "credentials", "a@example.com", store.Record{"uid": "first"}))
	err := s.Create(ctx, "credentials", "a@example.com", store.Record{"uid": "second"})
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))

	rec, err := s.Get(ctx, "credentials", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "first", rec["uid"])
}

func TestMongoAppendIsSetUnion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "chats", "u1", store.Record{"chatsData": []any{}}))
	entry := map[string]any{"messageId": "c1", "rId": "u2", "updatedAt": 1700000000000}
	require.NoError(t, s.AppendToArrayField(ctx, "chats", "u1", "chatsData", entry))
	require.NoError(t, s.AppendToArrayField(ctx, "chats", "u1", "chatsData", entry))

	rec, err := s.Get(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Len(t, rec["chatsData"], 1)
}

func TestMongoQueryPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users", "u1", store.Record{"username": "alice"}))
	require.NoError(t, s.Set(ctx, "users", "u2", store.Record{"username": "bob"}))

	recs, err := s.Query(ctx, "users", store.RangeFilter{Field: "username", GTE: "al", LTE: "al\uf8ff"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "alice", recs[0]["username"])
}

func TestMongoSubscribe(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ch, cancel := s.Subscribe(ctx, "users", "u1")
	defer cancel()

	snap := <-ch
	assert.False(t, snap.Exists)

	require.NoError(t, s.Set(ctx, "users", "u1", store.Record{"name": "A"}))
	select {
	case snap = <-ch:
		assert.True(t, snap.Exists)
		assert.Equal(t, "A", snap.Record["name"])
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
}
