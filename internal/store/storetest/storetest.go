// Package storetest provides a migrated SQLite document store for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
)

// New opens a fresh document store in a temp dir and returns it with its bus.
func New(t testing.TB) (*store.Documents, *bus.Bus) {
	t.Helper()
	b := bus.New()
	docs, err := store.OpenDocuments(filepath.Join(t.TempDir(), "docs.db"), b, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	return docs, b
}
