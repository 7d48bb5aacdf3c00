package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps a SQLite database connection holding the documents table.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Transactions take the write lock up front so concurrent read-modify-writes
// wait on busy_timeout instead of failing on lock upgrade.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// OpenDocuments opens (creating if needed) the SQLite file at path, brings
// its schema up to date and returns a document store over it.
func OpenDocuments(path string, b *bus.Bus, poll time.Duration, log *zap.Logger) (*Documents, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("store initialized",
		zap.String("backend", "sqlite"),
		zap.String("path", path),
		zap.Uint("schema_version", result.Version),
		zap.Bool("migrated", result.Changed),
	)
	return NewDocuments(db, b, poll, log), nil
}
