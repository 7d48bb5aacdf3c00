package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	"go.uber.org/zap"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Documents is the SQLite-backed Store. Writes publish a change event on the
// bus; subscriptions also poll the version column so that several daemons
// sharing one database file observe each other's writes.
type Documents struct {
	db   *DB
	bus  *bus.Bus
	poll time.Duration
	log  *zap.Logger
}

var _ Store = (*Documents)(nil)

// NewDocuments wraps an opened and migrated DB.
func NewDocuments(db *DB, b *bus.Bus, poll time.Duration, log *zap.Logger) *Documents {
	return &Documents{db: db, bus: b, poll: poll, log: log}
}

func (d *Documents) Get(ctx context.Context, collection, id string) (Record, error) {
	rec, _, err := d.load(ctx, d.db.DB, collection, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (d *Documents) Set(ctx context.Context, collection, id string, rec Record) error {
	if rec == nil {
		rec = Record{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			version = documents.version + 1,
			updated_at = excluded.updated_at`,
		collection, id, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	d.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (d *Documents) Create(ctx context.Context, collection, id string, rec Record) error {
	if rec == nil {
		rec = Record{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(collection, id) DO NOTHING`,
		collection, id, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	d.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (d *Documents) Update(ctx context.Context, collection, id string, partial Record) error {
	return d.modify(ctx, collection, id, func(rec Record) (Record, error) {
		return Merge(rec, partial)
	})
}

func (d *Documents) AppendToArrayField(ctx context.Context, collection, id, field string, elems ...any) error {
	return d.modify(ctx, collection, id, func(rec Record) (Record, error) {
		arr, err := UnionArray(rec[field], elems)
		if err != nil {
			return nil, err
		}
		rec[field] = arr
		return rec, nil
	})
}

// modify applies fn to an existing document inside a transaction.
func (d *Documents) modify(ctx context.Context, collection, id string, fn func(Record) (Record, error)) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, _, err := d.load(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	rec, err = fn(rec)
	if err != nil {
		return fmt.Errorf("modify %s/%s: %w", collection, id, err)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET body = ?, version = version + 1, updated_at = ?
		WHERE collection = ? AND id = ?`,
		string(body), time.Now().UnixMilli(), collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", collection, id, err)
	}
	d.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (d *Documents) Subscribe(ctx context.Context, collection, id string) (<-chan Snapshot, func()) {
	fetch := func(ctx context.Context) (Record, string, error) {
		rec, version, err := d.load(ctx, d.db.DB, collection, id)
		return rec, strconv.FormatInt(version, 10), err
	}
	return Follow(ctx, d.bus, collection, id, fetch, d.poll, d.log)
}

func (d *Documents) Query(ctx context.Context, collection string, f RangeFilter) ([]Record, error) {
	if !fieldPattern.MatchString(f.Field) {
		return nil, fmt.Errorf("invalid query field %q", f.Field)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	path := "$." + f.Field
	rows, err := d.db.QueryContext(ctx, `
		SELECT body FROM documents
		WHERE collection = ?
			AND json_extract(body, ?) >= ?
			AND json_extract(body, ?) <= ?
		ORDER BY json_extract(body, ?), id
		LIMIT ?`,
		collection, path, f.GTE, path, f.LTE, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", collection, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (d *Documents) Close() error {
	return d.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// load returns the document and its version; a missing document yields a nil
// record and version 0.
func (d *Documents) load(ctx context.Context, q querier, collection, id string) (Record, int64, error) {
	var body string
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, 0, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec, version, nil
}
