// Package pgstore implements the document store on PostgreSQL through gorm.
// Bodies live in a JSONB column; subscriptions poll the version column.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultPoll = 2 * time.Second

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// document is one row of the documents table.
type document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:128"`
	Body       string `gorm:"type:jsonb;not null"`
	Version    int64  `gorm:"not null;default:1"`
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli"`
}

func (document) TableName() string { return "documents" }

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	db   *gorm.DB
	bus  *bus.Bus
	poll time.Duration
	log  *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the documents table.
func Open(dsn string, b *bus.Bus, poll time.Duration, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	log.Info("connected to postgres")
	return &Store{db: db, bus: b, poll: poll, log: log}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	rec, _, err := s.load(s.db.WithContext(ctx), collection, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, rec store.Record) error {
	if rec == nil {
		rec = store.Record{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	row := document{Collection: collection, ID: id, Body: string(body), Version: 1}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"body":       row.Body,
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": time.Now().UnixMilli(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) Create(ctx context.Context, collection, id string, rec store.Record) error {
	if rec == nil {
		rec = store.Record{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	row := document{Collection: collection, ID: id, Body: string(body), Version: 1}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrAlreadyExists)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial store.Record) error {
	return s.modify(ctx, collection, id, func(rec store.Record) (store.Record, error) {
		return store.Merge(rec, partial)
	})
}

func (s *Store) AppendToArrayField(ctx context.Context, collection, id, field string, elems ...any) error {
	return s.modify(ctx, collection, id, func(rec store.Record) (store.Record, error) {
		arr, err := store.UnionArray(rec[field], elems)
		if err != nil {
			return nil, err
		}
		rec[field] = arr
		return rec, nil
	})
}

// modify applies fn to an existing row locked with SELECT ... FOR UPDATE.
func (s *Store) modify(ctx context.Context, collection, id string, fn func(store.Record) (store.Record, error)) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, _, err := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), collection, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		rec, err = fn(rec)
		if err != nil {
			return fmt.Errorf("modify %s/%s: %w", collection, id, err)
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
		}
		return tx.Model(&document{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{
				"body":       string(body),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UnixMilli(),
			}).Error
	})
	if err != nil {
		return err
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection, id string) (<-chan store.Snapshot, func()) {
	fetch := func(ctx context.Context) (store.Record, string, error) {
		rec, version, err := s.load(s.db.WithContext(ctx), collection, id)
		return rec, strconv.FormatInt(version, 10), err
	}
	return store.Follow(ctx, s.bus, collection, id, fetch, s.poll, s.log)
}

func (s *Store) Query(ctx context.Context, collection string, f store.RangeFilter) ([]store.Record, error) {
	if !fieldPattern.MatchString(f.Field) {
		return nil, fmt.Errorf("invalid query field %q", f.Field)
	}
	var rows []document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(`(body->>?) COLLATE "C" >= ? AND (body->>?) COLLATE "C" <= ?`, f.Field, f.GTE, f.Field, f.LTE).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	out := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		var rec store.Record
		if err := json.Unmarshal([]byte(row.Body), &rec); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, row.ID, err)
		}
		out = append(out, rec)
	}
	// Code point order, same as the other backends.
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i][f.Field].(string)
		b, _ := out[j][f.Field].(string)
		return a < b
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) load(db *gorm.DB, collection, id string) (store.Record, int64, error) {
	var row document
	err := db.Where("collection = ? AND id = ?", collection, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var rec store.Record
	if err := json.Unmarshal([]byte(row.Body), &rec); err != nil {
		return nil, 0, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec, row.Version, nil
}
