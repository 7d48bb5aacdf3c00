// Package mongostore implements the document store on MongoDB. Each document
// collection maps to a Mongo collection and document ids are stored in _id.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const defaultPoll = 2 * time.Second

// Store is a store.Store backed by a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	bus    *bus.Bus
	poll   time.Duration
	log    *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection with a ping and selects database.
func Open(ctx context.Context, uri, database string, b *bus.Bus, poll time.Duration, log *zap.Logger) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	log.Info("connected to mongo", zap.String("database", database))
	return &Store{client: client, db: client.Database(database), bus: b, poll: poll, log: log}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	rec, _, err := s.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, rec store.Record) error {
	doc, err := document(id, rec)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) Create(ctx context.Context, collection, id string, rec store.Record) error {
	doc, err := document(id, rec)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial store.Record) error {
	fields, err := canonicalRecord(partial)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

func (s *Store) AppendToArrayField(ctx context.Context, collection, id, field string, elems ...any) error {
	each := make(bson.A, 0, len(elems))
	for _, e := range elems {
		n, err := store.Normalize(e)
		if err != nil {
			return fmt.Errorf("normalize element: %w", err)
		}
		each = append(each, canonical(n))
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: field, Value: bson.D{{Key: "$each", Value: each}}}}}})
	if err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", collection, id, field, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	s.bus.Emit(bus.DocTopic(collection, id), nil)
	return nil
}

// Subscribe follows the document through a change stream when the server
// supports one, and through polling in every case.
func (s *Store) Subscribe(ctx context.Context, collection, id string) (<-chan store.Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	fetch := func(ctx context.Context) (store.Record, string, error) {
		return s.load(ctx, collection, id)
	}
	ch, stop := store.Follow(ctx, s.bus, collection, id, fetch, s.poll, s.log)
	go s.watch(ctx, collection, id)
	return ch, func() {
		stop()
		cancel()
	}
}

// watch turns change stream events into bus notifications.
func (s *Store) watch(ctx context.Context, collection, id string) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
	cs, err := s.db.Collection(collection).Watch(ctx, pipeline)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debug("change stream unavailable, polling only", zap.String("collection", collection), zap.Error(err))
		}
		return
	}
	defer func() { _ = cs.Close(context.Background()) }()

	for cs.Next(ctx) {
		s.bus.Emit(bus.DocTopic(collection, id), nil)
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn("change stream ended", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *Store) Query(ctx context.Context, collection string, f store.RangeFilter) ([]store.Record, error) {
	filter := bson.D{{Key: f.Field, Value: bson.D{
		{Key: "$gte", Value: f.GTE},
		{Key: "$lte", Value: f.LTE},
	}}}
	opts := options.Find().SetSort(bson.D{{Key: f.Field, Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []store.Record
	for cur.Next(ctx) {
		rec, _, err := fromRaw(cur.Current)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", collection, err)
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// load returns the document and its relaxed extended JSON form, used as the
// revision. A missing document yields a nil record.
func (s *Store) load(ctx context.Context, collection, id string) (store.Record, string, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	rec, rev, err := fromRaw(raw)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec, rev, nil
}

func fromRaw(raw bson.Raw) (store.Record, string, error) {
	js, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, "", err
	}
	var rec store.Record
	if err := json.Unmarshal(js, &rec); err != nil {
		return nil, "", err
	}
	delete(rec, "_id")
	return rec, string(js), nil
}

func document(id string, rec store.Record) (bson.D, error) {
	fields, err := canonicalRecord(rec)
	if err != nil {
		return nil, err
	}
	doc := make(bson.D, 0, len(fields)+1)
	doc = append(doc, bson.E{Key: "_id", Value: id})
	for _, e := range fields {
		if e.Key == "_id" {
			continue
		}
		doc = append(doc, e)
	}
	return doc, nil
}

func canonicalRecord(rec store.Record) (bson.D, error) {
	n, err := store.Normalize(map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("normalize record: %w", err)
	}
	d, _ := canonical(n).(bson.D)
	return d, nil
}

// canonical converts JSON-shaped values into BSON with sorted document keys,
// so equal records always encode to equal BSON and $addToSet can match them.
func canonical(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(keys))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: canonical(t[k])})
		}
		return d
	case []any:
		a := make(bson.A, 0, len(t))
		for _, e := range t {
			a = append(a, canonical(e))
		}
		return a
	default:
		return v
	}
}
