package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Record is the JSON-shaped body of a document. Values are the ones produced
// by encoding/json: string, float64, bool, nil, []any and map[string]any.
type Record map[string]any

// Snapshot is one emission of a document subscription.
type Snapshot struct {
	ID     string
	Record Record
	Exists bool
	Err    error
}

// RangeFilter selects documents whose string field lies in [GTE, LTE].
type RangeFilter struct {
	Field string
	GTE   string
	LTE   string
	Limit int
}

// Equal returns a filter matching field == value.
func Equal(field, value string) RangeFilter {
	return RangeFilter{Field: field, GTE: value, LTE: value}
}

// Store is a document database with per-document live subscriptions.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Set(ctx context.Context, collection, id string, rec Record) error
	// Create writes a new document and fails with ErrAlreadyExists instead
	// of replacing an existing one.
	Create(ctx context.Context, collection, id string, rec Record) error
	// Update merges the top-level fields of partial into an existing document.
	Update(ctx context.Context, collection, id string, partial Record) error
	// AppendToArrayField adds each element not already present (by deep
	// equality) to the array stored under field.
	AppendToArrayField(ctx context.Context, collection, id, field string, elems ...any) error
	// Subscribe emits the current snapshot, then the latest snapshot after
	// each change. Intermediate states may be skipped. The channel is closed
	// when ctx ends or the returned cancel func is called.
	Subscribe(ctx context.Context, collection, id string) (<-chan Snapshot, func())
	Query(ctx context.Context, collection string, f RangeFilter) ([]Record, error)
	Close() error
}

// Encode converts a struct into a Record through its JSON form.
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// Decode fills v from rec through its JSON form.
func Decode(rec Record, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Normalize returns v as encoding/json would decode it into an any.
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnionArray appends to existing every element of elems not already present.
// Elements are compared after normalization.
func UnionArray(existing any, elems []any) ([]any, error) {
	arr, _ := existing.([]any)
	out := make([]any, 0, len(arr)+len(elems))
	out = append(out, arr...)
	for _, e := range elems {
		n, err := Normalize(e)
		if err != nil {
			return nil, fmt.Errorf("normalize element: %w", err)
		}
		if !containsDeep(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func containsDeep(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// Merge copies the top-level fields of partial over base.
func Merge(base, partial Record) (Record, error) {
	out := make(Record, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("normalize field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
