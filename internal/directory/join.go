package directory

import (
	"context"
	"sort"

	"github.com/matheus3301/chatbox/internal/model"
)

// ProfileLookup resolves a principal by id.
type ProfileLookup interface {
	Lookup(ctx context.Context, principalID string) (*model.Principal, error)
}

// LookupFunc adapts a function to ProfileLookup.
type LookupFunc func(ctx context.Context, principalID string) (*model.Principal, error)

func (f LookupFunc) Lookup(ctx context.Context, principalID string) (*model.Principal, error) {
	return f(ctx, principalID)
}

// Join pairs a summary with the counterparty's profile. A failed lookup
// leaves Counterparty nil; dangling summaries are still listed.
func Join(ctx context.Context, summary model.ConversationSummary, lookup ProfileLookup) model.Entry {
	entry := model.Entry{ConversationSummary: summary}
	if p, err := lookup.Lookup(ctx, summary.CounterpartyID); err == nil {
		entry.Counterparty = p
	}
	return entry
}

// JoinAll joins every summary and orders the result by last update, newest
// first. Profiles are looked up once per counterparty.
func JoinAll(ctx context.Context, summaries []model.ConversationSummary, lookup ProfileLookup) []model.Entry {
	cache := make(map[string]*model.Principal)
	cached := LookupFunc(func(ctx context.Context, id string) (*model.Principal, error) {
		if p, ok := cache[id]; ok {
			if p == nil {
				return nil, errLookupFailed
			}
			return p, nil
		}
		p, err := lookup.Lookup(ctx, id)
		cache[id] = p
		if err != nil {
			cache[id] = nil
		}
		return p, err
	})

	entries := make([]model.Entry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, Join(ctx, s, cached))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt > entries[j].UpdatedAt
	})
	return entries
}
