package store

import (
	"context"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	"go.uber.org/zap"
)

// Fetch reads the current state of a document. A nil record means the
// document does not exist. rev changes whenever the stored state changes.
type Fetch func(ctx context.Context) (rec Record, rev string, err error)

// Follow runs a latest-state subscription for one document. It re-reads the
// document on every bus change event for it and, when poll > 0, on every
// tick, emitting only when the revision moved.
func Follow(ctx context.Context, b *bus.Bus, collection, id string, fetch Fetch, poll time.Duration, log *zap.Logger) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 1)
	topic := bus.DocTopic(collection, id)
	events, unsub := b.Subscribe(topic, 1)

	go func() {
		defer close(out)
		defer unsub()

		var tick <-chan time.Time
		if poll > 0 {
			ticker := time.NewTicker(poll)
			defer ticker.Stop()
			tick = ticker.C
		}

		lastRev := "\x00"
		failing := false
		refresh := func() {
			rec, rev, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !failing {
					log.Warn("subscription read failed", zap.String("doc", topic), zap.Error(err))
					bus.Offer(out, Snapshot{ID: id, Err: err})
				}
				failing = true
				return
			}
			if rev == lastRev && !failing {
				return
			}
			failing = false
			lastRev = rev
			bus.Offer(out, Snapshot{ID: id, Record: rec, Exists: rec != nil})
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				// Prefix match also delivers ids sharing this one as a prefix.
				if evt.Kind != topic {
					continue
				}
				refresh()
			case <-tick:
				refresh()
			}
		}
	}()

	return out, cancel
}
