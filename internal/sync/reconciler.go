// Package sync repairs one-sided conversation links left behind by
// interrupted directory writes.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/model"
	"go.uber.org/zap"
)

// Directory is the part of the directory service the reconciler needs.
type Directory interface {
	Load(ctx context.Context, principalID string) (*model.Directory, error)
	Lookup(ctx context.Context, principalID string) (*model.Principal, error)
	Link(ctx context.Context, ownerID string, summary model.ConversationSummary) error
}

// Repair describes one mirrored summary written by the reconciler.
type Repair struct {
	ConversationID string
	OwnerID        string
	CounterpartyID string
}

// Reconciler periodically scans the signed-in principal's directory and
// restores missing mirrored summaries in counterparty directories. It only
// ever adds entries.
type Reconciler struct {
	dir      Directory
	current  func() *model.Principal
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// NewReconciler creates a reconciler. A non-positive interval disables the
// background loop; RunOnce still works.
func NewReconciler(dir Directory, current func() *model.Principal, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		dir:      dir,
		current:  current,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the periodic scan.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the scan loop.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p := r.current()
			if p == nil {
				continue
			}
			if _, err := r.RunOnce(ctx, p.ID); err != nil {
				r.logger.Warn("reconcile pass failed", zap.String("principal", p.ID), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce checks every summary in principalID's directory and appends the
// mirror to the counterparty's directory where it is missing. Counterparties
// without a profile are left alone. It returns the repairs made.
func (r *Reconciler) RunOnce(ctx context.Context, principalID string) ([]Repair, error) {
	own, err := r.dir.Load(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	var repairs []Repair
	for _, sum := range own.Summaries {
		if sum.CounterpartyID == "" || sum.CounterpartyID == principalID {
			continue
		}
		theirs, err := r.dir.Load(ctx, sum.CounterpartyID)
		if err != nil {
			r.logger.Warn("load counterparty directory", zap.String("counterparty", sum.CounterpartyID), zap.Error(err))
			continue
		}
		if theirs.Find(sum.ConversationID) >= 0 {
			continue
		}
		if _, err := r.dir.Lookup(ctx, sum.CounterpartyID); err != nil {
			r.logger.Debug("counterparty has no profile", zap.String("counterparty", sum.CounterpartyID), zap.Error(err))
			continue
		}

		mirror := model.ConversationSummary{
			ConversationID: sum.ConversationID,
			CounterpartyID: principalID,
			LastMessage:    sum.LastMessage,
			UpdatedAt:      sum.UpdatedAt,
			Seen:           true,
		}
		if err := r.dir.Link(ctx, sum.CounterpartyID, mirror); err != nil {
			return repairs, fmt.Errorf("restore mirror for %s: %w", sum.ConversationID, err)
		}

		repair := Repair{ConversationID: sum.ConversationID, OwnerID: sum.CounterpartyID, CounterpartyID: principalID}
		repairs = append(repairs, repair)
		r.bus.Emit(bus.KindRepaired, repair)
		r.logger.Info("mirrored summary restored",
			zap.String("conversation", sum.ConversationID),
			zap.String("owner", sum.CounterpartyID))
	}
	return repairs, nil
}
