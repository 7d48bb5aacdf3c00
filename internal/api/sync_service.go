package api

import (
	"context"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/identity"
	intsync "github.com/matheus3301/chatbox/internal/sync"
	"google.golang.org/grpc"
)

// SyncService implements chatbox.v1.Sync: on-demand reconciliation and a
// stream of the repairs the background pass makes.
type SyncService struct {
	identity   *identity.Service
	reconciler *intsync.Reconciler
	bus        *bus.Bus
}

// NewSyncService creates a new sync service.
func NewSyncService(id *identity.Service, r *intsync.Reconciler, b *bus.Bus) *SyncService {
	return &SyncService{identity: id, reconciler: r, bus: b}
}

func (s *SyncService) Desc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: SyncServiceName,
		HandlerType: (*Registrar)(nil),
		Methods: []grpc.MethodDesc{
			unary(SyncServiceName, "Reconcile", s.Reconcile),
		},
		Streams: []grpc.StreamDesc{
			serverStream("WatchRepairs", s.WatchRepairs),
		},
	}
}

func (s *SyncService) Reconcile(ctx context.Context, _ *Empty) (*RepairsReply, error) {
	self, err := currentPrincipal(s.identity)
	if err != nil {
		return nil, err
	}
	repairs, err := s.reconciler.RunOnce(ctx, self.ID)
	if err != nil {
		return nil, apperr.ErrBackend("reconcile", err)
	}
	out := &RepairsReply{Repairs: []Repair{}}
	for _, r := range repairs {
		out.Repairs = append(out.Repairs, repairFrom(r))
	}
	return out, nil
}

func (s *SyncService) WatchRepairs(ctx context.Context, _ *Empty, send func(*Repair) error) error {
	ch, unsub := s.bus.Subscribe(bus.KindRepaired, 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			r, ok := evt.Payload.(intsync.Repair)
			if !ok {
				continue
			}
			out := repairFrom(r)
			if err := send(&out); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func repairFrom(r intsync.Repair) Repair {
	return Repair{ConversationID: r.ConversationID, OwnerID: r.OwnerID, CounterpartyID: r.CounterpartyID}
}
