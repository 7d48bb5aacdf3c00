package bus

import "time"

// Event kinds published by the daemon.
const (
	KindStatusChanged  = "session.status_changed"
	KindSessionChanged = "session.changed"
	KindSessionCleared = "session.cleared"
	KindAuthState      = "auth.state"
	KindRepaired       = "reconcile.repaired"
	KindDocPrefix      = "doc."
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// DocTopic returns the event kind published when a document changes.
func DocTopic(collection, id string) string {
	return KindDocPrefix + collection + "/" + id
}
