package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatbox/internal/bus"
)

// State is the sign-in state of a session.
type State string

const (
	Booting        State = "BOOTING"
	SignedOut      State = "SIGNED_OUT"
	Authenticating State = "AUTHENTICATING"
	SignedIn       State = "SIGNED_IN"
	ProfileMissing State = "PROFILE_MISSING"
	Error          State = "ERROR"
)

// validTransitions defines allowed state transitions. Every state may also
// move to Error.
var validTransitions = map[State][]State{
	Booting:        {SignedOut, Authenticating},
	SignedOut:      {Authenticating},
	Authenticating: {SignedIn, ProfileMissing, SignedOut},
	ProfileMissing: {SignedIn, SignedOut, Authenticating},
	SignedIn:       {SignedOut, Authenticating},
	Error:          {Booting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	advisory string
	bus      *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state and the advisory attached to it.
func (m *Machine) Snapshot() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.advisory
}

// Transition moves to a new state and clears the advisory.
func (m *Machine) Transition(to State) error {
	return m.TransitionWithAdvisory(to, "")
}

// TransitionWithAdvisory moves to a new state carrying a short user-facing
// note, e.g. why the profile is missing.
func (m *Machine) TransitionWithAdvisory(to State, advisory string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to != Error && !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.advisory = advisory
	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to, Advisory: advisory})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From     State
	To       State
	Advisory string
}
