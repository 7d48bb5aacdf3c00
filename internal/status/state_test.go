package status

import (
	"testing"

	"github.com/matheus3301/chatbox/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, SignedOut},
		{Booting, Authenticating},
		{Booting, Error},
		{SignedOut, Authenticating},
		{Authenticating, SignedIn},
		{Authenticating, ProfileMissing},
		{Authenticating, SignedOut},
		{ProfileMissing, Authenticating},
		{ProfileMissing, SignedOut},
		{SignedIn, SignedOut},
		{SignedIn, Authenticating},
		{SignedIn, Error},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, SignedIn},
		{SignedOut, SignedIn},
		{SignedOut, ProfileMissing},
		{Error, SignedIn},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Authenticating)
	<-ch

	if err := m.TransitionWithAdvisory(ProfileMissing, "profile not found"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Authenticating || change.To != ProfileMissing {
		t.Errorf("change = %v -> %v, want AUTHENTICATING -> PROFILE_MISSING", change.From, change.To)
	}
	if change.Advisory != "profile not found" {
		t.Errorf("advisory = %q", change.Advisory)
	}
}

func TestAdvisoryClearedOnNextTransition(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Authenticating)
	_ = m.TransitionWithAdvisory(ProfileMissing, "profile not found")

	if _, adv := m.Snapshot(); adv != "profile not found" {
		t.Errorf("advisory = %q", adv)
	}
	_ = m.Transition(Authenticating)
	if _, adv := m.Snapshot(); adv != "" {
		t.Errorf("advisory should be cleared, got %q", adv)
	}
}

// TestSignUpLifecycle covers sign-up racing the profile write:
// BOOTING → SIGNED_OUT → AUTHENTICATING → PROFILE_MISSING → AUTHENTICATING → SIGNED_IN
func TestSignUpLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{SignedOut, Authenticating, ProfileMissing, Authenticating, SignedIn}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// TestRestoredSessionLifecycle covers a daemon restart with a persisted token:
// BOOTING → AUTHENTICATING → SIGNED_IN → SIGNED_OUT
func TestRestoredSessionLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Authenticating, SignedIn, SignedOut}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:        {},
		SignedOut:      {SignedOut},
		Authenticating: {Authenticating},
		SignedIn:       {Authenticating, SignedIn},
		ProfileMissing: {Authenticating, ProfileMissing},
		Error:          {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
