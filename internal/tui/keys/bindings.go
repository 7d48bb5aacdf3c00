package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	return a.matches(ev.Key(), ev.Rune())
}

func (a *Action) matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings organized by scope, in registration order.
type Registry struct {
	Global []*Action
	Views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		Views: make(map[string][]*Action),
	}
}

// AddGlobal registers a global keybinding. A binding with the same name
// is replaced.
func (r *Registry) AddGlobal(name string, action *Action) {
	action.Name = name
	r.Global = upsert(r.Global, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	action.Name = name
	r.Views[view] = upsert(r.Views[view], action)
}

func upsert(list []*Action, action *Action) []*Action {
	for i, a := range list {
		if a.Name == action.Name {
			list[i] = action
			return list
		}
	}
	return append(list, action)
}

// Hints returns visible keybinding descriptions for a given view, view
// bindings first.
func (r *Registry) Hints(view string) []string {
	var hints []string
	for _, a := range r.Views[view] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.Global {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent dispatches a key event to matching action in the given view.
// Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.dispatch(view, ev.Key(), ev.Rune())
}

func (r *Registry) dispatch(view string, key tcell.Key, ch rune) bool {
	// View-specific bindings shadow global ones.
	for _, a := range r.Views[view] {
		if a.matches(key, ch) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.Global {
		if a.matches(key, ch) {
			a.Handler()
			return true
		}
	}
	return false
}
