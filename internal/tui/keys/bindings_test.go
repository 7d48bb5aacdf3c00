package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true, Handler: func() { hit = "global" }})
	r.AddView("chat", "quote", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quote", Handler: func() { hit = "view" }})

	assert.True(t, r.dispatch("chat", tcell.KeyRune, 'q'))
	assert.Equal(t, "view", hit)

	assert.True(t, r.dispatch("chats", tcell.KeyRune, 'q'))
	assert.Equal(t, "global", hit)

	assert.False(t, r.dispatch("chats", tcell.KeyRune, 'z'))
}

func TestHintsKeepOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true, Handler: func() {}})
	r.AddView("chat", "write", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "i:write", Visible: true, Handler: func() {}})
	r.AddView("chat", "like", &Action{Key: tcell.KeyRune, Rune: 'l', Description: "l:like", Visible: true, Handler: func() {}})
	r.AddView("chat", "hidden", &Action{Key: tcell.KeyRune, Rune: 'h', Description: "h", Handler: func() {}})

	assert.Equal(t, []string{"i:write", "l:like", "q:quit"}, r.Hints("chat"))

	r.AddView("chat", "like", &Action{Key: tcell.KeyRune, Rune: 'L', Description: "L:like", Visible: true, Handler: func() {}})
	assert.Equal(t, []string{"i:write", "L:like", "q:quit"}, r.Hints("chat"))
}

func TestMatchesSpecialKey(t *testing.T) {
	a := &Action{Key: tcell.KeyEnter}
	assert.True(t, a.matches(tcell.KeyEnter, 0))
	assert.False(t, a.matches(tcell.KeyRune, 'x'))
}
