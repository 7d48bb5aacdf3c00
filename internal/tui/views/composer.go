package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for messages and slash commands.
type Composer struct {
	*tview.InputField
	onSend func(text string)
	last   string
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetPlaceholder("message, /image <path> or /like").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.submit()
		}
	})
	// Up recalls the last submitted input while the field is empty.
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyUp && c.GetText() == "" && c.last != "" {
			c.SetText(c.last)
			return nil
		}
		return ev
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

func (c *Composer) submit() {
	text := c.GetText()
	if strings.TrimSpace(text) == "" || c.onSend == nil {
		return
	}
	c.last = text
	c.onSend(text)
	c.SetText("")
}
