package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays the session, its sign-in state and key hints.
type StatusBar struct {
	*tview.TextView
	session string
	status  string
	user    string
	hints   []string
	flash   string
	isError bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the state and signed-in user display.
func (sb *StatusBar) SetStatus(status, user string) {
	sb.status = status
	sb.user = user
	sb.render()
}

// SetHints sets the key hints for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message. Errors are shown in red.
func (sb *StatusBar) SetFlash(msg string, isError bool) {
	sb.flash = msg
	sb.isError = isError
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", sb.session, sb.status)
	if sb.user != "" {
		line += " @" + sb.user
	}
	line += " | " + clock
	if len(sb.hints) > 0 {
		line += " | [::d]" + strings.Join(sb.hints, " ") + "[-:-:-]"
	}
	if sb.flash != "" {
		color := "yellow"
		if sb.isError {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
