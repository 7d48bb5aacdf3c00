package views

import (
	"strings"
	"time"

	"github.com/rivo/tview"
)

// cellText prepares user-supplied text for a single table cell: line breaks
// become spaces, codepoints tcell renders as extra cells are dropped and
// tview color tags are escaped.
func cellText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case isJoiner(r):
		default:
			b.WriteRune(r)
		}
	}
	return tview.Escape(b.String())
}

// isJoiner reports skin tone modifiers, ZWJ and variation selectors. Left
// in place they split a composed emoji into cells tcell cannot align.
func isJoiner(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}

// formatTimestamp shows the clock time for today and the date otherwise.
func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
