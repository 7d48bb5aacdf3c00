package views

import (
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/rivo/tview"
)

// ChatList is the main chat list view (K9s-inspired table).
type ChatList struct {
	*tview.Table
	entries []model.Entry
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	return &ChatList{Table: table}
}

// Update refreshes the chat list, keeping the selected row where possible.
func (cl *ChatList) Update(entries []model.Entry) {
	cl.entries = entries
	row, _ := cl.GetSelection()
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, e := range entries {
		r := i + 1
		name := "(unknown user)"
		if e.Counterparty != nil {
			name = e.Counterparty.DisplayName()
		}
		if !e.Seen {
			name = "* " + name
		}
		cl.SetCell(r, 0, tview.NewTableCell(" "+cellText(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(r, 1, tview.NewTableCell(" "+cellText(e.LastMessage)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(r, 2, tview.NewTableCell(" "+formatTimestamp(e.UpdatedAt)).SetMaxWidth(12))
	}

	if row < 1 {
		row = 1
	}
	if row > len(entries) {
		row = len(entries)
	}
	if row >= 1 {
		cl.Select(row, 0)
	}
}

// SelectedEntry returns the entry under the cursor.
func (cl *ChatList) SelectedEntry() (model.Entry, bool) {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.entries) {
		return cl.entries[idx], true
	}
	return model.Entry{}, false
}
