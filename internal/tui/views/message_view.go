package views

import (
	"fmt"

	"github.com/matheus3301/chatbox/internal/model"
	"github.com/rivo/tview"
)

// MessageView displays the messages of the open conversation, oldest
// first, with one selectable row per message.
type MessageView struct {
	*tview.Table
	msgs   []model.Message
	selfID string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{Table: table}
}

// SetChatName updates the title with the counterparty's name.
func (mv *MessageView) SetChatName(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", cellText(name)))
}

// SetSelf sets the principal whose messages are labelled "You".
func (mv *MessageView) SetSelf(id string) {
	mv.selfID = id
}

// Update refreshes the view and keeps the cursor on the newest message
// unless it was placed elsewhere.
func (mv *MessageView) Update(msgs []model.Message, counterpartyName string) {
	row, _ := mv.GetSelection()
	atEnd := row >= len(mv.msgs)-1
	mv.msgs = msgs
	mv.Clear()

	for i, m := range msgs {
		sender := counterpartyName
		if m.SenderID == mv.selfID {
			sender = "You"
		}
		body := cellText(m.Text)
		if m.IsImage() {
			body = "[::u]image[::-] " + cellText(m.Image)
		}
		heart := ""
		if m.Liked {
			heart = " [red]♥[-]"
		}
		mv.SetCell(i, 0, tview.NewTableCell(fmt.Sprintf("[::d]%s[-:-:-]", formatTimestamp(m.CreatedAt))))
		mv.SetCell(i, 1, tview.NewTableCell(fmt.Sprintf("[::b]%s[-:-:-]", cellText(sender))))
		mv.SetCell(i, 2, tview.NewTableCell(body+heart).SetExpansion(1))
	}

	if len(msgs) == 0 {
		return
	}
	if atEnd || row >= len(msgs) {
		row = len(msgs) - 1
	}
	mv.Select(row, 0)
}

// SelectedMessage returns the message under the cursor.
func (mv *MessageView) SelectedMessage() (model.Message, bool) {
	row, _ := mv.GetSelection()
	if row >= 0 && row < len(mv.msgs) {
		return mv.msgs[row], true
	}
	return model.Message{}, false
}

// Messages returns the list currently shown.
func (mv *MessageView) Messages() []model.Message {
	return mv.msgs
}
