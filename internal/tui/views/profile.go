package views

import (
	"fmt"

	"github.com/matheus3301/chatbox/internal/model"
	"github.com/rivo/tview"
)

// ProfileView edits the signed-in principal's name, bio and avatar, next to
// a QR code of their handle.
type ProfileView struct {
	*tview.Flex
	form   *tview.Form
	qr     *tview.TextView
	onSave func(name, bio, avatarPath string)
}

// NewProfileView creates an empty profile editor.
func NewProfileView() *ProfileView {
	qr := tview.NewTextView().SetTextAlign(tview.AlignCenter)
	qr.SetBorder(true).SetTitle(" Share ")

	pv := &ProfileView{form: tview.NewForm(), qr: qr}
	pv.form.SetBorder(true).SetTitle(" Profile details ")

	pv.Flex = tview.NewFlex().
		AddItem(pv.form, 0, 1, true).
		AddItem(qr, 0, 1, false)
	return pv
}

// SetOnSave sets the callback for the save button.
func (pv *ProfileView) SetOnSave(fn func(name, bio, avatarPath string)) {
	pv.onSave = fn
}

// Load fills the form from p.
func (pv *ProfileView) Load(p *model.Principal) {
	pv.form.Clear(true)
	pv.qr.Clear()
	if p == nil {
		return
	}
	pv.form.AddTextView("Username", "@"+p.Username, 30, 1, true, false)
	pv.form.AddInputField("Name", p.Name, 30, nil, nil)
	pv.form.AddTextArea("Bio", p.Bio, 30, 3, 0, nil)
	pv.form.AddInputField("Avatar file", "", 30, nil, nil)
	pv.form.AddButton("Save", func() {
		if pv.onSave != nil {
			pv.onSave(pv.input("Name"), pv.bio(), pv.input("Avatar file"))
		}
	})
	_, _ = fmt.Fprintf(pv.qr, "\n%s\n@%s", RenderQR(ProfileLink(p.Username)), p.Username)
}

func (pv *ProfileView) input(label string) string {
	if f, ok := pv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
		return f.GetText()
	}
	return ""
}

func (pv *ProfileView) bio() string {
	if f, ok := pv.form.GetFormItemByLabel("Bio").(*tview.TextArea); ok {
		return f.GetText()
	}
	return ""
}
