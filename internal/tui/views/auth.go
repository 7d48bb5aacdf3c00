package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// AuthMode selects which form the auth view shows.
type AuthMode int

const (
	ModeSignIn AuthMode = iota
	ModeSignUp
)

// AuthView is the sign-in / sign-up form.
type AuthView struct {
	*tview.Flex
	form    *tview.Form
	message *tview.TextView
	mode    AuthMode

	onSignIn func(email, password string)
	onSignUp func(username, email, password string)
}

// NewAuthView creates a new auth view showing the sign-in form.
func NewAuthView() *AuthView {
	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	av := &AuthView{
		form:    tview.NewForm(),
		message: message,
	}
	av.form.SetBorder(true)

	av.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(av.form, 50, 0, true).
			AddItem(nil, 0, 1, false), 13, 0, true).
		AddItem(message, 2, 0, false).
		AddItem(nil, 0, 1, false)

	av.SetMode(ModeSignIn)
	return av
}

// SetOnSignIn sets the callback for the sign-in form.
func (av *AuthView) SetOnSignIn(fn func(email, password string)) {
	av.onSignIn = fn
}

// SetOnSignUp sets the callback for the sign-up form.
func (av *AuthView) SetOnSignUp(fn func(username, email, password string)) {
	av.onSignUp = fn
}

// Mode returns the form currently shown.
func (av *AuthView) Mode() AuthMode {
	return av.mode
}

// SetMode rebuilds the form for mode.
func (av *AuthView) SetMode(mode AuthMode) {
	av.mode = mode
	av.form.Clear(true)

	if mode == ModeSignUp {
		av.form.SetTitle(" Sign up ")
		av.form.AddInputField("Username", "", 30, nil, nil)
	} else {
		av.form.SetTitle(" Login ")
	}
	av.form.AddInputField("Email", "", 30, nil, nil)
	av.form.AddPasswordField("Password", "", 30, '*', nil)

	if mode == ModeSignUp {
		av.form.AddButton("Create account", av.submit)
		av.form.AddButton("Have an account?", func() { av.SetMode(ModeSignIn) })
	} else {
		av.form.AddButton("Login", av.submit)
		av.form.AddButton("New here?", func() { av.SetMode(ModeSignUp) })
	}
}

func (av *AuthView) submit() {
	email := av.text("Email")
	password := av.text("Password")
	if av.mode == ModeSignUp {
		if av.onSignUp != nil {
			av.onSignUp(av.text("Username"), email, password)
		}
		return
	}
	if av.onSignIn != nil {
		av.onSignIn(email, password)
	}
}

func (av *AuthView) text(label string) string {
	if f, ok := av.form.GetFormItemByLabel(label).(*tview.InputField); ok {
		return f.GetText()
	}
	return ""
}

// ShowMessage displays an advisory under the form.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	if msg != "" {
		_, _ = fmt.Fprintf(av.message, "[yellow]%s[-]", tview.Escape(msg))
	}
}
