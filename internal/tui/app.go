package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	domain "github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/tui/client"
	"github.com/matheus3301/chatbox/internal/tui/keys"
	"github.com/matheus3301/chatbox/internal/tui/model"
	"github.com/matheus3301/chatbox/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageAuth    = "auth"
	pageChats   = "chats"
	pageChat    = "chat"
	pageSearch  = "search"
	pageProfile = "profile"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	searchV   *views.SearchView
	authView  *views.AuthView
	profileV  *views.ProfileView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		searchV:   views.NewSearchView(),
		authView:  views.NewAuthView(),
		profileV:  views.NewProfileView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddView(pageChats, "search", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Description: "n:new chat", Visible: true,
		Handler: func() { a.showSearch() },
	})
	a.registry.AddView(pageChats, "profile", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune,
		Description: "p:profile", Visible: true,
		Handler: func() { a.showProfile() },
	})
	a.registry.AddView(pageChats, "signout", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "x:sign out", Visible: true,
		Handler: func() {
			a.async("Sign out", func(ctx context.Context) error { return a.vm.SignOut(ctx) })
		},
	})
	a.registry.AddView(pageChat, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:write", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView(pageChat, "like", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Description: "l:like", Visible: true,
		Handler: func() { a.likeSelected() },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if entry, ok := a.chatList.SelectedEntry(); ok {
			a.openChat(entry)
		}
	})

	a.composer.SetOnSend(func(text string) {
		a.async("Send", func(ctx context.Context) error { return a.submit(ctx, text) })
		a.app.SetFocus(a.msgView)
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			users, err := a.vm.SearchUsers(a.ctx, query)
			if err != nil {
				a.flash("Search failed: " + err.Error())
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(users)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})
	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		user, ok := a.searchV.SelectedUser()
		if !ok {
			return
		}
		go func() {
			entry, err := a.vm.StartChat(a.ctx, user)
			if err != nil {
				a.flash("Start chat failed: " + err.Error())
				return
			}
			a.app.QueueUpdateDraw(func() { a.openChat(entry) })
		}()
	})

	a.authView.SetOnSignIn(func(email, password string) {
		a.authView.ShowMessage("Signing in...")
		go a.authenticate(func(ctx context.Context) error { return a.vm.SignIn(ctx, email, password) })
	})
	a.authView.SetOnSignUp(func(username, email, password string) {
		a.authView.ShowMessage("Creating account...")
		go a.authenticate(func(ctx context.Context) error { return a.vm.SignUp(ctx, username, email, password) })
	})

	a.profileV.SetOnSave(func(name, bio, avatarPath string) {
		a.async("Save profile", func(ctx context.Context) error {
			if err := a.vm.UpdateProfile(ctx, name, bio, avatarPath); err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() { a.showPage(pageChats, a.chatList) })
			return nil
		})
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageChats, a.chatList, true, false)
	a.pages.AddPage(pageChat, chatFlex, true, false)
	a.pages.AddPage(pageSearch, a.searchV, true, false)
	a.pages.AddPage(pageProfile, a.profileV, true, false)
	a.pages.AddPage(pageAuth, a.authView, true, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case pageChat:
				if a.app.GetFocus() == a.composer.InputField {
					a.app.SetFocus(a.msgView)
					return nil
				}
				a.vm.Close()
				a.showPage(pageChats, a.chatList)
				return nil
			case pageSearch, pageProfile:
				a.showPage(pageChats, a.chatList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.TextArea:
			return event
		}
		if currentPage == pageAuth {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

// submit sends composer input, running slash commands.
func (a *App) submit(ctx context.Context, text string) error {
	cmd, ok := ParseCommand(text)
	if !ok {
		return a.vm.Send(ctx, messageText(text))
	}
	switch cmd.Name {
	case "image", "img":
		if cmd.Args == "" {
			a.flash("usage: /image <path>")
			return nil
		}
		return a.vm.SendImage(ctx, cmd.Args)
	case "like":
		a.app.QueueUpdateDraw(a.likeSelected)
		return nil
	default:
		a.flash("unknown command /" + cmd.Name)
		return nil
	}
}

func (a *App) likeSelected() {
	msg, ok := a.msgView.SelectedMessage()
	if !ok {
		return
	}
	a.async("Like", func(ctx context.Context) error { return a.vm.ToggleLike(ctx, msg) })
}

// openChat switches to entry's conversation. Called on the UI goroutine.
func (a *App) openChat(entry domain.Entry) {
	a.vm.Open(a.ctx, entry)
	name := "(unknown user)"
	if entry.Counterparty != nil {
		name = entry.Counterparty.DisplayName()
	}
	a.msgView.SetChatName(name)
	a.msgView.Update(nil, name)
	a.showPage(pageChat, a.msgView)
}

func (a *App) showSearch() {
	a.searchV.Reset()
	a.showPage(pageSearch, a.searchV.Input())
}

func (a *App) showProfile() {
	a.profileV.Load(a.vm.GetPrincipal())
	a.showPage(pageProfile, a.profileV)
}

func (a *App) showPage(name string, focus tview.Primitive) {
	a.pages.SwitchToPage(name)
	a.app.SetFocus(focus)
	a.statusBar.SetHints(a.registry.Hints(name))
}

// authenticate runs a sign-in or sign-up call. The session watcher moves
// the UI to the chat list once the daemon reports the principal.
func (a *App) authenticate(fn func(ctx context.Context) error) {
	if err := fn(a.ctx); err != nil {
		a.app.QueueUpdateDraw(func() { a.authView.ShowMessage(err.Error()) })
	}
}

// async runs fn off the UI goroutine and reports a failure in the status bar.
func (a *App) async(what string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(a.ctx); err != nil {
			a.flash(what + " failed: " + err.Error())
		}
	}()
}

// flash reports a failure in the status bar.
func (a *App) flash(msg string) {
	a.vm.Flash.Error(msg)
	a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.vm.Flash.Get()) })
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.flash("Status failed: " + err.Error())
		}
		a.app.QueueUpdateDraw(func() {
			if p := a.vm.GetPrincipal(); p != nil {
				a.enterChats()
				return
			}
			if st := a.vm.GetStatus(); st != nil {
				a.authView.ShowMessage(st.Advisory)
			}
			a.showPage(pageAuth, a.authView)
		})

		go a.watchSession()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// enterChats shows the chat list and starts following it. Called on the UI
// goroutine.
func (a *App) enterChats() {
	a.vm.FollowChats(a.ctx)
	a.showPage(pageChats, a.chatList)
}

func (a *App) watchSession() {
	err := a.vm.WatchSession(a.ctx, func(signedIn bool, advisory string) {
		a.app.QueueUpdateDraw(func() {
			currentPage, _ := a.pages.GetFrontPage()
			switch {
			case signedIn && currentPage == pageAuth:
				a.authView.ShowMessage("")
				a.enterChats()
			case !signedIn:
				a.authView.ShowMessage(advisory)
				a.showPage(pageAuth, a.authView)
			}
		})
	})
	if err != nil && a.ctx.Err() == nil {
		a.flash("Session stream failed: " + err.Error())
	}
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.render)
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.vm.Flash.Get()) })
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// render copies the view model into the widgets.
func (a *App) render() {
	a.chatList.Update(a.vm.GetEntries())

	p := a.vm.GetPrincipal()
	active := a.vm.GetActive()
	if p != nil {
		a.msgView.SetSelf(p.ID)
		a.statusBar.SetStatus("SIGNED_IN", p.Username)
	} else {
		a.statusBar.SetStatus("SIGNED_OUT", "")
	}
	if active.ConversationID != "" {
		a.msgView.Update(a.vm.GetMessages(), active.Counterparty.DisplayName())
	}
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
