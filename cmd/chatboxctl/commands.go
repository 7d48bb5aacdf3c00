package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/chatbox/internal/api"
	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/matheus3301/chatbox/internal/tui/client"
	"github.com/matheus3301/chatbox/internal/tui/views"
	"google.golang.org/protobuf/encoding/protojson"
)

var errUsage = errors.New("usage")

const callTimeout = 10 * time.Second

type cli struct {
	client  *client.Client
	session string
	json    bool
	out     io.Writer
}

type command struct {
	name  string
	usage string
	help  string
	run   func(c *cli, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"status", "status", "Show session status", (*cli).cmdStatus},
		{"signup", "signup <username> <email> <password>", "Create an account and sign in", (*cli).cmdSignUp},
		{"signin", "signin <email> <password>", "Sign in", (*cli).cmdSignIn},
		{"signout", "signout", "Sign out", (*cli).cmdSignOut},
		{"profile", "profile set|qr [flags]", "Edit your profile or show its QR code", (*cli).cmdProfile},
		{"chats", "chats", "List conversations, newest first", (*cli).cmdChats},
		{"search", "search <prefix>", "Find users by username prefix", (*cli).cmdSearch},
		{"start", "start <username>", "Start a conversation", (*cli).cmdStart},
		{"messages", "messages <conversation>", "Show a conversation", (*cli).cmdMessages},
		{"send", "send <conversation> <text...>", "Send a text message", (*cli).cmdSend},
		{"image", "image <conversation> <path>", "Send an image", (*cli).cmdImage},
		{"like", "like <conversation> <message-id>", "Toggle like on a message", (*cli).cmdLike},
		{"seen", "seen <conversation>", "Mark a conversation seen", (*cli).cmdSeen},
		{"watch", "watch session|chats|messages <conv>", "Stream changes until interrupted", (*cli).cmdWatch},
		{"reconcile", "reconcile", "Restore missing conversation links", (*cli).cmdReconcile},
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(c, ctx, args[1:])
		}
	}
	return fmt.Errorf("%w: unknown command %s", errUsage, args[0])
}

// print writes v as JSON in --json mode, otherwise calls human.
func (c *cli) print(v any, human func()) {
	if !c.json {
		human()
		return
	}
	st, err := api.Encode(v)
	if err != nil {
		fmt.Fprintf(c.out, "json encode error: %v\n", err)
		return
	}
	raw, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
	if err != nil {
		fmt.Fprintf(c.out, "json encode error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(raw))
}

func (c *cli) cmdStatus(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.Status(ctx)
	if err != nil {
		return err
	}
	c.print(resp, func() {
		fmt.Fprintf(c.out, "Session: %s\n", resp.Session)
		fmt.Fprintf(c.out, "Status:  %s\n", resp.State)
		if resp.Advisory != "" {
			fmt.Fprintf(c.out, "Note:    %s\n", resp.Advisory)
		}
		if resp.Principal != nil {
			fmt.Fprintf(c.out, "User:    %s (@%s)\n", resp.Principal.DisplayName(), resp.Principal.Username)
		}
		fmt.Fprintf(c.out, "Uptime:  %dms\n", resp.UptimeMs)
	})
	return nil
}

func (c *cli) cmdSignUp(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.SignUp(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	c.print(resp, func() { fmt.Fprintf(c.out, "Signed up as @%s\n", resp.Principal.Username) })
	return nil
}

func (c *cli) cmdSignIn(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.SignIn(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	c.print(resp, func() { fmt.Fprintf(c.out, "Signed in as @%s\n", resp.Principal.Username) })
	return nil
}

func (c *cli) cmdSignOut(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.client.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func (c *cli) cmdProfile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	switch args[0] {
	case "set":
		fs := flag.NewFlagSet("profile set", flag.ContinueOnError)
		fs.SetOutput(c.out)
		name := fs.String("name", "", "display name (required)")
		bio := fs.String("bio", "", "bio")
		avatar := fs.String("avatar", "", "path of a new avatar image")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		resp, err := c.client.UpdateProfile(ctx, api.ProfileRequest{Name: *name, Bio: *bio, AvatarPath: *avatar})
		if err != nil {
			return err
		}
		c.print(resp, func() { printPrincipal(c.out, resp.Principal) })
	case "qr":
		st, err := c.client.Status(ctx)
		if err != nil {
			return err
		}
		if st.Principal == nil {
			return apperr.ErrNotSignedIn
		}
		fmt.Fprintf(c.out, "%s\n  @%s\n", views.RenderQR(views.ProfileLink(st.Principal.Username)), st.Principal.Username)
	default:
		return errUsage
	}
	return nil
}

func (c *cli) cmdChats(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.ListChats(ctx)
	if err != nil {
		return err
	}
	c.print(resp, func() { printEntries(c.out, resp.Entries) })
	return nil
}

func (c *cli) cmdSearch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.SearchUsers(ctx, args[0])
	if err != nil {
		return err
	}
	c.print(resp, func() {
		if len(resp.Users) == 0 {
			fmt.Fprintln(c.out, "No users found.")
		}
		for _, u := range resp.Users {
			fmt.Fprintf(c.out, "%-20s %-24s %s\n", "@"+u.Username, u.DisplayName(), u.ID)
		}
	})
	return nil
}

func (c *cli) cmdStart(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	username := strings.ToLower(strings.TrimPrefix(args[0], "@"))
	users, err := c.client.SearchUsers(ctx, username)
	if err != nil {
		return err
	}
	var target *model.Principal
	for i := range users.Users {
		if users.Users[i].Username == username {
			target = &users.Users[i]
			break
		}
	}
	if target == nil {
		return apperr.NotFound("no user @" + username)
	}

	resp, err := c.client.StartChat(ctx, target.ID)
	if err != nil {
		return err
	}
	c.print(resp, func() {
		if resp.Created {
			fmt.Fprintf(c.out, "Started conversation %s with @%s\n", resp.ConversationID, username)
		} else {
			fmt.Fprintf(c.out, "Conversation %s with @%s already exists\n", resp.ConversationID, username)
		}
	})
	return nil
}

func (c *cli) cmdMessages(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.ListMessages(ctx, args[0])
	if err != nil {
		return err
	}
	c.print(resp, func() { printMessages(c.out, resp.Messages) })
	return nil
}

func (c *cli) cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.client.SendText(ctx, args[0], strings.Join(args[1:], " "))
}

func (c *cli) cmdImage(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.client.SendImage(ctx, args[0], args[1])
}

func (c *cli) cmdLike(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.ToggleLike(ctx, api.LikeRequest{ConversationID: args[0], MessageID: args[1]})
	if err != nil {
		return err
	}
	c.print(resp, func() { printMessages(c.out, resp.Messages) })
	return nil
}

func (c *cli) cmdSeen(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.client.MarkSeen(ctx, args[0])
}

func (c *cli) cmdReconcile(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	resp, err := c.client.Reconcile(ctx)
	if err != nil {
		return err
	}
	c.print(resp, func() {
		fmt.Fprintf(c.out, "%d link(s) restored\n", len(resp.Repairs))
		for _, r := range resp.Repairs {
			fmt.Fprintf(c.out, "  %s -> %s\n", r.ConversationID, r.OwnerID)
		}
	})
	return nil
}

// cmdWatch streams until ctx is cancelled or the daemon ends the stream.
func (c *cli) cmdWatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "session":
		s, err := c.client.WatchSession(ctx)
		if err != nil {
			return err
		}
		return follow(ctx, s, func(e *api.SessionEvent) {
			c.print(e, func() {
				if e.Principal != nil {
					fmt.Fprintf(c.out, "%s @%s\n", e.Kind, e.Principal.Username)
				} else {
					fmt.Fprintf(c.out, "%s %s\n", e.Kind, e.Advisory)
				}
			})
		})
	case "chats":
		s, err := c.client.WatchChats(ctx)
		if err != nil {
			return err
		}
		return follow(ctx, s, func(r *api.ChatsReply) {
			c.print(r, func() {
				fmt.Fprintln(c.out, "--")
				printEntries(c.out, r.Entries)
			})
		})
	case "messages":
		if len(args) != 2 {
			return errUsage
		}
		s, err := c.client.WatchMessages(ctx, args[1])
		if err != nil {
			return err
		}
		return follow(ctx, s, func(r *api.MessagesReply) {
			c.print(r, func() {
				fmt.Fprintln(c.out, "--")
				printMessages(c.out, r.Messages)
			})
		})
	default:
		return errUsage
	}
}

func follow[T any](ctx context.Context, s *client.Stream[T], fn func(*T)) error {
	for {
		v, err := s.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		fn(v)
	}
}

func printPrincipal(w io.Writer, p *model.Principal) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "Name:   %s\n", p.Name)
	fmt.Fprintf(w, "User:   @%s\n", p.Username)
	fmt.Fprintf(w, "Bio:    %s\n", p.Bio)
	fmt.Fprintf(w, "Avatar: %s\n", p.Avatar)
}

func printEntries(w io.Writer, entries []model.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return
	}
	for _, e := range entries {
		name := "(unknown user)"
		if e.Counterparty != nil {
			name = e.Counterparty.DisplayName()
		}
		marker := " "
		if !e.Seen {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-36s %-20s %s\n", marker, e.ConversationID, name, e.LastMessage)
	}
}

func printMessages(w io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		body := m.Text
		if m.IsImage() {
			body = "[image] " + m.Image
		}
		heart := ""
		if m.Liked {
			heart = " ♥"
		}
		ts := time.UnixMilli(m.CreatedAt).Format("15:04")
		fmt.Fprintf(w, "%s %-36s %s: %s%s\n", ts, m.ID, m.SenderID, body, heart)
	}
}
