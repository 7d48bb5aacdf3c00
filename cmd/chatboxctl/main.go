package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/lock"
	"github.com/matheus3301/chatbox/internal/session"
	"github.com/matheus3301/chatbox/internal/tui/client"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli := &cli{client: c, session: sessionName, json: *jsonFlag, out: os.Stdout}
	if args[0] == "shell" {
		cli.shell(ctx)
		return
	}
	if err := cli.run(ctx, args); err != nil {
		reportError(sessionName, err)
		os.Exit(1)
	}
}

func reportError(sessionName string, err error) {
	if errors.Is(err, errUsage) {
		printUsage()
		return
	}
	if apperr.CodeOf(err) == apperr.CodeUnknown {
		// Most likely the daemon is not running; say who holds the session.
		if pid, herr := lock.Holder(session.Dir(sessionName)); herr == nil && pid > 0 {
			fmt.Fprintf(os.Stderr, "error: %v (session %q is locked by pid %d)\n", err, sessionName, pid)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", apperr.Advisory(err))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatboxctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-36s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(os.Stderr, "  %-36s %s\n", "shell", "Interactive shell")
}
