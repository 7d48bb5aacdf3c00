package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/matheus3301/chatbox/internal/apperr"
)

// shell runs an interactive prompt over the same commands.
func (c *cli) shell(ctx context.Context) {
	fmt.Fprintf(c.out, "chatbox shell, session %q\n", c.session)
	fmt.Fprintln(c.out, "Type 'help' to see available commands")

	executor := func(input string) {
		args := strings.Fields(input)
		if len(args) == 0 {
			return
		}
		switch args[0] {
		case "exit", "quit":
			return
		case "watch":
			fmt.Fprintln(c.out, "watch is not available in the shell; run chatboxctl watch instead")
			return
		case "help":
			for _, cmd := range commands {
				fmt.Fprintf(c.out, "%-36s : %s\n", cmd.usage, cmd.help)
			}
			return
		}
		if err := c.run(ctx, args); err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(c.out, "Unknown command or wrong arguments. Type 'help' for a list of commands.")
				return
			}
			fmt.Fprintf(c.out, "error: %s\n", apperr.Advisory(err))
		}
	}

	p := prompt.New(
		executor,
		completer,
		prompt.OptionPrefix(c.session+"> "),
		prompt.OptionTitle("chatbox"),
		prompt.OptionHistory([]string{}),
		prompt.OptionSetExitCheckerOnInput(isExit),
	)
	p.Run()
}

func isExit(in string, breakline bool) bool {
	in = strings.TrimSpace(in)
	return breakline && (in == "exit" || in == "quit")
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return []prompt.Suggest{}
	}
	s := []prompt.Suggest{
		{Text: "help", Description: "Show commands"},
		{Text: "exit", Description: "Leave the shell"},
	}
	for _, cmd := range commands {
		s = append(s, prompt.Suggest{Text: cmd.name, Description: cmd.help})
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}
