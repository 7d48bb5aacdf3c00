package tui

import "strings"

// Command represents a parsed composer command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses composer input. ok is false for plain message text;
// a leading "//" escapes a message that starts with a slash.
func ParseCommand(input string) (cmd Command, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return Command{}, false
	}
	parts := strings.SplitN(input[1:], " ", 2)
	cmd.Name = strings.ToLower(parts[0])
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd, cmd.Name != ""
}

// messageText returns composer input as it should be sent.
func messageText(input string) string {
	if strings.HasPrefix(input, "//") {
		return input[1:]
	}
	return input
}
