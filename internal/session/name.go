package session

import (
	"fmt"
	"os"
	"regexp"

	"github.com/matheus3301/chatbox/internal/config"
)

const (
	DefaultSessionName = "main"
	// NameEnv selects the session when no --session flag is given.
	NameEnv = "CHATBOX_SESSION"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve determines the active session name and validates it. Precedence:
// the --session flag, then $CHATBOX_SESSION, then default_session from
// config.toml, then "main".
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		name = os.Getenv(NameEnv)
	}
	if name == "" {
		if cfg, err := config.Load(ConfigPath()); err == nil {
			name = cfg.DefaultSession
		}
	}
	if name == "" {
		name = DefaultSessionName
	}
	return name, ValidateName(name)
}

// ValidateName checks that name is usable as a directory and socket name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, nameRegexp)
	}
	return nil
}
