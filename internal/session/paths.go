package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mainly for tests and side-by-side installs.
const HomeEnv = "CHATBOX_HOME"

// BaseDir returns $CHATBOX_HOME or ~/.chatbox.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatbox")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// TokenPath returns where the signed-in ID token is persisted.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "token")
}

// KeyPath returns the token signing key shared by all sessions.
func KeyPath() string {
	return filepath.Join(BaseDir(), "auth.key")
}

// DocumentsPath returns the default SQLite backend file. It is shared by all
// sessions so that local principals can talk to each other.
func DocumentsPath() string {
	return filepath.Join(BaseDir(), "chatbox.db")
}

// BlobDir returns the default directory for uploaded images.
func BlobDir() string {
	return filepath.Join(BaseDir(), "blobs")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chatboxd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional .env file read for secret overrides.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
