package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultSession: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvMongoURI, EnvPostgresDSN, EnvS3AccessKeyID, EnvS3SecretKey, EnvJWTSecret} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadDaemonDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadDaemon(filepath.Join(t.TempDir(), "missing.toml"), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.Kind != BackendSQLite {
		t.Errorf("Backend.Kind = %q, want sqlite", cfg.Backend.Kind)
	}
	if cfg.Blob.Kind != BlobDir {
		t.Errorf("Blob.Kind = %q, want dir", cfg.Blob.Kind)
	}
	if cfg.Backend.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.Backend.PollInterval)
	}
	if cfg.Reconcile.Interval != 0 {
		t.Errorf("reconcile should be off by default, got %v", cfg.Reconcile.Interval)
	}
}

func TestLoadDaemonSections(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `default_session = "work"

[log]
level = "debug"

[backend]
kind = "mongo"
mongo_uri = "mongodb://localhost:27017"
poll_interval = "250ms"

[blob]
kind = "s3"
bucket = "images"
endpoint = "http://localhost:9000"

[reconcile]
interval = "1m"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDaemon(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultSession != "work" || cfg.Log.Level != "debug" {
		t.Errorf("got session=%q level=%q", cfg.DefaultSession, cfg.Log.Level)
	}
	if cfg.Backend.Kind != BackendMongo || cfg.Backend.MongoDatabase != "chatbox" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Backend.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Backend.PollInterval)
	}
	if cfg.Reconcile.Interval != time.Minute {
		t.Errorf("Reconcile.Interval = %v", cfg.Reconcile.Interval)
	}
}

func TestLoadDaemonEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[backend]\nkind = \"postgres\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CHATBOX_JWT_SECRET=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPostgresDSN, "postgres://localhost/chatbox")

	cfg, err := LoadDaemon(path, envPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.PostgresDSN != "postgres://localhost/chatbox" {
		t.Errorf("PostgresDSN = %q", cfg.Backend.PostgresDSN)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q, want from-dotenv", cfg.Auth.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"mongo without uri", func(c *Config) { c.Backend.Kind = BackendMongo }, true},
		{"postgres without dsn", func(c *Config) { c.Backend.Kind = BackendPostgres }, true},
		{"unknown backend", func(c *Config) { c.Backend.Kind = "redis" }, true},
		{"s3 without bucket", func(c *Config) { c.Blob.Kind = BlobS3 }, true},
		{"unknown blob", func(c *Config) { c.Blob.Kind = "ftp" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
