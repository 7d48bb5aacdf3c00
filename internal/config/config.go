package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backend kinds.
const (
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"

	BlobDir = "dir"
	BlobS3  = "s3"
)

// Environment variables that override secrets from the file.
const (
	EnvMongoURI        = "CHATBOX_MONGO_URI"
	EnvPostgresDSN     = "CHATBOX_POSTGRES_DSN"
	EnvS3AccessKeyID   = "CHATBOX_S3_ACCESS_KEY_ID"
	EnvS3SecretKey     = "CHATBOX_S3_SECRET_ACCESS_KEY"
	EnvJWTSecret       = "CHATBOX_JWT_SECRET"
	defaultMongoDBName = "chatbox"
)

// Config represents the global ~/.chatbox/config.toml.
type Config struct {
	DefaultSession string          `toml:"default_session"`
	Log            LogConfig       `toml:"log"`
	Backend        BackendConfig   `toml:"backend"`
	Blob           BlobConfig      `toml:"blob"`
	Auth           AuthConfig      `toml:"auth"`
	Reconcile      ReconcileConfig `toml:"reconcile"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// BackendConfig selects the document store.
type BackendConfig struct {
	Kind          string        `toml:"kind"`
	SQLitePath    string        `toml:"sqlite_path"`
	MongoURI      string        `toml:"mongo_uri"`
	MongoDatabase string        `toml:"mongo_database"`
	PostgresDSN   string        `toml:"postgres_dsn"`
	PollInterval  time.Duration `toml:"poll_interval"`
}

// BlobConfig selects where images are uploaded.
type BlobConfig struct {
	Kind            string `toml:"kind"`
	Dir             string `toml:"dir"`
	Bucket          string `toml:"bucket"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PublicBaseURL   string `toml:"public_base_url"`
}

type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl"`
}

// ReconcileConfig enables the directory repair loop when Interval > 0.
type ReconcileConfig struct {
	Interval time.Duration `toml:"interval"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = BackendSQLite
	}
	if c.Backend.MongoDatabase == "" {
		c.Backend.MongoDatabase = defaultMongoDBName
	}
	if c.Backend.PollInterval == 0 {
		c.Backend.PollInterval = time.Second
	}
	if c.Blob.Kind == "" {
		c.Blob.Kind = BlobDir
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
}

// Validate checks the backend and blob selections.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendSQLite:
	case BackendMongo:
		if c.Backend.MongoURI == "" {
			return fmt.Errorf("backend mongo requires mongo_uri or %s", EnvMongoURI)
		}
	case BackendPostgres:
		if c.Backend.PostgresDSN == "" {
			return fmt.Errorf("backend postgres requires postgres_dsn or %s", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}
	switch c.Blob.Kind {
	case BlobDir:
	case BlobS3:
		if c.Blob.Bucket == "" {
			return errors.New("blob s3 requires bucket")
		}
	default:
		return fmt.Errorf("unknown blob kind %q", c.Blob.Kind)
	}
	return nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDaemon reads path (defaults when missing), then applies secrets from
// envPath and the process environment, and validates the result.
func LoadDaemon(path, envPath string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
	} else if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.applyDefaults()

	if envPath != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from environment variables.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Backend.MongoURI, EnvMongoURI)
	setFromEnv(&c.Backend.PostgresDSN, EnvPostgresDSN)
	setFromEnv(&c.Blob.AccessKeyID, EnvS3AccessKeyID)
	setFromEnv(&c.Blob.SecretAccessKey, EnvS3SecretKey)
	setFromEnv(&c.Auth.JWTSecret, EnvJWTSecret)
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
