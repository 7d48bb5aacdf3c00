package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatbox/internal/api"
	"github.com/matheus3301/chatbox/internal/auth"
	"github.com/matheus3301/chatbox/internal/blob"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/config"
	"github.com/matheus3301/chatbox/internal/directory"
	"github.com/matheus3301/chatbox/internal/identity"
	"github.com/matheus3301/chatbox/internal/lock"
	"github.com/matheus3301/chatbox/internal/logging"
	"github.com/matheus3301/chatbox/internal/session"
	"github.com/matheus3301/chatbox/internal/status"
	"github.com/matheus3301/chatbox/internal/store"
	"github.com/matheus3301/chatbox/internal/store/mongostore"
	"github.com/matheus3301/chatbox/internal/store/pgstore"
	intsync "github.com/matheus3301/chatbox/internal/sync"
	"github.com/matheus3301/chatbox/internal/transcript"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load from the chatbox home
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideBlob,
			provideAuth,
			provideIdentity,
			provideDirectory,
			provideTranscript,
			provideReconciler,
			provideSessionService,
			provideDirectoryService,
			provideTranscriptService,
			provideSyncService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadDaemon(session.ConfigPath(), session.EnvPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore opens the configured document backend. The lock is taken
// first so a second daemon for the same session fails before touching it.
func provideStore(cfg *config.Config, _ *lock.Lock, b *bus.Bus, logger *zap.Logger) (store.Store, error) {
	poll := cfg.Backend.PollInterval
	switch cfg.Backend.Kind {
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := mongostore.Open(ctx, cfg.Backend.MongoURI, cfg.Backend.MongoDatabase, b, poll, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("backend", "mongo"), zap.String("database", cfg.Backend.MongoDatabase))
		return s, nil
	case config.BackendPostgres:
		s, err := pgstore.Open(cfg.Backend.PostgresDSN, b, poll, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("backend", "postgres"))
		return s, nil
	default:
		return openSQLite(cfg, b, logger)
	}
}

func openSQLite(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (store.Store, error) {
	dbPath := cfg.Backend.SQLitePath
	if dbPath == "" {
		dbPath = session.DocumentsPath()
	}
	return store.OpenDocuments(dbPath, b, cfg.Backend.PollInterval, logger)
}

func provideBlob(cfg *config.Config) (blob.Store, error) {
	if cfg.Blob.Kind == config.BlobS3 {
		return blob.NewS3(blob.S3Config{
			Bucket:          cfg.Blob.Bucket,
			Endpoint:        cfg.Blob.Endpoint,
			Region:          cfg.Blob.Region,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			PublicBaseURL:   cfg.Blob.PublicBaseURL,
		})
	}
	dir := cfg.Blob.Dir
	if dir == "" {
		dir = session.BlobDir()
	}
	return blob.NewDir(dir)
}

func provideAuth(p Params, cfg *config.Config, docs store.Store, b *bus.Bus, logger *zap.Logger) (*auth.Local, error) {
	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		key, err := auth.LoadOrCreateKey(session.KeyPath())
		if err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
		secret = key
	}
	return auth.NewLocal(docs, b, auth.LocalConfig{
		Secret:    secret,
		TTL:       cfg.Auth.TokenTTL,
		TokenPath: session.TokenPath(p.SessionName),
	}, logger), nil
}

func provideIdentity(a *auth.Local, docs store.Store, blobs blob.Store, b *bus.Bus, m *status.Machine, logger *zap.Logger) *identity.Service {
	return identity.New(a, docs, blobs, b, m, logger)
}

func provideDirectory(docs store.Store, logger *zap.Logger) *directory.Service {
	return directory.New(docs, logger)
}

func provideTranscript(docs store.Store, blobs blob.Store, dir *directory.Service, logger *zap.Logger) *transcript.Service {
	return transcript.New(docs, blobs, dir, logger)
}

func provideReconciler(cfg *config.Config, dir *directory.Service, id *identity.Service, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(dir, id.Current, b, cfg.Reconcile.Interval, logger)
}

func provideSessionService(p Params, m *status.Machine, id *identity.Service) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, id)
}

func provideDirectoryService(id *identity.Service, dir *directory.Service, b *bus.Bus) *api.DirectoryService {
	return api.NewDirectoryService(id, dir, b)
}

func provideTranscriptService(id *identity.Service, tr *transcript.Service, b *bus.Bus) *api.TranscriptService {
	return api.NewTranscriptService(id, tr, b)
}

func provideSyncService(id *identity.Service, r *intsync.Reconciler, b *bus.Bus) *api.SyncService {
	return api.NewSyncService(id, r, b)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, docs store.Store, a *auth.Local, id *identity.Service, rec *intsync.Reconciler, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Pick up the persisted sign-in before the identity watcher
			// reads the first auth state.
			if err := a.Restore(ctx); err != nil {
				logger.Warn("persisted sign-in discarded", zap.Error(err))
			}
			id.Start(context.Background())
			rec.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
					_ = machine.TransitionWithAdvisory(status.Error, "api server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			rec.Stop()
			srv.Stop(ctx)
			id.Stop()
			if err := docs.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
