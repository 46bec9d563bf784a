// Package daemon composes the profile daemon: store, blob uploader,
// chat core, notification dispatcher, and the local HTTP surface.
package daemon

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/api"
	"github.com/chatit/chatit/internal/blob"
	"github.com/chatit/chatit/internal/blob/fsstore"
	"github.com/chatit/chatit/internal/blob/miniostore"
	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/config"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/docstore/mongostore"
	"github.com/chatit/chatit/internal/docstore/sqlstore"
	"github.com/chatit/chatit/internal/identity"
	"github.com/chatit/chatit/internal/lock"
	"github.com/chatit/chatit/internal/logging"
	"github.com/chatit/chatit/internal/notify"
	"github.com/chatit/chatit/internal/profile"
	"github.com/chatit/chatit/internal/reconcile"
	"github.com/chatit/chatit/internal/register"
	"github.com/chatit/chatit/internal/send"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Listen  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideIdentity,
			provideStore,
			provideUploader,
			provideSink,
			provideEngine,
			providePipeline,
			provideRegistrar,
			provideDispatcher,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideIdentity(p Params) (identity.Provider, error) {
	return identity.NewFileProvider(profile.IdentityPath(p.Profile))
}

func provideStore(p Params, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		s, err := mongostore.Open(context.Background(), mongostore.Config{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
		}, b, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("driver", "mongo"), zap.String("database", cfg.Store.MongoDatabase))
		return s, nil
	case "sqlite", "":
		dbPath := profile.DBPath(p.Profile)
		s, err := sqlstore.Open(dbPath, b)
		if err != nil {
			return nil, err
		}
		result, err := s.Migrate()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if result.Changed {
			logger.Info("migrations applied", zap.Uint("version", result.Version))
		} else {
			logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		logger.Info("store initialized", zap.String("driver", "sqlite"), zap.String("path", dbPath))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func provideUploader(p Params, cfg *config.Config, logger *zap.Logger) (blob.Uploader, error) {
	switch cfg.Blob.Driver {
	case "s3":
		s, err := miniostore.New(miniostore.Config{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("blob store initialized", zap.String("driver", "s3"), zap.String("bucket", cfg.Blob.Bucket))
		return s, nil
	case "fs", "":
		dir := profile.MediaDir(p.Profile)
		logger.Info("blob store initialized", zap.String("driver", "fs"), zap.String("dir", dir))
		return fsstore.New(dir), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}

func provideSink(cfg *config.Config, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.Notify.Driver {
	case "nats":
		s, err := notify.NewNATSSink(cfg.Notify.URL, cfg.Notify.Subject)
		if err != nil {
			return nil, err
		}
		logger.Info("notification sink initialized", zap.String("driver", "nats"), zap.String("subject", cfg.Notify.Subject))
		return s, nil
	case "log", "":
		return notify.NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Notify.Driver)
	}
}

func provideEngine(store docstore.Store, b *bus.Bus, logger *zap.Logger) *reconcile.Engine {
	return reconcile.New(store, b, logger)
}

func providePipeline(store docstore.Store, uploader blob.Uploader, ids identity.Provider, b *bus.Bus, logger *zap.Logger) *send.Pipeline {
	return send.New(store, uploader, ids, b, logger)
}

func provideRegistrar(store docstore.Store, uploader blob.Uploader, ids identity.Provider, logger *zap.Logger) *register.Registrar {
	return register.New(store, uploader, ids, logger)
}

func provideDispatcher(b *bus.Bus, sink notify.Sink, ids identity.Provider, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(b, sink, ids, logger)
}

func provideHandlers(
	registrar *register.Registrar,
	pipeline *send.Pipeline,
	engine *reconcile.Engine,
	store docstore.Store,
	ids identity.Provider,
	b *bus.Bus,
	logger *zap.Logger,
) *api.Handlers {
	return api.New(registrar, pipeline, engine, store, ids, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	store docstore.Store,
	engine *reconcile.Engine,
	dispatcher *notify.Dispatcher,
	sink notify.Sink,
	ids identity.Provider,
	logger *zap.Logger,
) {
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Notification dispatcher listens before anything can write.
			dispatcher.Start(dispatchCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// The chat view follows the provisioned identity, if any.
			if uid, ok := ids.CurrentUID(); ok {
				if err := engine.Subscribe(context.Background(), uid); err != nil {
					logger.Error("view subscribe failed", zap.Error(err))
				}
			} else {
				logger.Info("no identity provisioned, register to start the chat view")
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			engine.Unsubscribe()
			cancelDispatch()
			dispatcher.Stop()
			srv.Stop(ctx)
			if closer, ok := sink.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					logger.Warn("error closing notification sink", zap.Error(err))
				}
			}
			if err := store.Close(); err != nil {
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
