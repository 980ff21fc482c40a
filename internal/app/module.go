// Package app composes the client: transport, cache, pager, refetch engine,
// snapshotter and sender, behind an api.Service.
package app

import (
	"context"
	"fmt"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/config"
	"github.com/matheus3301/opsms/internal/lock"
	"github.com/matheus3301/opsms/internal/logging"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/profile"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/sendstate"
	"github.com/matheus3301/opsms/internal/store"
	intsync "github.com/matheus3301/opsms/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
	// Exclusive takes the profile lock so only one instance runs.
	Exclusive bool
	// Stderr mirrors logs to stderr; Verbose lowers the level to debug.
	Stderr  bool
	Verbose bool
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("opsms",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideClient,
			provideCache,
			provideSendStates,
			providePager,
			provideEngine,
			provideSnapshotter,
			provideSender,
			provideService,
		),
		fx.Invoke(registerLifecycle),
	)
}

// New builds the fx application with fx's own events logged through zap.
func New(p Params, opts ...fx.Option) *fx.App {
	return fx.New(
		Module(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Options(opts...),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if p.Verbose {
		level = zapcore.DebugLevel
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, logging.Options{Stderr: p.Stderr, Level: level})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	if !p.Exclusive {
		return nil, nil
	}
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Debug("migrations up to date", zap.Uint("version", result.Version))
	}
	return db, nil
}

func provideClient(p Params, logger *zap.Logger) *openphone.Client {
	return openphone.NewClient(
		openphone.WithBaseURL(p.Config.BaseURL),
		openphone.WithTimeout(p.Config.RequestTimeout()),
		openphone.WithLogger(logger.Named("openphone")),
	)
}

func provideCache(b *bus.Bus, logger *zap.Logger) *querycache.Store {
	return querycache.New(b, logger.Named("cache"))
}

func provideSendStates(b *bus.Bus) *sendstate.Registry {
	return sendstate.NewRegistry(b)
}

func providePager(p Params, cache *querycache.Store, client *openphone.Client, logger *zap.Logger) *intsync.Pager {
	return intsync.NewPager(cache, client, p.Config.PageSize, logger.Named("pager"))
}

func provideEngine(pager *intsync.Pager, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(pager, logger.Named("engine"))
}

func provideSnapshotter(db *store.DB, cache *querycache.Store, b *bus.Bus, logger *zap.Logger) *intsync.Snapshotter {
	return intsync.NewSnapshotter(db, cache, b, logger.Named("snapshot"))
}

func provideSender(p Params, cache *querycache.Store, client *openphone.Client, states *sendstate.Registry, db *store.DB, logger *zap.Logger) *outbox.Sender {
	opts := []outbox.Option{outbox.WithJournal(db)}
	if p.Config.AllowConcurrentSends {
		opts = append(opts, outbox.AllowConcurrentSends())
	}
	return outbox.NewSender(cache, client, states, logger.Named("outbox"), opts...)
}

func provideService(p Params, client *openphone.Client, cache *querycache.Store, pager *intsync.Pager, sender *outbox.Sender, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Deps{
		Directory: client,
		Cache:     cache,
		Pager:     pager,
		Sender:    sender,
		SendLog:   db,
		Bus:       b,
		PageSize:  p.Config.PageSize,
		Logger:    logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, engine *intsync.Engine, snapshotter *intsync.Snapshotter, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if n, err := db.AbandonPending(); err != nil {
				return fmt.Errorf("abandon pending sends: %w", err)
			} else if n > 0 {
				logger.Warn("sends from a previous run never settled", zap.Int64("count", n))
			}

			n, err := snapshotter.Hydrate()
			if err != nil {
				return err
			}
			logger.Info("cache hydrated", zap.Int("conversations", n))

			engine.Start(ctx)
			snapshotter.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			engine.Stop()
			snapshotter.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
