package daemon

import (
	"context"

	"github.com/helia-im/helia/internal/bus"
	"github.com/helia-im/helia/internal/cipher"
	"github.com/helia-im/helia/internal/config"
	"github.com/helia-im/helia/internal/directory"
	"github.com/helia-im/helia/internal/home"
	"github.com/helia-im/helia/internal/jobs"
	"github.com/helia-im/helia/internal/lock"
	"github.com/helia-im/helia/internal/logging"
	"github.com/helia-im/helia/internal/receive"
	"github.com/helia-im/helia/internal/status"
	"github.com/helia-im/helia/internal/store"
	"github.com/helia-im/helia/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved runtime configuration passed to the fx module.
// Gateway binds the session-encryption implementation; the sync core only
// consumes its contract.
type Params struct {
	ConfigPath string // empty = ~/.helia/config.toml
	Gateway    cipher.Gateway
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
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
			provideGateway,
			provideDirectory,
			provideTransport,
			provideSender,
			provideQueue,
			provideReceive,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = home.ConfigPath()
	}
	return config.Load(path)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(home.LogPath(cfg.Account.UserID), cfg.Account.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := home.EnsureDir(cfg.Account.UserID); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", cfg.Account.UserID))
	l, err := lock.Acquire(home.AccountDir(cfg.Account.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := home.DBPath(cfg.Account.UserID)
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
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGateway(p Params) cipher.Gateway {
	return p.Gateway
}

func provideDirectory(cfg *config.Config, logger *zap.Logger) directory.API {
	return directory.NewClient(cfg.Transport.API, logger)
}

func provideTransport(cfg *config.Config, logger *zap.Logger) *transport.WSClient {
	return transport.NewWSClient(cfg.Transport.URL, nil, logger)
}

func provideSender(ws *transport.WSClient) transport.Sender {
	return ws
}

func provideQueue(cfg *config.Config, ws *transport.WSClient, machine *status.Machine, logger *zap.Logger) *jobs.Queue {
	return jobs.New(cfg.Jobs.Concurrency, ws.IsConnected, machine.Authenticated, logger)
}

func provideReceive(db *store.DB, queue *jobs.Queue, gateway cipher.Gateway, dir directory.API,
	sender transport.Sender, machine *status.Machine, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *receive.Service {
	return receive.New(db, queue, gateway, dir, sender, machine, b,
		cfg.Receive, cfg.Account.UserID, cfg.Account.SessionID, logger)
}

func registerLifecycle(lc fx.Lifecycle, ws *transport.WSClient, svc *receive.Service,
	queue *jobs.Queue, machine *status.Machine, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ws.SetHandler(svc.HandleFrame)
			ws.OnConnect = func() {
				_ = machine.Transition(status.Ready)
				queue.Resume()
				queue.Submit(jobs.Job{
					ID:     "list-pending",
					Action: "list-pending",
					Run: func(ctx context.Context) error {
						return ws.Send(ctx, transport.NewListPending(0))
					},
				})
				svc.TriggerDrain()
			}
			ws.OnDisconnect = func() {
				queue.Suspend()
				_ = machine.Transition(status.Reconnecting)
			}

			_ = machine.Transition(status.Connecting)
			svc.Start(context.Background())
			ws.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			ws.Stop()
			svc.Stop()
			queue.Close()
			if err := db.Close(); err != nil {
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
