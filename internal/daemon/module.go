// Package daemon composes the sync core into a running process: profile
// lock, cache, REST client, workflow gate, live feed and the local
// projection API, wired together with fx lifecycle hooks.
package daemon

import (
	"context"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/config"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/httpapi"
	"github.com/civicgrid/complaintd/internal/lock"
	"github.com/civicgrid/complaintd/internal/logging"
	"github.com/civicgrid/complaintd/internal/model"
	"github.com/civicgrid/complaintd/internal/profile"
	"github.com/civicgrid/complaintd/internal/restapi"
	"github.com/civicgrid/complaintd/internal/snapshot"
	"github.com/civicgrid/complaintd/internal/store"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/civicgrid/complaintd/internal/workflow"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Profile     *config.Profile
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConnState,
			provideLock,
			provideCache,
			provideRESTClient,
			provideWorkflow,
			provideSnapshot,
			provideEngine,
			provideFeedManager,
			provideAPIServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConnState(b *bus.Bus) *connstate.Machine {
	return connstate.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CachePath(p.ProfileName)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRESTClient(p Params) *restapi.Client {
	return restapi.NewClient(p.Profile.APIURL, p.Profile.Token, nil)
}

func provideWorkflow() (*workflow.Engine, error) {
	return workflow.NewEngine(workflow.Default())
}

func provideSnapshot(p Params) *snapshot.Store {
	capacity := p.Profile.RetentionCap
	if capacity <= 0 {
		capacity = snapshot.DefaultCap
	}
	return snapshot.NewStore(capacity)
}

func provideEngine(snap *snapshot.Store, client *restapi.Client, wf *workflow.Engine, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(snap, client, client, wf, db, b, logger)
}

func provideFeedManager(p Params, client *restapi.Client, state *connstate.Machine, engine *intsync.Engine, logger *zap.Logger) (*feed.Manager, error) {
	feedURL, err := client.FeedURL(p.Profile.FeedPath)
	if err != nil {
		return nil, err
	}
	cfg := feed.Config{
		URL:              feedURL,
		Token:            client.Token(),
		HandshakeTimeout: p.Profile.HandshakeTimeout(),
		BackoffBase:      p.Profile.BackoffBase(),
		BackoffCap:       p.Profile.BackoffCap(),
		JitterMax:        p.Profile.JitterMax(),
	}
	return feed.NewManager(cfg, state, engine.HandleFeedEvent, logger), nil
}

// provideAPIServer builds the local projection API, or nil when the
// profile does not configure a listen address.
func provideAPIServer(p Params, engine *intsync.Engine, state *connstate.Machine, b *bus.Bus, logger *zap.Logger) *httpapi.Server {
	if p.Profile.Listen == "" {
		return nil
	}
	return httpapi.NewServer(p.Profile.Listen, engine, state, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, engine *intsync.Engine, mgr *feed.Manager, srv *httpapi.Server, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !model.Role(p.Profile.Role).Valid() {
				logger.Warn("unknown role, status changes will be denied", zap.String("role", p.Profile.Role))
			}

			engine.SetConnector(mgr)
			engine.WarmStart()

			if srv != nil {
				go func() {
					if err := srv.Start(); err != nil {
						logger.Error("projection api error", zap.Error(err))
					}
				}()
			}

			// The initial fetch may fail while the service is down; the
			// feed connects regardless and repairs the snapshot live.
			go func() {
				if err := engine.Start(context.Background()); err != nil {
					logger.Warn("initial fetch failed, serving cache until feed recovers", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if srv != nil {
				_ = srv.Stop(ctx)
			}
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
