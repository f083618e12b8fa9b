package app

import (
	"context"
	"fmt"
	"time"

	"corral/internal/config"
	"corral/internal/coord"
	"corral/internal/feed"
	"corral/internal/gateway/sim"
	"corral/internal/logger"
	"corral/internal/risk"
	"corral/internal/scheduler"
	"corral/internal/store"
	statushttp "corral/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: config → dependencies →
// coordinator, feed source, schedulers and the status HTTP server.
type App struct {
	cfg     *config.Config
	db      *store.Store
	coord   *coord.Coordinator
	gate    *risk.Gate
	simGW   *sim.Gateway
	source  feed.Source
	httpSrv *statushttp.Server
	watcher *config.Watcher
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run starts all long-lived components and blocks until ctx is cancelled or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	a.coord.Start()
	defer a.coord.Stop()

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	if a.source != nil {
		group.Go(func() error {
			return a.source.Run(ctx, a.coord.Dispatch)
		})
	}

	group.Go(func() error {
		tick := scheduler.NewInterval(ctx, time.Duration(a.cfg.Bracket.WatchdogSeconds)*time.Second)
		tick.Start(func() {
			evt, err := coord.NewEnvelope(coord.EvtWatchdogTick, struct{}{})
			if err != nil {
				return
			}
			if err := a.coord.Dispatch(evt); err != nil {
				logger.Warnf("watchdog dispatch failed: %v", err)
			}
		})
		return nil
	})

	group.Go(func() error {
		boundary := scheduler.NewDayBoundary(ctx)
		boundary.Start(func(day string) {
			evt, err := coord.NewEnvelope(coord.EvtDayRollover, coord.DayRolloverPayload{Day: day})
			if err != nil {
				return
			}
			if err := a.coord.Dispatch(evt); err != nil {
				logger.Warnf("day rollover dispatch failed: %v", err)
			}
		})
		return nil
	})

	logger.Infof("corral running: feed=%s lanes=%d http=%s",
		a.cfg.Feed.Source, a.cfg.Coord.Lanes, a.cfg.App.HTTPAddr)

	err := group.Wait()
	if a.simGW != nil {
		a.simGW.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	return err
}

// SimGateway exposes the simulated gateway when running in sim/paper mode
// (nil otherwise). Used by replay harnesses.
func (a *App) SimGateway() *sim.Gateway {
	if a == nil {
		return nil
	}
	return a.simGW
}
