package app

import (
	"context"
	"errors"
	"fmt"

	"tradeforge/internal/config"
	"tradeforge/internal/executor"
	"tradeforge/internal/feed"
	"tradeforge/internal/ledger"
	"tradeforge/internal/logger"
	"tradeforge/internal/market"
	"tradeforge/internal/stream"
	httpapi "tradeforge/internal/transport/http"
	"tradeforge/internal/valuator"

	"golang.org/x/sync/errgroup"
)

// App owns the wired components and their lifecycle.
type App struct {
	cfg     *config.Config
	cfgPath string

	store      *ledger.Store
	cache      *market.PriceCache
	hub        *stream.Hub
	supervisor *feed.Supervisor
	executor   *executor.Executor
	httpSrv    *httpapi.Server
	watcher    *config.Watcher
}

func valuatorFor(store *ledger.Store, cache *market.PriceCache, cfg *config.Config) *valuator.Valuator {
	return valuator.New(store, cache, cfg.Market.StalenessThreshold())
}

// Run starts feed supervision and the HTTP API and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.cfgPath != "" {
		w, err := config.Watch(a.cfgPath, a.applyReload)
		if err != nil {
			logger.Warnf("config hot-reload disabled: %v", err)
		} else {
			a.watcher = w
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		err := a.supervisor.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Infof("tradeforge running http=%s exchanges=%v symbols=%v",
		a.cfg.App.HTTPAddr, a.cfg.Feed.Exchanges, a.cfg.Market.Symbols)
	return group.Wait()
}

// applyReload picks up the reload-safe settings: tradable pairs and the
// price staleness threshold.
func (a *App) applyReload(cfg *config.Config) {
	a.executor.SetTradablePairs(cfg.Market.Symbols)
	a.executor.SetStalenessThreshold(cfg.Market.StalenessThreshold())
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("ledger store close failed: %v", err)
		}
	}
}
