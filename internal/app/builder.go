package app

import (
	"fmt"
	"strings"

	"tradeforge/internal/config"
	"tradeforge/internal/executor"
	"tradeforge/internal/feed"
	"tradeforge/internal/gateway/binance"
	"tradeforge/internal/gateway/bybit"
	"tradeforge/internal/ledger"
	"tradeforge/internal/logger"
	"tradeforge/internal/market"
	"tradeforge/internal/stream"
	httpapi "tradeforge/internal/transport/http"
)

// New builds the full object graph from config without starting anything:
// ledger store, price cache, exchange sources, connectors under a supervisor,
// executor, valuator, stream hub and the HTTP server.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := ledger.Open(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}

	cache := market.NewPriceCache()

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub()
	}
	onTick := func(t market.Tick) {
		cache.Put(t)
		if hub != nil {
			hub.Publish(t)
		}
	}

	policy := feed.RetryPolicy{
		Delay:       cfg.Feed.ReconnectDelay(),
		MaxAttempts: cfg.Feed.MaxReconnectAttempts,
	}
	sup := feed.NewSupervisor(
		feed.WithLivenessPolicy(feed.LivenessPolicy(cfg.Feed.LivenessPolicy)),
		feed.WithRestartCooldown(cfg.Feed.RestartCooldown()),
		feed.WithAutoRestart(cfg.Feed.AutoRestart),
	)
	for _, name := range cfg.Feed.Exchanges {
		source, err := buildSource(name, cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		conn := feed.NewConnector(source, cfg.Market.Symbols, policy, feed.WithTickHandler(onTick))
		sup.Register(conn)
	}

	exec := executor.New(store, cache, executor.Config{
		StalenessThreshold: cfg.Market.StalenessThreshold(),
		LockTimeout:        cfg.Trading.LockTimeout(),
		TradablePairs:      cfg.Market.Symbols,
	})
	val := valuatorFor(store, cache, cfg)

	srvCfg := httpapi.ServerConfig{
		Addr:            cfg.App.HTTPAddr,
		Executor:        exec,
		Portfolio:       val,
		Accounts:        store,
		Feeds:           sup,
		StartingBalance: cfg.Trading.StartingBalance,
	}
	if hub != nil {
		srvCfg.Stream = hub
	}
	srv, err := httpapi.NewServer(srvCfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		cfgPath:    cfgPath,
		store:      store,
		cache:      cache,
		hub:        hub,
		supervisor: sup,
		executor:   exec,
		httpSrv:    srv,
	}
	return a, nil
}

func buildSource(name string, cfg *config.Config) (market.Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		return binance.New(binance.Config{Buffer: cfg.Market.TickBuffer}), nil
	case "bybit":
		return bybit.New(bybit.Config{
			Endpoint: cfg.Feed.BybitEndpoint,
			Buffer:   cfg.Market.TickBuffer,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", name)
	}
}
