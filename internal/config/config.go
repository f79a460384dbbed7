package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if c.App.DBPath == "" {
		c.App.DBPath = "data/tradeforge.db"
	}
	if len(c.Feed.Exchanges) == 0 {
		c.Feed.Exchanges = []string{"binance", "bybit"}
	}
	if c.Feed.ReconnectDelaySeconds <= 0 {
		c.Feed.ReconnectDelaySeconds = 3
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		c.Feed.MaxReconnectAttempts = 10
	}
	if c.Feed.RestartCooldownSeconds <= 0 {
		c.Feed.RestartCooldownSeconds = 30
	}
	if c.Feed.LivenessPolicy == "" {
		c.Feed.LivenessPolicy = "any"
	}
	if len(c.Market.Symbols) == 0 {
		c.Market.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if c.Market.StalenessSeconds <= 0 {
		// mirrors the 60s TTL the cache entries effectively carry
		c.Market.StalenessSeconds = 60
	}
	if c.Market.TickBuffer <= 0 {
		c.Market.TickBuffer = 1024
	}
	if c.Trading.StartingBalance <= 0 {
		c.Trading.StartingBalance = 1_000_000
	}
	if c.Trading.LockTimeoutMillis <= 0 {
		c.Trading.LockTimeoutMillis = 5000
	}
}

func validate(c *Config) error {
	switch strings.ToLower(c.Feed.LivenessPolicy) {
	case "any", "all":
	default:
		return fmt.Errorf("feed.liveness_policy must be \"any\" or \"all\", got %q", c.Feed.LivenessPolicy)
	}
	for _, ex := range c.Feed.Exchanges {
		switch strings.ToLower(ex) {
		case "binance", "bybit":
		default:
			return fmt.Errorf("feed.exchanges contains unsupported exchange %q", ex)
		}
	}
	return nil
}
