package config

import "time"

// Config is the main configuration carrier.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Market  MarketConfig  `mapstructure:"market"`
	Trading TradingConfig `mapstructure:"trading"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
	DBPath   string `mapstructure:"db_path"`
}

// FeedConfig controls the exchange connectors and their supervisor.
type FeedConfig struct {
	Exchanges              []string `mapstructure:"exchanges"`
	ReconnectDelaySeconds  int      `mapstructure:"reconnect_delay_seconds"`
	MaxReconnectAttempts   int      `mapstructure:"max_reconnect_attempts"`
	RestartCooldownSeconds int      `mapstructure:"restart_cooldown_seconds"`
	LivenessPolicy         string   `mapstructure:"liveness_policy"` // "any" | "all"
	AutoRestart            bool     `mapstructure:"auto_restart"`
	BybitEndpoint          string   `mapstructure:"bybit_endpoint"`
}

func (f FeedConfig) ReconnectDelay() time.Duration {
	return time.Duration(f.ReconnectDelaySeconds) * time.Second
}

func (f FeedConfig) RestartCooldown() time.Duration {
	return time.Duration(f.RestartCooldownSeconds) * time.Second
}

type MarketConfig struct {
	Symbols          []string `mapstructure:"symbols"`
	StalenessSeconds int      `mapstructure:"staleness_seconds"`
	TickBuffer       int      `mapstructure:"tick_buffer"`
}

func (m MarketConfig) StalenessThreshold() time.Duration {
	return time.Duration(m.StalenessSeconds) * time.Second
}

// TradingConfig controls account provisioning and order execution limits.
type TradingConfig struct {
	StartingBalance   int64 `mapstructure:"starting_balance"` // minor units
	LockTimeoutMillis int   `mapstructure:"lock_timeout_ms"`
}

func (t TradingConfig) LockTimeout() time.Duration {
	return time.Duration(t.LockTimeoutMillis) * time.Millisecond
}

type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
