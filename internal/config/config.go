// Package config defines the top-level configuration for the TradeGPT backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEGPT_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Chain     ChainConfig     `toml:"chain"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
}

// MonitorConfig holds the stop-loss monitor parameters.
type MonitorConfig struct {
	IntervalMs        int64 `toml:"interval_ms"`
	MaxPriceFetches   int   `toml:"max_price_fetches"` // concurrent symbol fetches per cycle
	PriceCacheTTLSecs int   `toml:"price_cache_ttl_secs"`
}

// Interval returns the cycle interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

// ChainConfig holds the RPC endpoint and signing parameters used to submit
// closing transactions.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	PositionManager  string `toml:"position_manager"` // contract address
	PrivateKey       string `toml:"private_key"`      // raw hex; prefer the encrypted path
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	GasLimit         uint64 `toml:"gas_limit"`
}

// PriceFeedConfig holds the upstream market data API parameters.
type PriceFeedConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMs int64  `toml:"timeout_ms"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis;
// the price cache is skipped and events flow over the in-process bus instead.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the position journal. An
// empty DSN and Host disables journaling.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a journal connection is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// S3Config holds S3-compatible object storage parameters for terminal
// position archival. An empty bucket disables archival.
type S3Config struct {
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	ForcePathStyle   bool   `toml:"force_path_style"`
	ArchiveEveryMins int    `toml:"archive_every_mins"`
	RetainHours      int    `toml:"retain_hours"` // terminal positions younger than this stay in the store
}

// Enabled reports whether archival is configured.
func (s S3Config) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sane development defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        4000,
			CORSOrigins: []string{"*"},
		},
		Monitor: MonitorConfig{
			IntervalMs:        15000,
			MaxPriceFetches:   8,
			PriceCacheTTLSecs: 10,
		},
		Chain: ChainConfig{
			ChainID:  50312, // Somnia testnet
			GasLimit: 300000,
		},
		PriceFeed: PriceFeedConfig{
			TimeoutMs: 5000,
		},
		Postgres: PostgresConfig{
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		S3: S3Config{
			ArchiveEveryMins: 60,
			RetainHours:      72,
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is internally consistent and that
// everything the core needs is present. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Monitor.IntervalMs <= 0 {
		return fmt.Errorf("config: monitor.interval_ms must be positive, got %d", c.Monitor.IntervalMs)
	}
	if c.Monitor.MaxPriceFetches <= 0 {
		return fmt.Errorf("config: monitor.max_price_fetches must be positive, got %d", c.Monitor.MaxPriceFetches)
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if strings.TrimSpace(c.Chain.PositionManager) == "" {
		return fmt.Errorf("config: chain.position_manager is required")
	}
	if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
		return fmt.Errorf("config: chain.private_key or chain.encrypted_key_path is required")
	}
	if strings.TrimSpace(c.PriceFeed.BaseURL) == "" {
		return fmt.Errorf("config: pricefeed.base_url is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
