package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEGPT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEGPT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "TRADEGPT_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility with the hosted deployment
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEGPT_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADEGPT_API_KEY")

	setInt64(&cfg.Monitor.IntervalMs, "TRADEGPT_MONITOR_INTERVAL_MS")
	setInt(&cfg.Monitor.MaxPriceFetches, "TRADEGPT_MONITOR_MAX_PRICE_FETCHES")
	setInt(&cfg.Monitor.PriceCacheTTLSecs, "TRADEGPT_MONITOR_PRICE_CACHE_TTL_SECS")

	setStr(&cfg.Chain.RPCURL, "TRADEGPT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.RPCURL, "SOMNIA_RPC_URL") // compatibility alias
	setInt64(&cfg.Chain.ChainID, "TRADEGPT_CHAIN_ID")
	setStr(&cfg.Chain.PositionManager, "TRADEGPT_CHAIN_POSITION_MANAGER")
	setStr(&cfg.Chain.PrivateKey, "TRADEGPT_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "TRADEGPT_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "TRADEGPT_CHAIN_KEY_PASSWORD")
	setUint64(&cfg.Chain.GasLimit, "TRADEGPT_CHAIN_GAS_LIMIT")

	setStr(&cfg.PriceFeed.BaseURL, "TRADEGPT_PRICEFEED_BASE_URL")
	setInt64(&cfg.PriceFeed.TimeoutMs, "TRADEGPT_PRICEFEED_TIMEOUT_MS")

	setStr(&cfg.Redis.Addr, "TRADEGPT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEGPT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEGPT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEGPT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEGPT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEGPT_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "TRADEGPT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEGPT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEGPT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEGPT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEGPT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEGPT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEGPT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEGPT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEGPT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEGPT_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "TRADEGPT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEGPT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEGPT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEGPT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEGPT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEGPT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEGPT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveEveryMins, "TRADEGPT_S3_ARCHIVE_EVERY_MINS")
	setInt(&cfg.S3.RetainHours, "TRADEGPT_S3_RETAIN_HOURS")

	setStr(&cfg.Notify.TelegramToken, "TRADEGPT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEGPT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEGPT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEGPT_NOTIFY_EVENTS")

	setStr(&cfg.LogLevel, "TRADEGPT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
