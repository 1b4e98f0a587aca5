package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/drsaint1/TradeGPT/internal/blob/s3"
	"github.com/drsaint1/TradeGPT/internal/bus"
	"github.com/drsaint1/TradeGPT/internal/cache/redis"
	"github.com/drsaint1/TradeGPT/internal/chain"
	"github.com/drsaint1/TradeGPT/internal/config"
	"github.com/drsaint1/TradeGPT/internal/crypto"
	"github.com/drsaint1/TradeGPT/internal/domain"
	"github.com/drsaint1/TradeGPT/internal/notify"
	"github.com/drsaint1/TradeGPT/internal/platform/pricefeed"
	"github.com/drsaint1/TradeGPT/internal/service"
	"github.com/drsaint1/TradeGPT/internal/store/memory"
	"github.com/drsaint1/TradeGPT/internal/store/postgres"
)

// Dependencies bundles every concrete implementation the application needs.
// Optional integrations (Redis, Postgres, S3) are nil when not configured.
type Dependencies struct {
	Store      domain.TradeStore
	Journal    domain.JournalStore
	PriceCache domain.PriceCache
	Bus        domain.SignalBus
	Prices     domain.PriceSource
	Builder    domain.TxBuilder
	Submitter  domain.TxSubmitter
	Archiver   *s3blob.Archiver
	Notifier   *notify.Notifier
}

// Wire constructs all dependency implementations from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Store: memory.NewTradeStore(),
	}

	// The signal bus rides Redis pub/sub when configured, so multiple
	// processes share one event stream; otherwise an in-process bus serves
	// the single-node deployment.
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		cacheTTL := time.Duration(cfg.Monitor.PriceCacheTTLSecs) * time.Second
		deps.PriceCache = redis.NewPriceCache(redisClient, cacheTTL)
		deps.Bus = redis.NewSignalBus(redisClient)
	} else {
		deps.Bus = bus.New()
	}

	// Postgres position journal.
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewJournalStore(pgClient.Pool())
	}

	// Market data: price feed client fronted by the cache-aside service.
	feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL, time.Duration(cfg.PriceFeed.TimeoutMs)*time.Millisecond)
	deps.Prices = service.NewPriceService(feed, deps.PriceCache, deps.Bus,
		time.Duration(cfg.Monitor.PriceCacheTTLSecs)*time.Second, logger)

	// Chain: transaction builder and EIP-155 submitter.
	builder, err := chain.NewBuilder(cfg.Chain.PositionManager, cfg.Chain.GasLimit)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: tx builder: %w", err)
	}
	deps.Builder = builder

	privateKey, err := crypto.Resolve(crypto.Source{
		Raw:      cfg.Chain.PrivateKey,
		File:     cfg.Chain.EncryptedKeyPath,
		Password: cfg.Chain.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load chain key: %w", err)
	}

	submitter, err := chain.NewSubmitter(cfg.Chain.RPCURL, privateKey, cfg.Chain.ChainID, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: tx submitter: %w", err)
	}
	closers = append(closers, submitter.Close)
	deps.Submitter = submitter

	// S3 archival of terminal positions.
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			deps.Store,
			s3blob.NewWriter(s3Client),
			time.Duration(cfg.S3.RetainHours)*time.Hour,
			time.Duration(cfg.S3.ArchiveEveryMins)*time.Minute,
			logger,
		)
	}

	// Operator notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
