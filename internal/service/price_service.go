package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// PriceService implements domain.PriceSource by fronting the upstream price
// feed with a cache. Quotes fresh within maxAge are served from the cache;
// everything else hits the feed and refills the cache. Cache failures are
// logged and ignored so a dead Redis never costs the monitor its prices.
type PriceService struct {
	feed   domain.PriceSource
	cache  domain.PriceCache // may be nil when Redis is not configured
	bus    domain.SignalBus
	maxAge time.Duration
	logger *slog.Logger
}

// NewPriceService creates a PriceService. cache may be nil.
func NewPriceService(
	feed domain.PriceSource,
	cache domain.PriceCache,
	bus domain.SignalBus,
	maxAge time.Duration,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		feed:   feed,
		cache:  cache,
		bus:    bus,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// GetPrice returns the current price for a symbol, preferring a fresh cached
// quote. Feed failures surface as wrapped domain.ErrSymbolUnavailable.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, symbol)
		if err == nil && time.Since(ts) <= s.maxAge {
			return price, nil
		}
	}

	price, err := s.feed.GetPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("price_service: %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	if s.cache != nil {
		if cacheErr := s.cache.SetPrice(ctx, symbol, price, now); cacheErr != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	// Publish the fresh quote so dashboards tracking live prices update too.
	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"symbol":    symbol,
		"price":     price,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelPrices, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish price update failed",
			slog.String("symbol", symbol),
			slog.String("error", pubErr.Error()),
		)
	}

	return price, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*PriceService)(nil)
