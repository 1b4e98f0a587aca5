package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// PriceHandler serves current market prices.
type PriceHandler struct {
	prices domain.PriceSource
	logger *slog.Logger
}

func NewPriceHandler(prices domain.PriceSource, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger.With(slog.String("handler", "prices")),
	}
}

// GetPrice returns the current price for a symbol.
// GET /api/prices/{symbol}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := h.prices.GetPrice(r.Context(), symbol)
	if err != nil {
		h.logger.WarnContext(r.Context(), "price lookup failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "failed to get price")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"price":     price,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
