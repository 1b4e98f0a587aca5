package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/drsaint1/TradeGPT/internal/domain"
	"github.com/drsaint1/TradeGPT/internal/service"
)

// TradeService defines the methods the trade handler requires.
type TradeService interface {
	OpenPosition(ctx context.Context, in service.OpenPositionInput) (domain.Position, error)
	ClosePosition(ctx context.Context, id string) (domain.Position, error)
	Get(ctx context.Context, id string) (domain.Position, error)
	List(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error)
	Delete(ctx context.Context, id string) error
}

// TradeHandler serves the position REST endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger.With(slog.String("handler", "trades")),
	}
}

// openTradeRequest is the POST /api/trades body.
type openTradeRequest struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	EntryPrice    float64  `json:"entry_price"`
	Size          float64  `json:"size"`
	StopLossPrice *float64 `json:"stop_loss_price"`
}

// listTradesResponse wraps the list response.
type listTradesResponse struct {
	Trades []domain.Position `json:"trades"`
}

// ListTrades returns all positions, optionally filtered by status.
// GET /api/trades?status=open
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	status := domain.PositionStatus(r.URL.Query().Get("status"))

	trades, err := h.trades.List(r.Context(), status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// GetTrade returns a single position.
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	trade, err := h.trades.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// OpenTrade opens a new position.
// POST /api/trades
func (h *TradeHandler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	trade, err := h.trades.OpenPosition(r.Context(), service.OpenPositionInput{
		Symbol:        req.Symbol,
		Side:          domain.Side(req.Side),
		EntryPrice:    req.EntryPrice,
		Size:          req.Size,
		StopLossPrice: req.StopLossPrice,
	})
	if err != nil {
		writeDomainError(w, err, "failed to open trade")
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

// DeleteTrade resolves a position: an open position is closed on chain, a
// terminal position is removed from the store. Triggered positions are in
// flight and cannot be touched.
// DELETE /api/trades/{id}
func (h *TradeHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	trade, err := h.trades.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get trade")
		return
	}

	switch {
	case trade.Status == domain.PositionStatusOpen:
		closed, err := h.trades.ClosePosition(r.Context(), id)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "manual close failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			writeDomainError(w, err, "failed to close trade")
			return
		}
		writeJSON(w, http.StatusOK, closed)

	case trade.Status.Terminal():
		if err := h.trades.Delete(r.Context(), id); err != nil {
			writeDomainError(w, err, "failed to delete trade")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})

	default:
		writeError(w, http.StatusConflict, "trade close is in flight")
	}
}
