package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// OpenPositionInput carries the caller-supplied fields for a new position.
type OpenPositionInput struct {
	Symbol        string
	Side          domain.Side
	EntryPrice    float64
	Size          float64
	StopLossPrice *float64
}

// TradeService manages the position lifecycle outside the monitor: opening
// positions, manual closes, and reads for the API layer.
type TradeService struct {
	store     domain.TradeStore
	builder   domain.TxBuilder
	submitter domain.TxSubmitter
	bus       domain.SignalBus
	journal   domain.JournalStore // may be nil
	logger    *slog.Logger
}

// NewTradeService creates a TradeService. journal may be nil.
func NewTradeService(
	store domain.TradeStore,
	builder domain.TxBuilder,
	submitter domain.TxSubmitter,
	bus domain.SignalBus,
	journal domain.JournalStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		store:     store,
		builder:   builder,
		submitter: submitter,
		bus:       bus,
		journal:   journal,
		logger:    logger.With(slog.String("component", "trade_service")),
	}
}

// OpenPosition validates the input, assigns an ID, and records a new open
// position. The stop-loss, when present, must sit on the protective side of
// the entry price.
func (s *TradeService) OpenPosition(ctx context.Context, in OpenPositionInput) (domain.Position, error) {
	if err := validateOpenInput(in); err != nil {
		return domain.Position{}, err
	}

	pos := domain.Position{
		ID:            uuid.NewString(),
		Symbol:        strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:          in.Side,
		EntryPrice:    in.EntryPrice,
		Size:          in.Size,
		StopLossPrice: in.StopLossPrice,
		Status:        domain.PositionStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}

	if err := s.store.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("trade_service: create position: %w", err)
	}

	s.publish(ctx, map[string]any{
		"event":       domain.EventPositionOpened,
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"size":        pos.Size,
	})
	s.record(ctx, pos.ID, domain.EventPositionOpened, map[string]any{
		"symbol":      pos.Symbol,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"size":        pos.Size,
		"stop_loss":   in.StopLossPrice,
	})

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Float64("entry_price", pos.EntryPrice),
	)

	return pos, nil
}

// ClosePosition submits a manual close for an open position, bypassing the
// stop-loss check. It uses the same claim-then-submit workflow as the
// monitor, so a concurrent trigger and a manual close cannot both submit.
func (s *TradeService) ClosePosition(ctx context.Context, id string) (domain.Position, error) {
	claimed, err := s.store.TryTransition(ctx, id,
		domain.PositionStatusOpen, domain.PositionStatusTriggered, nil)
	if err != nil {
		return domain.Position{}, fmt.Errorf("trade_service: claim position %q: %w", id, err)
	}

	s.record(ctx, id, domain.EventPositionTriggered, map[string]any{
		"manual": true,
		"symbol": claimed.Symbol,
	})

	payload, err := s.builder.BuildClose(claimed)
	if err != nil {
		return s.failClose(ctx, claimed, fmt.Sprintf("build close transaction: %v", err), err)
	}

	txHash, err := s.submitter.Submit(ctx, payload)
	if err != nil {
		return s.failClose(ctx, claimed, fmt.Sprintf("submit close transaction: %v", err), err)
	}

	closed, err := s.store.TryTransition(ctx, id,
		domain.PositionStatusTriggered, domain.PositionStatusClosed,
		func(p *domain.Position) {
			p.CloseTxHash = txHash
			now := time.Now().UTC()
			p.ClosedAt = &now
		})
	if err != nil {
		return domain.Position{}, fmt.Errorf("trade_service: finalize close %q after tx %s: %w", id, txHash, err)
	}

	s.publish(ctx, map[string]any{
		"event":       domain.EventPositionClosed,
		"position_id": closed.ID,
		"symbol":      closed.Symbol,
		"side":        string(closed.Side),
		"tx_hash":     txHash,
		"manual":      true,
	})
	s.record(ctx, closed.ID, domain.EventPositionClosed, map[string]any{
		"manual":  true,
		"tx_hash": txHash,
	})

	s.logger.InfoContext(ctx, "position closed manually",
		slog.String("position_id", closed.ID),
		slog.String("tx_hash", txHash),
	)

	return closed, nil
}

// Get returns a single position.
func (s *TradeService) Get(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("trade_service: get position %q: %w", id, err)
	}
	return pos, nil
}

// List returns positions, newest first, optionally filtered by status.
func (s *TradeService) List(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error) {
	positions, err := s.store.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list positions: %w", err)
	}
	return positions, nil
}

// Delete removes a terminal position from the store. Open and triggered
// positions cannot be deleted; close or resolve them first.
func (s *TradeService) Delete(ctx context.Context, id string) error {
	pos, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("trade_service: get position %q: %w", id, err)
	}
	if !pos.Status.Terminal() {
		return fmt.Errorf("trade_service: delete position %q in status %s: %w",
			id, pos.Status, domain.ErrConflict)
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("trade_service: remove position %q: %w", id, err)
	}

	s.logger.InfoContext(ctx, "position deleted",
		slog.String("position_id", id),
		slog.String("status", string(pos.Status)),
	)
	return nil
}

func (s *TradeService) failClose(ctx context.Context, pos domain.Position, reason string, cause error) (domain.Position, error) {
	failed, trErr := s.store.TryTransition(ctx, pos.ID,
		domain.PositionStatusTriggered, domain.PositionStatusFailed,
		func(p *domain.Position) {
			p.FailureReason = reason
		})
	if trErr != nil {
		s.logger.ErrorContext(ctx, "marking position failed did not apply",
			slog.String("position_id", pos.ID),
			slog.String("error", trErr.Error()),
		)
		return domain.Position{}, fmt.Errorf("trade_service: close position %q: %w", pos.ID, cause)
	}

	s.publish(ctx, map[string]any{
		"event":       domain.EventPositionFailed,
		"position_id": failed.ID,
		"symbol":      failed.Symbol,
		"side":        string(failed.Side),
		"reason":      reason,
	})
	s.record(ctx, failed.ID, domain.EventPositionFailed, map[string]any{
		"manual": true,
		"reason": reason,
	})

	return failed, fmt.Errorf("trade_service: close position %q: %w", pos.ID, cause)
}

func validateOpenInput(in OpenPositionInput) error {
	symbol := strings.TrimSpace(in.Symbol)
	if symbol == "" {
		return fmt.Errorf("trade_service: symbol is required: %w", domain.ErrInvalidPosition)
	}
	if !in.Side.Valid() {
		return fmt.Errorf("trade_service: side %q is not long or short: %w", in.Side, domain.ErrInvalidPosition)
	}
	if in.EntryPrice <= 0 {
		return fmt.Errorf("trade_service: entry price must be positive: %w", domain.ErrInvalidPosition)
	}
	if in.Size <= 0 {
		return fmt.Errorf("trade_service: size must be positive: %w", domain.ErrInvalidPosition)
	}
	if in.StopLossPrice != nil {
		stop := *in.StopLossPrice
		if stop <= 0 {
			return fmt.Errorf("trade_service: stop-loss must be positive: %w", domain.ErrInvalidPosition)
		}
		switch in.Side {
		case domain.SideLong:
			if stop >= in.EntryPrice {
				return fmt.Errorf("trade_service: long stop-loss %.4f must be below entry %.4f: %w",
					stop, in.EntryPrice, domain.ErrInvalidPosition)
			}
		case domain.SideShort:
			if stop <= in.EntryPrice {
				return fmt.Errorf("trade_service: short stop-loss %.4f must be above entry %.4f: %w",
					stop, in.EntryPrice, domain.ErrInvalidPosition)
			}
		}
	}
	return nil
}

func (s *TradeService) publish(ctx context.Context, event map[string]any) {
	evt, _ := json.Marshal(event)
	if err := s.bus.Publish(ctx, domain.ChannelPositions, evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) record(ctx context.Context, positionID, event string, detail map[string]any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, positionID, event, detail); err != nil {
		s.logger.WarnContext(ctx, "journal write failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}
}
