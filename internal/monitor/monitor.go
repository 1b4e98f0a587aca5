// Package monitor implements the stop-loss monitoring engine: a recurring
// evaluation cycle that reads open positions, fetches prices, decides whether
// protective exits have fired, drives the closing transaction workflow, and
// broadcasts every state change over the signal bus.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// DefaultInterval is the cycle interval used when none is configured.
const DefaultInterval = 15 * time.Second

// Status is the externally visible snapshot of the monitor. Reads never block
// on an in-progress cycle and never trigger one.
type Status struct {
	Running             bool       `json:"running"`
	IntervalMs          int64      `json:"interval_ms"`
	LastCycleAt         *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleDurationMs int64      `json:"last_cycle_duration_ms"`
	LastError           string     `json:"last_error,omitempty"`
	PositionsEvaluated  int64      `json:"positions_evaluated"`
	TriggersFired       int64      `json:"triggers_fired"`

	// StuckTriggered counts positions left in the triggered status by a
	// store write failure after submission. They need operator attention;
	// the monitor never re-evaluates them.
	StuckTriggered int `json:"stuck_triggered"`
}

// Alerter delivers operator notifications. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the monitor's tunables.
type Config struct {
	Interval        time.Duration
	MaxPriceFetches int // concurrent symbol fetches per cycle
}

// Monitor owns the recurring stop-loss evaluation cycle. Construct one per
// process with New; instances are independent, so tests can run several
// side by side.
type Monitor struct {
	store     domain.TradeStore
	prices    domain.PriceSource
	builder   domain.TxBuilder
	submitter domain.TxSubmitter
	bus       domain.SignalBus
	journal   domain.JournalStore // may be nil
	alerter   Alerter             // may be nil
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex // guards running / stopCh
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	status   Status
}

// New creates a Monitor. journal and alerter may be nil.
func New(
	store domain.TradeStore,
	prices domain.PriceSource,
	builder domain.TxBuilder,
	submitter domain.TxSubmitter,
	bus domain.SignalBus,
	journal domain.JournalStore,
	alerter Alerter,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxPriceFetches <= 0 {
		cfg.MaxPriceFetches = 8
	}
	return &Monitor{
		store:     store,
		prices:    prices,
		builder:   builder,
		submitter: submitter,
		bus:       bus,
		journal:   journal,
		alerter:   alerter,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "stoploss_monitor")),
	}
}

// Start launches the recurring cycle. It is idempotent: calling Start while
// the monitor is already running has no effect. ctx bounds scheduling only;
// cycle I/O runs on a detached context so in-flight trigger handling reaches a
// terminal status even during shutdown.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("start ignored: monitor already running")
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true
	stopCh := m.stopCh
	m.mu.Unlock()

	m.statusMu.Lock()
	m.status.Running = true
	m.status.IntervalMs = m.cfg.Interval.Milliseconds()
	m.statusMu.Unlock()

	cycleCtx := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Covers the ctx.Done exit too, so Status stays honest and a later
		// Start can restart without an intervening Stop.
		defer m.markStopped()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("monitor started",
			slog.Duration("interval", m.cfg.Interval),
		)

		for {
			select {
			case <-ticker.C:
				// Cycles run sequentially on this goroutine, so a slow
				// cycle delays the next tick instead of overlapping it.
				m.RunCycle(cycleCtx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels future cycles and waits for an in-flight cycle to complete.
// Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	m.logger.Info("monitor stopped")
}

// markStopped clears the running flags. Safe to call from both the scheduler
// goroutine and Stop.
func (m *Monitor) markStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.statusMu.Lock()
	m.status.Running = false
	m.statusMu.Unlock()
}

// Status returns a copy of the last-committed status snapshot.
func (m *Monitor) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// RunCycle executes one full evaluate-and-act pass. It never panics out and
// never returns an error; cycle-fatal failures are captured into the status
// snapshot so the scheduler keeps ticking.
func (m *Monitor) RunCycle(ctx context.Context) {
	start := time.Now()

	positions, err := m.store.ListOpenWithStopLoss(ctx)
	if err != nil {
		m.finishCycle(ctx, start, 0, fmt.Errorf("list open positions: %w", err))
		return
	}
	if len(positions) == 0 {
		m.finishCycle(ctx, start, 0, nil)
		return
	}

	prices := m.fetchPrices(ctx, distinctSymbols(positions))

	var cycleErr error
	if len(prices) == 0 {
		// Not one symbol produced a quote; everything stays open and is
		// retried next cycle.
		cycleErr = errors.New("market data unavailable for all symbols")
	}

	var evaluated int64
	var wg sync.WaitGroup
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		evaluated++

		if pos.StopLossBreached(price) {
			wg.Add(1)
			go func(p domain.Position, price float64) {
				defer wg.Done()
				m.handleTrigger(ctx, p, price)
			}(pos, price)
			continue
		}

		m.recordEvaluation(ctx, pos.ID, price)
	}
	wg.Wait()

	m.finishCycle(ctx, start, evaluated, cycleErr)
}

// fetchPrices queries the price source once per distinct symbol, with bounded
// concurrency. Failed symbols are logged and omitted; their positions are
// skipped this cycle.
func (m *Monitor) fetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	var mu sync.Mutex
	out := make(map[string]float64, len(symbols))

	g := new(errgroup.Group)
	g.SetLimit(m.cfg.MaxPriceFetches)
	for _, symbol := range symbols {
		g.Go(func() error {
			price, err := m.prices.GetPrice(ctx, symbol)
			if err != nil {
				m.logger.WarnContext(ctx, "price fetch failed, skipping symbol this cycle",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// recordEvaluation stamps lastEvaluatedAt/lastEvaluatedPrice on a still-open
// position. A conflict just means the position moved on concurrently.
func (m *Monitor) recordEvaluation(ctx context.Context, id string, price float64) {
	now := time.Now().UTC()
	_, err := m.store.TryTransition(ctx, id,
		domain.PositionStatusOpen, domain.PositionStatusOpen,
		func(p *domain.Position) {
			p.LastEvaluatedAt = &now
			p.LastEvaluatedPrice = &price
		})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		m.logger.WarnContext(ctx, "recording evaluation failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// handleTrigger owns the triggered-exit workflow for one position. Each
// position is processed independently; failures here never propagate to
// sibling positions or the cycle.
func (m *Monitor) handleTrigger(ctx context.Context, pos domain.Position, price float64) {
	now := time.Now().UTC()

	claimed, err := m.store.TryTransition(ctx, pos.ID,
		domain.PositionStatusOpen, domain.PositionStatusTriggered,
		func(p *domain.Position) {
			p.LastEvaluatedAt = &now
			p.LastEvaluatedPrice = &price
		})
	if errors.Is(err, domain.ErrConflict) {
		// Someone else already claimed this position. Expected under
		// concurrency, not a fault.
		return
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "claiming position for trigger failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	m.statusMu.Lock()
	m.status.TriggersFired++
	m.statusMu.Unlock()

	m.logger.InfoContext(ctx, "stop-loss triggered",
		slog.String("position_id", claimed.ID),
		slog.String("symbol", claimed.Symbol),
		slog.String("side", string(claimed.Side)),
		slog.Float64("stop_loss", *claimed.StopLossPrice),
		slog.Float64("price", price),
	)
	m.record(ctx, claimed.ID, domain.EventPositionTriggered, map[string]any{
		"symbol":    claimed.Symbol,
		"side":      string(claimed.Side),
		"stop_loss": *claimed.StopLossPrice,
		"price":     price,
	})

	payload, err := m.builder.BuildClose(claimed)
	if err != nil {
		m.failPosition(ctx, claimed, price, fmt.Sprintf("build close transaction: %v", err))
		return
	}

	txHash, err := m.submitter.Submit(ctx, payload)
	if err != nil {
		m.failPosition(ctx, claimed, price, fmt.Sprintf("submit close transaction: %v", err))
		return
	}

	closed, err := m.store.TryTransition(ctx, claimed.ID,
		domain.PositionStatusTriggered, domain.PositionStatusClosed,
		func(p *domain.Position) {
			p.CloseTxHash = txHash
			t := time.Now().UTC()
			p.ClosedAt = &t
		})
	if err != nil {
		// The close tx is on chain but the record could not be finalized.
		// The position stays triggered and is surfaced via StuckTriggered.
		m.logger.ErrorContext(ctx, "position stuck in triggered after submission",
			slog.String("position_id", claimed.ID),
			slog.String("tx_hash", txHash),
			slog.String("error", err.Error()),
		)
		m.record(ctx, claimed.ID, domain.EventMonitorError, map[string]any{
			"reason":  "finalize after submission failed",
			"tx_hash": txHash,
			"error":   err.Error(),
		})
		return
	}

	m.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionClosed,
		"position_id": closed.ID,
		"symbol":      closed.Symbol,
		"side":        string(closed.Side),
		"price":       price,
		"tx_hash":     txHash,
	})
	m.record(ctx, closed.ID, domain.EventPositionClosed, map[string]any{
		"price":   price,
		"tx_hash": txHash,
	})
	m.alert(ctx, domain.EventPositionClosed,
		"Stop-loss executed",
		fmt.Sprintf("%s %s closed at %.4f (tx %s)", closed.Symbol, closed.Side, price, txHash))

	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", closed.ID),
		slog.String("tx_hash", txHash),
	)
}

// failPosition routes a triggered position to the terminal failed status.
// Failed positions are never retried automatically: stop-loss failures are
// financially sensitive, so they stay visible for manual intervention.
func (m *Monitor) failPosition(ctx context.Context, pos domain.Position, price float64, reason string) {
	failed, err := m.store.TryTransition(ctx, pos.ID,
		domain.PositionStatusTriggered, domain.PositionStatusFailed,
		func(p *domain.Position) {
			p.FailureReason = reason
		})
	if err != nil {
		m.logger.ErrorContext(ctx, "marking position failed did not apply",
			slog.String("position_id", pos.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.ErrorContext(ctx, "stop-loss trigger failed",
		slog.String("position_id", failed.ID),
		slog.String("symbol", failed.Symbol),
		slog.String("reason", reason),
	)
	m.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionFailed,
		"position_id": failed.ID,
		"symbol":      failed.Symbol,
		"side":        string(failed.Side),
		"price":       price,
		"reason":      reason,
	})
	m.record(ctx, failed.ID, domain.EventPositionFailed, map[string]any{
		"price":  price,
		"reason": reason,
	})
	m.alert(ctx, domain.EventPositionFailed,
		"Stop-loss FAILED",
		fmt.Sprintf("%s %s: %s. Manual intervention required.", failed.Symbol, failed.Side, reason))
}

// finishCycle commits the status snapshot for this cycle.
func (m *Monitor) finishCycle(ctx context.Context, start time.Time, evaluated int64, cycleErr error) {
	stuck := 0
	if counts, err := m.store.CountByStatus(ctx); err == nil {
		stuck = counts[domain.PositionStatusTriggered]
	}

	now := time.Now().UTC()

	m.statusMu.Lock()
	m.status.LastCycleAt = &now
	m.status.LastCycleDurationMs = time.Since(start).Milliseconds()
	m.status.PositionsEvaluated += evaluated
	m.status.StuckTriggered = stuck
	if cycleErr != nil {
		m.status.LastError = cycleErr.Error()
	}
	m.statusMu.Unlock()

	if cycleErr != nil {
		m.logger.ErrorContext(ctx, "cycle completed with error",
			slog.String("error", cycleErr.Error()),
			slog.Int64("evaluated", evaluated),
		)
		m.publish(ctx, domain.ChannelMonitor, map[string]any{
			"event": domain.EventMonitorError,
			"error": cycleErr.Error(),
		})
		m.alert(ctx, domain.EventMonitorError, "Monitor cycle error", cycleErr.Error())
		return
	}

	m.logger.DebugContext(ctx, "cycle completed",
		slog.Int64("evaluated", evaluated),
		slog.Duration("duration", time.Since(start)),
	)
}

func (m *Monitor) publish(ctx context.Context, channel string, event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, channel, payload); err != nil {
		m.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) record(ctx context.Context, positionID, event string, detail map[string]any) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ctx, positionID, event, detail); err != nil {
		m.logger.WarnContext(ctx, "journal write failed",
			slog.String("position_id", positionID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) alert(ctx context.Context, event, title, message string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "operator alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func distinctSymbols(positions []domain.Position) []string {
	seen := make(map[string]struct{}, len(positions))
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		out = append(out, p.Symbol)
	}
	return out
}
