// Package app owns the application lifecycle: it wires the stores, caches,
// chain clients, services, monitor, and HTTP/WebSocket server together, runs
// them, and tears everything down in order on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drsaint1/TradeGPT/internal/config"
	"github.com/drsaint1/TradeGPT/internal/monitor"
	"github.com/drsaint1/TradeGPT/internal/server"
	"github.com/drsaint1/TradeGPT/internal/server/handler"
	"github.com/drsaint1/TradeGPT/internal/server/ws"
	"github.com/drsaint1/TradeGPT/internal/service"
)

const shutdownTimeout = 15 * time.Second

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the monitor, websocket hub, archiver,
// and HTTP server, and blocks until ctx is cancelled. Shutdown order matters:
// the monitor stops first so an in-flight cycle finishes before the server
// stops answering, then the HTTP server drains.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting tradegpt backend",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	trades := service.NewTradeService(deps.Store, deps.Builder, deps.Submitter, deps.Bus, deps.Journal, a.logger)

	mon := monitor.New(deps.Store, deps.Prices, deps.Builder, deps.Submitter,
		deps.Bus, deps.Journal, deps.Notifier, monitor.Config{
			Interval:        a.cfg.Monitor.Interval(),
			MaxPriceFetches: a.cfg.Monitor.MaxPriceFetches,
		}, a.logger)

	hub := ws.NewHub(deps.Bus, func() any { return mon.Status() }, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(mon),
		Trades: handler.NewTradeHandler(trades, a.logger),
		Prices: handler.NewPriceHandler(deps.Prices, a.logger),
	}, hub, a.logger)

	go hub.Run(ctx)
	if deps.Archiver != nil {
		go deps.Archiver.Run(ctx)
	}
	mon.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			mon.Stop()
			return fmt.Errorf("app: server: %w", err)
		}
	}

	// Let the in-flight cycle reach a terminal state before anything else
	// goes away.
	mon.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}

	a.logger.Info("tradegpt backend stopped")
	return nil
}
