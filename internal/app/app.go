// Package app wires together every concrete dependency (stores, caches, blob
// storage, broker, feed, notifications) and runs the worker, reconciler,
// archiver, and HTTP dashboard under one supervised goroutine group.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmarket/trademanager/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// the cleanup function returned by Wire.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks running the engine until ctx is
// canceled or a supervised goroutine returns an unrecoverable error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application", slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.cleanup = cleanup

	return a.RunEngine(ctx, deps)
}

// Close tears down all resources acquired during Wire. It is safe to call
// multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if a.cleanup == nil {
		return
	}
	a.logger.Info("shutting down application")
	a.cleanup()
	a.cleanup = nil
}
