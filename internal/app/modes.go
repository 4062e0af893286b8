package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmarket/trademanager/internal/eventlog"
	"github.com/openmarket/trademanager/internal/executor"
	"github.com/openmarket/trademanager/internal/reconciler"
	"github.com/openmarket/trademanager/internal/server/handler"
	"github.com/openmarket/trademanager/internal/server/middleware"
	"github.com/openmarket/trademanager/internal/worker"
)

// RunEngine wires the Worker, Reconciler, archival pass, and HTTP dashboard
// server and runs them under one supervised goroutine group until ctx is
// canceled or one of them returns an unrecoverable error.
func (a *App) RunEngine(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine")

	if err := deps.Feed.Connect(ctx); err != nil {
		return fmt.Errorf("app: feed connect: %w", err)
	}

	evLog := eventlog.New(deps.RuleStore, a.logger)

	exec := executor.New(
		deps.RuleStore, deps.Broker, deps.LockManager, deps.RateLimiter, deps.Notifier, evLog,
		a.cfg.Engine.SlippageStopLoss, a.cfg.Engine.SlippageTakeProfit, a.logger,
	)

	w := worker.New(
		deps.RuleStore, deps.Feed, deps.Broker, exec, deps.SignalBus, deps.Notifier, evLog,
		a.cfg.Engine.PositionRefreshInterval.Duration, a.cfg.Engine.EvaluationEventRate.Duration, a.logger,
	)

	recon := reconciler.New(deps.RuleStore, deps.Feed, deps.SignalBus, a.cfg.Engine.ReconcileInterval.Duration, a.logger)

	archiver := eventlog.NewArchiver(deps.Archiver, deps.RuleStore, deps.EventStore, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return recon.Run(ctx) })
	g.Go(func() error { return a.runArchiver(ctx, archiver) })

	if a.cfg.Server.Enabled {
		srv := a.buildServer(w, w, deps)
		g.Go(func() error { return a.runServer(ctx, srv) })
	}

	return g.Wait()
}

// runArchiver runs the archive-then-trim pass on a fixed interval until ctx
// is canceled.
func (a *App) runArchiver(ctx context.Context, archiver *eventlog.Archiver) error {
	ticker := time.NewTicker(a.cfg.Engine.ArchiveInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			archiver.Run(ctx, time.Now().UTC(), a.cfg.Engine.ArchiveRetention.Duration)
		}
	}
}

// buildServer assembles the HTTP dashboard mux: worker status/positions and
// read-only rule/trade/event listings, wrapped in CORS and logging
// middleware.
func (a *App) buildServer(statusProvider handler.WorkerStatusProvider, positionsProvider handler.PositionsProvider, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	healthHandler := handler.NewHealthHandler(a.logger,
		handler.DependencyCheck{Name: "redis", Ping: deps.RedisClient.Ping},
		handler.DependencyCheck{Name: "s3", Ping: deps.S3Client.Health},
	)
	statusHandler := handler.NewStatusHandler(statusProvider)
	positionsHandler := handler.NewPositionsHandler(positionsProvider)
	rulesHandler := handler.NewRulesHandler(deps.RuleStore)
	tradesHandler := handler.NewTradesHandler(deps.RuleStore)
	eventsHandler := handler.NewEventsHandler(deps.RuleStore)
	archiveHandler := handler.NewArchiveHandler(deps.BlobReader)

	mux.HandleFunc("GET /api/health", healthHandler.HealthCheck)
	mux.HandleFunc("GET /health/worker", statusHandler.GetWorkerStatus)
	mux.HandleFunc("GET /api/positions", positionsHandler.ListPositions)
	mux.HandleFunc("GET /api/rules", rulesHandler.ListRules)
	mux.HandleFunc("GET /api/trades", tradesHandler.ListTrades)
	mux.HandleFunc("GET /api/events", eventsHandler.ListEvents)
	mux.HandleFunc("GET /api/archive", archiveHandler.ListArchive)

	var h http.Handler = mux
	h = middleware.Logging(a.logger)(h)
	h = middleware.CORS(a.cfg.Server.CORSOrigins)(h)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: h,
	}
}

// runServer starts srv and shuts it down gracefully when ctx is canceled.
func (a *App) runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "dashboard server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
