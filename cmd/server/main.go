// Command server starts the AI orchestrator HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/app"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI, task and diagnostics instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("orchestrator wired",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("events", cfg.EventsEnabled()),
		slog.Int("services", len(rt.Catalog.Services)),
		slog.Any("providers", rt.Orchestrator.Providers()))

	go app.NewStaleTaskSweeper(rt.Tasks, cfg.StaleTaskMaxAge, cfg.StaleTaskSweepInterval).Run(ctx)
	go app.RunDiagnosticsEvery(ctx, rt.Monitor, cfg.DiagnosticsInterval)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, rt.HTTPServer()),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	stop()
	if err := rt.Close(shutdownCtx); err != nil {
		slog.Error("failed to flush state on shutdown", slog.Any("error", err))
	}
	slog.Info("server stopped")
}
