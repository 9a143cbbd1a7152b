package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/events/redpanda"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/health"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
	"github.com/fairyhunter13/ai-orchestrator/internal/usecase"
)

// Runtime holds the wired services of one process.
type Runtime struct {
	Config       config.Config
	Catalog      config.Catalog
	Store        domain.Store
	Writer       *usecase.SnapshotWriter
	Orchestrator *usecase.Orchestrator
	Tasks        *usecase.TaskQueue
	Monitor      *usecase.Monitor
	Breakers     *ai.CircuitBreakerManager

	events     *redpanda.Publisher
	closeStore func()
}

// Build opens the store, restores persisted state and wires every use case.
func Build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	cat, err := config.LoadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("op=app.build: %w", err)
	}
	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=app.build: %w", err)
	}
	rt := &Runtime{Config: cfg, Catalog: cat, Store: store, closeStore: closeStore}

	var events domain.EventPublisher = domain.NopPublisher{}
	if cfg.EventsEnabled() {
		pub, err := redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("op=app.build: %w", err)
		}
		rt.events = pub
		events = pub
	}

	rt.Writer = usecase.NewSnapshotWriter(store, cfg.GetPersistRetryConfig())
	rt.Breakers = ai.NewCircuitBreakerManager(cfg.BreakerFailureThreshold, cfg.BreakerRecoveryTimeout)
	providers, models := BuildProviders(cfg, rt.Breakers)
	rt.Orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Providers: providers,
		Models:    models,
		Selector:  usecase.NewSelector(cat.SensitiveKeywords),
		Refusals:  ai.NewRefusalDetector(cat.RefusalPhrases),
		Tokens:    tokencount.NewCounter(),
	})
	rt.Tasks = usecase.NewTaskQueue(usecase.TaskQueueOptions{Writer: rt.Writer, Events: events})
	rt.Monitor = usecase.NewMonitor(cat.Services, usecase.MonitorOptions{
		Checker:     health.NewChecker(cfg.HealthCheckTimeout, nil),
		Writer:      rt.Writer,
		Events:      events,
		Retention:   cfg.LogRetention,
		ServiceName: cfg.OTELServiceName,
		Version:     cfg.AppVersion,
	})

	if err := rt.Tasks.Load(ctx); err != nil {
		slog.Warn("task ledger not restored, starting empty", slog.Any("error", err))
	}
	if err := rt.Monitor.LoadLogs(ctx); err != nil {
		slog.Warn("diagnostics log not restored, starting empty", slog.Any("error", err))
	}
	return rt, nil
}

// HTTPServer returns the handler set backed by this runtime.
func (rt *Runtime) HTTPServer() *httpserver.Server {
	var events Pinger
	if rt.events != nil {
		events = rt.events
	}
	return &httpserver.Server{
		Chat:        rt.Orchestrator,
		Tasks:       rt.Tasks,
		Diagnostics: rt.Monitor,
		Breakers:    rt.Breakers,
		Checks:      BuildReadinessChecks(rt.Store, events),
	}
}

// Close flushes pending snapshots, then releases the broker and the store.
func (rt *Runtime) Close(ctx context.Context) error {
	err := rt.Writer.Close(ctx)
	if errors.Is(err, usecase.ErrWriterClosed) {
		err = nil
	}
	if rt.events != nil {
		rt.events.Close()
	}
	if rt.closeStore != nil {
		rt.closeStore()
	}
	return err
}
