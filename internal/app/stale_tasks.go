package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// StaleFailer fails tasks that have been processing for longer than maxAge.
type StaleFailer interface {
	FailStale(ctx context.Context, maxAge time.Duration) []domain.AITask
}

// StaleTaskSweeper periodically fails tasks whose worker went away without
// reporting completion.
type StaleTaskSweeper struct {
	tasks            StaleFailer
	maxProcessingAge time.Duration
	interval         time.Duration
}

func NewStaleTaskSweeper(tasks StaleFailer, maxProcessingAge, interval time.Duration) *StaleTaskSweeper {
	if tasks == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleTaskSweeper{
		tasks:            tasks,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *StaleTaskSweeper) Run(ctx context.Context) {
	if s == nil || s.tasks == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale task sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StaleTaskSweeper) sweepOnce(ctx context.Context) int {
	ctx, span := otel.Tracer("tasks.sweeper").Start(ctx, "StaleTaskSweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(attribute.Float64("tasks.max_processing_age_seconds", s.maxProcessingAge.Seconds()))

	failed := s.tasks.FailStale(ctx, s.maxProcessingAge)
	for _, t := range failed {
		slog.Warn("stale task marked failed",
			slog.String("task_id", t.ID),
			slog.String("task_type", t.Type),
			slog.Duration("max_age", s.maxProcessingAge))
	}
	span.SetAttributes(attribute.Int("tasks.total_marked_failed", len(failed)))
	return len(failed)
}
