package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// DiagnosticsRunner is the part of the monitor the periodic runner drives.
type DiagnosticsRunner interface {
	RunFullDiagnostics(ctx context.Context) []domain.AIServiceStatus
}

// RunDiagnosticsEvery runs a full diagnostics pass on every tick until ctx is
// done. A non-positive interval disables the loop.
func RunDiagnosticsEvery(ctx context.Context, m DiagnosticsRunner, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("diagnostics runner stopping")
			return
		case <-ticker.C:
			s := domain.Summarize(m.RunFullDiagnostics(ctx))
			slog.Debug("scheduled diagnostics finished",
				slog.Int("online", s.Online), slog.Int("offline", s.Offline), slog.Int("error", s.Error))
		}
	}
}
