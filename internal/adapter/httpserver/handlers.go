package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// ChatService routes a conversation to a backend.
type ChatService interface {
	Chat(ctx context.Context, msgs []domain.Message, mode domain.ProviderID, sysContext string) (domain.AIResponse, error)
	Providers() []domain.ProviderID
}

// TaskLedger is the task lifecycle surface exposed over HTTP.
type TaskLedger interface {
	AddTask(ctx context.Context, taskType, name string, params map[string]any) (domain.AITask, error)
	StartTask(ctx context.Context, id string) (domain.AITask, error)
	UpdateProgress(ctx context.Context, id string, value int) (domain.AITask, error)
	CompleteTask(ctx context.Context, id string, result map[string]any) (domain.AITask, error)
	FailTask(ctx context.Context, id, reason string) (domain.AITask, error)
	CancelTask(ctx context.Context, id string) (domain.AITask, error)
	RemoveTask(ctx context.Context, id string) error
	ClearCompleted(ctx context.Context) int
	GetTask(id string) (domain.AITask, error)
	GetNextPending() (domain.AITask, bool)
	GetRecentTasks(limit int) []domain.AITask
}

// Diagnostics is the health monitor surface exposed over HTTP.
type Diagnostics interface {
	RunFullDiagnostics(ctx context.Context) []domain.AIServiceStatus
	CheckService(ctx context.Context, id string) (domain.AIServiceStatus, error)
	Statuses() []domain.AIServiceStatus
	Logs() []domain.DiagnosticLogEntry
	ClearLogs(ctx context.Context)
	Summary() domain.DiagnosticsSummary
	ExportReport() string
	ExportHTML() (string, error)
}

// BreakerReporter exposes circuit breaker state per provider.
type BreakerReporter interface {
	GetAllStats() []ai.BreakerStats
}

// ReadyCheck is one named dependency probe for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Chat        ChatService
	Tasks       TaskLedger
	Diagnostics Diagnostics
	Breakers    BreakerReporter
	Checks      []ReadyCheck
}

// Routes registers the /v1 API on r. Mutating routes go through mutate so the
// caller can attach rate limiting to them only.
func (s *Server) Routes(r chi.Router, mutate func(chi.Router)) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(w chi.Router) {
			if mutate != nil {
				mutate(w)
			}
			w.Post("/chat", s.ChatHandler())
			w.Post("/tasks", s.AddTaskHandler())
			w.Post("/tasks/{id}/start", s.taskAction(s.startTask))
			w.Post("/tasks/{id}/progress", s.taskAction(s.progressTask))
			w.Post("/tasks/{id}/complete", s.taskAction(s.completeTask))
			w.Post("/tasks/{id}/fail", s.taskAction(s.failTask))
			w.Post("/tasks/{id}/cancel", s.taskAction(s.cancelTask))
			w.Delete("/tasks/completed", s.ClearCompletedHandler())
			w.Delete("/tasks/{id}", s.RemoveTaskHandler())
			w.Post("/diagnostics/run", s.RunDiagnosticsHandler())
			w.Post("/diagnostics/services/{id}/check", s.CheckServiceHandler())
			w.Delete("/diagnostics/logs", s.ClearLogsHandler())
		})
		v1.Get("/tasks", s.ListTasksHandler())
		v1.Get("/tasks/next", s.NextTaskHandler())
		v1.Get("/tasks/{id}", s.GetTaskHandler())
		v1.Get("/diagnostics/services", s.ServicesHandler())
		v1.Get("/diagnostics/logs", s.LogsHandler())
		v1.Get("/diagnostics/report", s.ReportHandler())
		v1.Get("/providers", s.ProvidersHandler())
	})
}

// ChatHandler answers POST /v1/chat with a single AIResponse.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if verrs, err := decodeAndValidate(w, r, &req, false); err != nil {
			writeError(w, r, err, verrs)
			return
		}
		mode, ok := domain.ParseProviderID(req.Mode)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidArgument, req.Mode), map[string]string{"mode": "oneof"})
			return
		}
		resp, err := s.Chat.Chat(r.Context(), req.Messages, mode, req.Context)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ProvidersHandler lists configured providers and their breaker state.
func (s *Server) ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := map[string]any{"providers": s.Chat.Providers()}
		if s.Breakers != nil {
			out["breakers"] = s.Breakers.GetAllStats()
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ReadyzHandler runs every readiness check with a shared two second budget.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		st := http.StatusOK
		for _, c := range s.Checks {
			if err := c.Check(ctx); err != nil {
				checks = append(checks, check{Name: c.Name, Details: err.Error()})
				st = http.StatusServiceUnavailable
				continue
			}
			checks = append(checks, check{Name: c.Name, OK: true})
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// HealthzHandler reports liveness only.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidArgument)
	}
	return n, nil
}
