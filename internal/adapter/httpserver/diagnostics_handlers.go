package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// RunDiagnosticsHandler probes every service and returns the fresh statuses.
func (s *Server) RunDiagnosticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := s.Diagnostics.RunFullDiagnostics(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"services": services,
			"summary":  domain.Summarize(services),
		})
	}
}

// CheckServiceHandler probes a single service.
func (s *Server) CheckServiceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Diagnostics.CheckService(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ServicesHandler returns the last known statuses without probing.
func (s *Server) ServicesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"services": s.Diagnostics.Statuses(),
			"summary":  s.Diagnostics.Summary(),
		})
	}
}

func (s *Server) LogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"logs": s.Diagnostics.Logs()})
	}
}

func (s *Server) ClearLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Diagnostics.ClearLogs(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReportHandler renders the diagnostics report as plain text, or as HTML
// with ?format=html.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch f := r.URL.Query().Get("format"); f {
		case "", "text":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Content-Disposition", `inline; filename="diagnostics.txt"`)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s.Diagnostics.ExportReport()))
		case "html":
			doc, err := s.Diagnostics.ExportHTML()
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(doc))
		default:
			writeError(w, r, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidArgument, f), map[string]string{"format": "oneof"})
		}
	}
}
