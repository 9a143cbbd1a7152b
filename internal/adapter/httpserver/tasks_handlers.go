package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// AddTaskHandler creates a pending task.
func (s *Server) AddTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addTaskRequest
		if verrs, err := decodeAndValidate(w, r, &req, false); err != nil {
			writeError(w, r, err, verrs)
			return
		}
		t, err := s.Tasks.AddTask(r.Context(), req.Type, req.Name, req.Params)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/tasks/"+t.ID)
		writeJSON(w, http.StatusCreated, t)
	}
}

// ListTasksHandler returns tasks newest first; ?limit=0 or no limit returns all.
func (s *Server) ListTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, r, err, map[string]string{"limit": "min"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": s.Tasks.GetRecentTasks(limit)})
	}
}

// NextTaskHandler returns the oldest pending task, or 204 when none is waiting.
func (s *Server) NextTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		t, ok := s.Tasks.GetNextPending()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// GetTaskHandler returns one task.
func (s *Server) GetTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := s.Tasks.GetTask(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// RemoveTaskHandler deletes a task in any state.
func (s *Server) RemoveTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Tasks.RemoveTask(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClearCompletedHandler drops finished tasks (completed, failed, cancelled) and reports how many went.
func (s *Server) ClearCompletedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"removed": s.Tasks.ClearCompleted(r.Context())})
	}
}

type taskActionFunc func(w http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error)

// taskAction wraps a lifecycle transition with the shared id lookup and
// response handling.
func (s *Server) taskAction(fn taskActionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, details, err := fn(w, r, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, details)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) startTask(_ http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error) {
	t, err := s.Tasks.StartTask(r.Context(), id)
	return t, nil, err
}

func (s *Server) progressTask(w http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error) {
	var req progressRequest
	if verrs, err := decodeAndValidate(w, r, &req, false); err != nil {
		return domain.AITask{}, verrs, err
	}
	t, err := s.Tasks.UpdateProgress(r.Context(), id, *req.Progress)
	return t, nil, err
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error) {
	var req completeRequest
	if verrs, err := decodeAndValidate(w, r, &req, true); err != nil {
		return domain.AITask{}, verrs, err
	}
	t, err := s.Tasks.CompleteTask(r.Context(), id, req.Result)
	return t, nil, err
}

func (s *Server) failTask(w http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error) {
	var req failRequest
	if verrs, err := decodeAndValidate(w, r, &req, false); err != nil {
		return domain.AITask{}, verrs, err
	}
	t, err := s.Tasks.FailTask(r.Context(), id, req.Error)
	return t, nil, err
}

func (s *Server) cancelTask(_ http.ResponseWriter, r *http.Request, id string) (domain.AITask, map[string]string, error) {
	t, err := s.Tasks.CancelTask(r.Context(), id)
	return t, nil, err
}
