package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// TaskQueueOptions configures a TaskQueue. Every field is optional.
type TaskQueueOptions struct {
	Writer *SnapshotWriter
	Events domain.EventPublisher
	Now    func() time.Time
	NewID  func() string
	// Logger receives persistence failures; nil means slog.Default().
	Logger *slog.Logger
}

// TaskQueue is the ledger of long-running generation tasks. It records
// lifecycle transitions only and never executes work.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []domain.AITask

	writer *SnapshotWriter
	events domain.EventPublisher
	now    func() time.Time
	newID  func() string
	log    *slog.Logger
}

// NewTaskQueue constructs an empty ledger.
func NewTaskQueue(opts TaskQueueOptions) *TaskQueue {
	q := &TaskQueue{writer: opts.Writer, events: opts.Events, now: opts.Now, newID: opts.NewID, log: opts.Logger}
	if q.log == nil {
		q.log = slog.Default()
	}
	if q.events == nil {
		q.events = domain.NopPublisher{}
	}
	if q.now == nil {
		q.now = func() time.Time { return time.Now().UTC() }
	}
	if q.newID == nil {
		q.newID = uuid.NewString
	}
	return q
}

// Load replaces the ledger with the snapshot stored in the persistence port.
func (q *TaskQueue) Load(ctx domain.Context) error {
	if q.writer == nil {
		return nil
	}
	var tasks []domain.AITask
	if _, err := q.writer.Load(ctx, KeyTasks, &tasks); err != nil {
		return fmt.Errorf("op=tasks.load: %w", err)
	}
	q.mu.Lock()
	q.tasks = tasks
	q.mu.Unlock()
	observability.LoggerFromContext(ctx).Info("task ledger restored", slog.Int("tasks", len(tasks)))
	return nil
}

// AddTask records a new pending task.
func (q *TaskQueue) AddTask(ctx domain.Context, taskType, name string, params map[string]any) (domain.AITask, error) {
	if taskType == "" || name == "" {
		return domain.AITask{}, fmt.Errorf("op=tasks.add: %w: type and name required", domain.ErrInvalidArgument)
	}
	t := domain.AITask{
		ID:        q.newID(),
		Type:      taskType,
		Name:      name,
		Status:    domain.TaskPending,
		CreatedAt: q.now(),
		Params:    params,
	}.Clone()

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.persistLocked()
	q.mu.Unlock()

	observability.AddTask(taskType)
	q.emit(ctx, "task.added", t)
	return t.Clone(), nil
}

// StartTask moves a pending task to processing.
func (q *TaskQueue) StartTask(ctx domain.Context, id string) (domain.AITask, error) {
	t, err := q.transition(id, domain.TaskProcessing, func(t *domain.AITask) {
		now := q.now()
		t.StartedAt = &now
		t.Progress = 0
	})
	if err != nil {
		return domain.AITask{}, fmt.Errorf("op=tasks.start: %w", err)
	}
	observability.StartTask(t.Type)
	q.emit(ctx, "task.started", t)
	return t, nil
}

// UpdateProgress raises the progress of a processing task. The value is
// clamped to [0,100] and never lowers the current progress.
func (q *TaskQueue) UpdateProgress(ctx domain.Context, id string, value int) (domain.AITask, error) {
	value = min(max(value, 0), 100)

	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return domain.AITask{}, fmt.Errorf("op=tasks.progress: %w: task %s", domain.ErrNotFound, id)
	}
	t := &q.tasks[i]
	if t.Status != domain.TaskProcessing {
		q.mu.Unlock()
		return domain.AITask{}, fmt.Errorf("op=tasks.progress: %w: task %s is %s", domain.ErrInvalidTransition, id, t.Status)
	}
	changed := value > t.Progress
	if changed {
		t.Progress = value
		q.persistLocked()
	}
	out := t.Clone()
	q.mu.Unlock()

	if changed {
		q.emit(ctx, "task.progress", out)
	}
	return out, nil
}

// CompleteTask marks a processing task completed with progress 100.
func (q *TaskQueue) CompleteTask(ctx domain.Context, id string, result map[string]any) (domain.AITask, error) {
	t, err := q.transition(id, domain.TaskCompleted, func(t *domain.AITask) {
		now := q.now()
		t.CompletedAt = &now
		t.Progress = 100
		t.Result = maps.Clone(result)
	})
	if err != nil {
		return domain.AITask{}, fmt.Errorf("op=tasks.complete: %w", err)
	}
	observability.FinishTask(t.Type, string(t.Status), true)
	q.emit(ctx, "task.completed", t)
	return t, nil
}

// FailTask marks a pending or processing task failed.
func (q *TaskQueue) FailTask(ctx domain.Context, id, reason string) (domain.AITask, error) {
	var wasProcessing bool
	t, err := q.transition(id, domain.TaskFailed, func(t *domain.AITask) {
		wasProcessing = t.Status == domain.TaskProcessing
		now := q.now()
		t.CompletedAt = &now
		t.Error = reason
	})
	if err != nil {
		return domain.AITask{}, fmt.Errorf("op=tasks.fail: %w", err)
	}
	observability.FinishTask(t.Type, string(t.Status), wasProcessing)
	q.emit(ctx, "task.failed", t)
	return t, nil
}

// CancelTask marks a pending or processing task cancelled.
func (q *TaskQueue) CancelTask(ctx domain.Context, id string) (domain.AITask, error) {
	var wasProcessing bool
	t, err := q.transition(id, domain.TaskCancelled, func(t *domain.AITask) {
		wasProcessing = t.Status == domain.TaskProcessing
		now := q.now()
		t.CompletedAt = &now
	})
	if err != nil {
		return domain.AITask{}, fmt.Errorf("op=tasks.cancel: %w", err)
	}
	observability.FinishTask(t.Type, string(t.Status), wasProcessing)
	q.emit(ctx, "task.cancelled", t)
	return t, nil
}

// RemoveTask deletes a task in any state.
func (q *TaskQueue) RemoveTask(ctx domain.Context, id string) error {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return fmt.Errorf("op=tasks.remove: %w: task %s", domain.ErrNotFound, id)
	}
	t := q.tasks[i]
	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
	q.persistLocked()
	q.mu.Unlock()

	if t.Status == domain.TaskProcessing {
		observability.FinishTask(t.Type, "removed", true)
	}
	q.emit(ctx, "task.removed", t)
	return nil
}

// ClearCompleted removes every finished task (completed, failed or cancelled)
// and reports how many were removed. Pending and processing tasks stay.
func (q *TaskQueue) ClearCompleted(ctx domain.Context) int {
	q.mu.Lock()
	kept := q.tasks[:0]
	var removed []domain.AITask
	for _, t := range q.tasks {
		if t.Status.Terminal() {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	// zero the tail so dropped tasks can be collected
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = domain.AITask{}
	}
	q.tasks = kept
	if len(removed) > 0 {
		q.persistLocked()
	}
	q.mu.Unlock()

	for _, t := range removed {
		q.emit(ctx, "task.removed", t)
	}
	return len(removed)
}

// GetTask returns one task by id.
func (q *TaskQueue) GetTask(id string) (domain.AITask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return domain.AITask{}, fmt.Errorf("op=tasks.get: %w: task %s", domain.ErrNotFound, id)
	}
	return q.tasks[i].Clone(), nil
}

// ListTasks returns every task in insertion order.
func (q *TaskQueue) ListTasks() []domain.AITask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.AITask, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Clone()
	}
	return out
}

// GetNextPending returns the oldest pending task by createdAt; insertion
// order breaks ties.
func (q *TaskQueue) GetNextPending() (domain.AITask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	best := -1
	for i, t := range q.tasks {
		if t.Status != domain.TaskPending {
			continue
		}
		if best < 0 || t.CreatedAt.Before(q.tasks[best].CreatedAt) {
			best = i
		}
	}
	if best < 0 {
		return domain.AITask{}, false
	}
	return q.tasks[best].Clone(), true
}

// GetRecentTasks returns at most limit tasks, newest createdAt first. Tasks
// created at the same instant are ordered newest insertion first. limit <= 0
// returns every task.
func (q *TaskQueue) GetRecentTasks(limit int) []domain.AITask {
	out := q.ListTasks()
	// reverse first so the stable sort keeps newer inserts ahead on ties
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FailStale fails processing tasks started before now-maxAge and returns them.
func (q *TaskQueue) FailStale(ctx domain.Context, maxAge time.Duration) []domain.AITask {
	cutoff := q.now().Add(-maxAge)
	var stale []string
	q.mu.Lock()
	for _, t := range q.tasks {
		if t.Status == domain.TaskProcessing && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			stale = append(stale, t.ID)
		}
	}
	q.mu.Unlock()

	out := make([]domain.AITask, 0, len(stale))
	for _, id := range stale {
		reason := fmt.Sprintf("task exceeded max processing age of %s", maxAge)
		t, err := q.FailTask(ctx, id, reason)
		if err != nil {
			// raced with a concurrent transition; nothing to do
			continue
		}
		out = append(out, t)
	}
	return out
}

// transition applies mutate and moves task id to next when the lifecycle allows it.
func (q *TaskQueue) transition(id string, next domain.TaskStatus, mutate func(*domain.AITask)) (domain.AITask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return domain.AITask{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	t := &q.tasks[i]
	if !t.Status.CanTransition(next) {
		return domain.AITask{}, fmt.Errorf("%w: task %s is %s, cannot become %s", domain.ErrInvalidTransition, id, t.Status, next)
	}
	mutate(t)
	t.Status = next
	q.persistLocked()
	return t.Clone(), nil
}

func (q *TaskQueue) indexLocked(id string) int {
	for i := range q.tasks {
		if q.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked enqueues a snapshot of the whole ledger. Caller holds q.mu.
func (q *TaskQueue) persistLocked() {
	if q.writer == nil {
		return
	}
	snap := make([]domain.AITask, len(q.tasks))
	for i, t := range q.tasks {
		snap[i] = t.Clone()
	}
	// after Close the process is shutting down and the last snapshot already went out
	if err := q.writer.Enqueue(KeyTasks, snap); err != nil && !errors.Is(err, ErrWriterClosed) {
		q.log.Error("failed to enqueue task snapshot", slog.Any("error", err))
	}
}

func (q *TaskQueue) emit(ctx domain.Context, typ string, t domain.AITask) {
	ev := domain.Event{Type: typ, Subject: t.ID, Payload: t}
	if err := q.events.Publish(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish task event",
			slog.String("event", typ),
			slog.String("task_id", t.ID),
			slog.Any("error", err))
	}
}
