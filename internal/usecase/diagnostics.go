package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// DefaultLogRetention bounds the diagnostics log when no retention is configured.
const DefaultLogRetention = 500

// MonitorOptions configures a Monitor. Checker is required.
type MonitorOptions struct {
	Checker     domain.HealthChecker
	Writer      *SnapshotWriter
	Events      domain.EventPublisher
	Retention   int
	ServiceName string
	Version     string
	Now         func() time.Time
	NewID       func() string
}

// Monitor tracks the health of the configured backends and keeps an
// append-only diagnostics log capped at the retention size.
type Monitor struct {
	checker domain.HealthChecker
	writer  *SnapshotWriter
	events  domain.EventPublisher
	info    systemInfo
	now     func() time.Time
	newID   func() string

	runMu sync.Mutex

	mu        sync.RWMutex
	services  []domain.AIServiceStatus
	logs      []domain.DiagnosticLogEntry
	retention int
}

// NewMonitor builds a Monitor with every service offline until first checked.
func NewMonitor(services []domain.ServiceConfig, opts MonitorOptions) *Monitor {
	m := &Monitor{
		checker:   opts.Checker,
		writer:    opts.Writer,
		events:    opts.Events,
		retention: opts.Retention,
		now:       opts.Now,
		newID:     opts.NewID,
		info:      newSystemInfo(opts.ServiceName, opts.Version),
	}
	if m.events == nil {
		m.events = domain.NopPublisher{}
	}
	if m.retention <= 0 {
		m.retention = DefaultLogRetention
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = func() string { return ulid.Make().String() }
	}
	m.services = make([]domain.AIServiceStatus, 0, len(services))
	for _, s := range services {
		m.services = append(m.services, domain.NewServiceStatus(s))
	}
	return m
}

// LoadLogs restores the diagnostics log from the persistence port.
func (m *Monitor) LoadLogs(ctx domain.Context) error {
	if m.writer == nil {
		return nil
	}
	var logs []domain.DiagnosticLogEntry
	if _, err := m.writer.Load(ctx, KeyDiagnosticLogs, &logs); err != nil {
		return fmt.Errorf("op=diagnostics.load_logs: %w", err)
	}
	m.mu.Lock()
	m.logs = nil
	m.appendLocked(logs...)
	m.mu.Unlock()
	return nil
}

// RunFullDiagnostics checks every service concurrently and returns their
// statuses once all probes have finished. Concurrent runs are serialized.
// Failures are recorded as statuses and log entries, never returned.
func (m *Monitor) RunFullDiagnostics(ctx domain.Context) []domain.AIServiceStatus {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "Monitor.RunFullDiagnostics")
	defer span.End()
	start := time.Now()

	m.mu.Lock()
	for i := range m.services {
		m.services[i].Status = domain.ServiceChecking
	}
	targets := m.copyServicesLocked()
	m.mu.Unlock()

	results := make([]domain.AIServiceStatus, len(targets))
	var wg sync.WaitGroup
	for i, svc := range targets {
		wg.Add(1)
		go func(i int, svc domain.AIServiceStatus) {
			defer wg.Done()
			results[i] = m.probe(ctx, svc)
		}(i, svc)
	}
	wg.Wait()

	summary := domain.Summarize(results)
	entries := make([]domain.DiagnosticLogEntry, 0, len(results)+1)
	for _, r := range results {
		entries = append(entries, m.entryFor(r))
	}
	entries = append(entries, m.summaryEntry(summary))

	m.mu.Lock()
	for i, r := range results {
		m.services[i] = r
	}
	m.appendLocked(entries...)
	m.persistLocked()
	out := m.copyServicesLocked()
	m.mu.Unlock()

	elapsed := time.Since(start)
	observability.ObserveDiagnosticsRun(elapsed)
	span.SetAttributes(
		attribute.Int("diagnostics.online", summary.Online),
		attribute.Int("diagnostics.offline", summary.Offline),
		attribute.Int("diagnostics.error", summary.Error),
	)
	observability.LoggerFromContext(ctx).Info("diagnostics completed",
		slog.Int("services", len(out)),
		slog.Int("online", summary.Online),
		slog.Int("offline", summary.Offline),
		slog.Int("error", summary.Error),
		slog.Duration("duration", elapsed))
	m.emit(ctx, domain.Event{Type: "diagnostics.completed", Subject: "diagnostics", Payload: summary})
	return out
}

// CheckService probes a single configured service by id.
func (m *Monitor) CheckService(ctx domain.Context, id string) (domain.AIServiceStatus, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.mu.Lock()
	idx := -1
	for i := range m.services {
		if m.services[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return domain.AIServiceStatus{}, fmt.Errorf("op=diagnostics.check: %w: service %s", domain.ErrNotFound, id)
	}
	m.services[idx].Status = domain.ServiceChecking
	target := copyStatus(m.services[idx])
	m.mu.Unlock()

	r := m.probe(ctx, target)

	m.mu.Lock()
	m.services[idx] = r
	m.appendLocked(m.entryFor(r))
	m.persistLocked()
	m.mu.Unlock()
	return copyStatus(r), nil
}

// probe runs one check and guarantees a terminal status.
func (m *Monitor) probe(ctx domain.Context, svc domain.AIServiceStatus) domain.AIServiceStatus {
	r := m.checker.CheckService(ctx, svc)
	switch r.Status {
	case domain.ServiceOnline, domain.ServiceOffline, domain.ServiceError:
	default:
		r.Status = domain.ServiceError
		if r.Error == "" {
			r.Error = "health check returned no result"
		}
	}
	if r.LastChecked == nil {
		now := m.now()
		r.LastChecked = &now
	}
	observability.ObserveService(r.ID, r.Status == domain.ServiceOnline, r.Latency)
	return r
}

func (m *Monitor) entryFor(r domain.AIServiceStatus) domain.DiagnosticLogEntry {
	e := domain.DiagnosticLogEntry{ID: m.newID(), Timestamp: m.now(), Service: r.ID}
	switch r.Status {
	case domain.ServiceOnline:
		e.Level = domain.LogSuccess
		e.Message = fmt.Sprintf("%s online (%d ms)", r.Name, r.Latency.Milliseconds())
		if r.Version != "" {
			e.Details = "version " + r.Version
		}
	case domain.ServiceOffline:
		e.Level = domain.LogWarning
		e.Message = r.Name + " offline"
		e.Details = r.Error
	default:
		e.Level = domain.LogError
		e.Message = r.Name + " error"
		e.Details = r.Error
	}
	return e
}

func (m *Monitor) summaryEntry(s domain.DiagnosticsSummary) domain.DiagnosticLogEntry {
	level := domain.LogSuccess
	if s.Offline+s.Error > 0 {
		level = domain.LogWarning
	}
	return domain.DiagnosticLogEntry{
		ID:        m.newID(),
		Timestamp: m.now(),
		Level:     level,
		Service:   "system",
		Message:   FormatSummary(s),
	}
}

// FormatSummary renders the "<n> online / <n> offline / <n> error" line.
func FormatSummary(s domain.DiagnosticsSummary) string {
	return fmt.Sprintf("%d online / %d offline / %d error", s.Online, s.Offline, s.Error)
}

// Statuses returns a copy of the current service statuses in catalog order.
func (m *Monitor) Statuses() []domain.AIServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyServicesLocked()
}

// Logs returns a copy of the diagnostics log, oldest first.
func (m *Monitor) Logs() []domain.DiagnosticLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DiagnosticLogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

// ClearLogs empties the diagnostics log and persists the empty log.
func (m *Monitor) ClearLogs(ctx domain.Context) {
	m.mu.Lock()
	m.logs = nil
	m.persistLocked()
	m.mu.Unlock()
	m.emit(ctx, domain.Event{Type: "diagnostics.logs_cleared", Subject: "diagnostics"})
}

// Summary counts the current statuses.
func (m *Monitor) Summary() domain.DiagnosticsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Summarize(m.services)
}

// appendLocked appends entries and evicts the oldest beyond retention.
func (m *Monitor) appendLocked(entries ...domain.DiagnosticLogEntry) {
	m.logs = append(m.logs, entries...)
	if over := len(m.logs) - m.retention; over > 0 {
		kept := make([]domain.DiagnosticLogEntry, m.retention)
		copy(kept, m.logs[over:])
		m.logs = kept
	}
}

func (m *Monitor) persistLocked() {
	if m.writer == nil {
		return
	}
	snap := make([]domain.DiagnosticLogEntry, len(m.logs))
	copy(snap, m.logs)
	if err := m.writer.Enqueue(KeyDiagnosticLogs, snap); err != nil && !errors.Is(err, ErrWriterClosed) {
		slog.Error("failed to enqueue diagnostics snapshot", slog.Any("error", err))
	}
}

func (m *Monitor) copyServicesLocked() []domain.AIServiceStatus {
	out := make([]domain.AIServiceStatus, len(m.services))
	for i, s := range m.services {
		out[i] = copyStatus(s)
	}
	return out
}

func (m *Monitor) emit(ctx domain.Context, ev domain.Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish diagnostics event",
			slog.String("event", ev.Type),
			slog.Any("error", err))
	}
}

func copyStatus(s domain.AIServiceStatus) domain.AIServiceStatus {
	out := s
	if s.LastChecked != nil {
		v := *s.LastChecked
		out.LastChecked = &v
	}
	if s.Capabilities != nil {
		out.Capabilities = append([]string(nil), s.Capabilities...)
	}
	return out
}
