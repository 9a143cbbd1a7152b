package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Persisted document keys.
const (
	KeyTasks          = "tasks"
	KeyDiagnosticLogs = "diagnostic_logs"
)

// SnapshotSchemaVersion is written into every envelope.
const SnapshotSchemaVersion = 1

const saveAttemptTimeout = 10 * time.Second

// ErrWriterClosed is returned by Enqueue after Close.
var ErrWriterClosed = errors.New("snapshot writer closed")

type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	Items         json.RawMessage `json:"items"`
}

// SnapshotWriter serializes full-document writes to the persistence port.
// Each key has at most one writer goroutine; snapshots enqueued while a write
// is in flight coalesce so only the latest one is written next.
type SnapshotWriter struct {
	store domain.Store
	retry config.RetryConfig

	mu      sync.Mutex
	pending map[string][]byte
	running map[string]bool
	active  int
	idle    chan struct{}
	closed  bool
}

// NewSnapshotWriter constructs a SnapshotWriter over store.
func NewSnapshotWriter(store domain.Store, retry config.RetryConfig) *SnapshotWriter {
	idle := make(chan struct{})
	close(idle)
	return &SnapshotWriter{
		store:   store,
		retry:   retry,
		pending: map[string][]byte{},
		running: map[string]bool{},
		idle:    idle,
	}
}

// Enqueue marshals items now and schedules the write of key.
func (w *SnapshotWriter) Enqueue(key string, items any) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("op=snapshot.enqueue: %w", err)
	}
	doc, err := json.Marshal(envelope{SchemaVersion: SnapshotSchemaVersion, Items: raw})
	if err != nil {
		return fmt.Errorf("op=snapshot.enqueue: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.pending[key] = doc
	if w.running[key] {
		return nil
	}
	w.running[key] = true
	if w.active == 0 {
		w.idle = make(chan struct{})
	}
	w.active++
	go w.drain(key)
	return nil
}

func (w *SnapshotWriter) drain(key string) {
	for {
		w.mu.Lock()
		doc, ok := w.pending[key]
		if !ok {
			delete(w.running, key)
			w.active--
			if w.active == 0 {
				close(w.idle)
			}
			w.mu.Unlock()
			return
		}
		delete(w.pending, key)
		w.mu.Unlock()

		w.save(key, doc)
	}
}

// save writes doc with exponential backoff. A write that keeps failing is
// dropped; the in-memory state stays authoritative and the next mutation retries.
func (w *SnapshotWriter) save(key string, doc []byte) {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = w.retry.MaxElapsedTime
	expo.InitialInterval = w.retry.InitialInterval
	expo.MaxInterval = w.retry.MaxInterval
	if w.retry.Multiplier > 0 {
		expo.Multiplier = w.retry.Multiplier
	}

	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), saveAttemptTimeout)
		defer cancel()
		return w.store.Save(ctx, key, doc)
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("snapshot write failed, retrying",
			slog.String("key", key),
			slog.Duration("next", next),
			slog.Any("error", err))
	}
	err := backoff.RetryNotify(op, expo, notify)
	observability.RecordPersistWrite(key, err)
	if err != nil {
		slog.Error("snapshot write dropped", slog.String("key", key), slog.Any("error", err))
	}
}

// Flush blocks until every enqueued snapshot has been written or dropped.
func (w *SnapshotWriter) Flush(ctx domain.Context) error {
	for {
		w.mu.Lock()
		if w.active == 0 {
			w.mu.Unlock()
			return nil
		}
		idle := w.idle
		w.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close rejects further snapshots and drains the pending ones.
func (w *SnapshotWriter) Close(ctx domain.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Flush(ctx)
}

// Load decodes the document stored under key into dst. It accepts the
// envelope and the legacy bare array. found is false when nothing is stored.
func (w *SnapshotWriter) Load(ctx domain.Context, key string, dst any) (found bool, err error) {
	data, err := w.store.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("op=snapshot.load key=%s: %w", key, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false, nil
	}
	if data[0] == '[' {
		if err := json.Unmarshal(data, dst); err != nil {
			return false, fmt.Errorf("op=snapshot.load key=%s: %w", key, err)
		}
		return true, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("op=snapshot.load key=%s: %w", key, err)
	}
	if env.SchemaVersion > SnapshotSchemaVersion {
		return false, fmt.Errorf("op=snapshot.load key=%s: %w: schema version %d", key, domain.ErrInvalidArgument, env.SchemaVersion)
	}
	if len(env.Items) == 0 || bytes.Equal(env.Items, []byte("null")) {
		return true, nil
	}
	if err := json.Unmarshal(env.Items, dst); err != nil {
		return false, fmt.Errorf("op=snapshot.load key=%s: %w", key, err)
	}
	return true, nil
}
