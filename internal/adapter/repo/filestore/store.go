// Package filestore persists documents in a single JSON file guarded by an
// advisory file lock, so several processes can share one state file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

const lockRetryDelay = 25 * time.Millisecond

// Store keeps every key as a member of one JSON object on disk.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewStore creates the parent directory of path if needed.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("op=filestore.new: %w: path required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("op=filestore.new: %w", err)
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

// Load returns the document stored under key, or nil.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		return nil, fmt.Errorf("op=filestore.load: lock: %w", lockErr(ctx, err))
	}
	defer func() { _ = s.lock.Unlock() }()

	docs, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("op=filestore.load: %w", err)
	}
	doc, ok := docs[key]
	if !ok {
		return nil, nil
	}
	return []byte(doc), nil
}

// Save replaces the document under key. data must be valid JSON.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("op=filestore.save: %w: document is not JSON", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		return fmt.Errorf("op=filestore.save: lock: %w", lockErr(ctx, err))
	}
	defer func() { _ = s.lock.Unlock() }()

	docs, err := s.read()
	if err != nil {
		return fmt.Errorf("op=filestore.save: %w", err)
	}
	docs[key] = json.RawMessage(append([]byte(nil), data...))
	if err := s.write(docs); err != nil {
		return fmt.Errorf("op=filestore.save: %w", err)
	}
	return nil
}

// Ping checks that the state directory is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("op=filestore.ping: %w", err)
	}
	return nil
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	docs := map[string]json.RawMessage{}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return docs, nil
}

// write replaces the file atomically through a temp file and rename.
func (s *Store) write(docs map[string]json.RawMessage) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func lockErr(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.New("lock not acquired")
}
