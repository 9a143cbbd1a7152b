// Package memory provides an in-process persistence store. State does not
// survive a restart.
package memory

import (
	"context"
	"sync"
)

// Store keeps documents in a map.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewStore returns an empty Store.
func NewStore() *Store { return &Store{docs: map[string][]byte{}} }

// Load returns a copy of the document, or nil when none is stored.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

// Save replaces the document under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
