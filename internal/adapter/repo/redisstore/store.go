// Package redisstore persists documents as plain Redis string values.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Store maps each document key to prefix+key.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewStore wraps an existing client.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Open parses a redis:// URL and returns a Store owning the client.
func Open(url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisstore.open: %w", err)
	}
	return NewStore(redis.NewClient(opts), prefix), nil
}

// Load returns the stored document or nil when the key does not exist.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer("repo.redis").Start(ctx, "redis.Load")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "redis"), attribute.String("store.key", key))

	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=redisstore.load: %w", err)
	}
	return b, nil
}

// Save overwrites the document without expiry.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	ctx, span := otel.Tracer("repo.redis").Start(ctx, "redis.Save")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "redis"), attribute.String("store.key", key))

	if err := s.rdb.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=redisstore.save: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=redisstore.ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }
