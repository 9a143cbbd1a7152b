// Package postgres provides the PostgreSQL persistence adapter.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// PgxPool is a minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS orchestrator_state (
	key        TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// StateRepo stores one JSONB document per key.
type StateRepo struct{ Pool PgxPool }

// NewStateRepo constructs a StateRepo with the given pool.
func NewStateRepo(p PgxPool) *StateRepo { return &StateRepo{Pool: p} }

// EnsureSchema creates the state table when missing.
func (r *StateRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=state.ensure_schema: %w", err)
	}
	return nil
}

// Load returns the document for key, or nil when no row exists.
func (r *StateRepo) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer("repo.state").Start(ctx, "state.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "orchestrator_state"),
	)
	var doc []byte
	err := r.Pool.QueryRow(ctx, `SELECT doc::text FROM orchestrator_state WHERE key=$1`, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=state.load: %w", err)
	}
	return doc, nil
}

// Save upserts the document for key.
func (r *StateRepo) Save(ctx context.Context, key string, data []byte) error {
	ctx, span := otel.Tracer("repo.state").Start(ctx, "state.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "orchestrator_state"),
	)
	q := `INSERT INTO orchestrator_state (key, doc, updated_at) VALUES ($1, $2::jsonb, $3)
ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, key, string(data), time.Now().UTC()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=state.save: %w", err)
	}
	return nil
}

func (r *StateRepo) Ping(ctx context.Context) error {
	if err := r.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("op=state.ping: %w", err)
	}
	return nil
}
