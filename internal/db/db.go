// Package db provides PostgreSQL persistence for phrases.
//
// Every write that participates in job arbitration is a single conditional
// UPDATE keyed on (id, owner_id) or (id, current_job_id), so concurrent
// dispatchers, webhook deliveries, and sweeper passes resolve deterministically
// in the database rather than by last-writer-wins on stale reads.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS phrases (
    id                  UUID PRIMARY KEY,
    owner_id            TEXT,
    status              TEXT NOT NULL,
    source_kind         TEXT NOT NULL,
    language            TEXT NOT NULL DEFAULT '',
    source_text         TEXT NOT NULL DEFAULT '',
    transliteration     TEXT NOT NULL DEFAULT '',
    translation         TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    vocab               JSONB,
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
    original_key        TEXT NOT NULL DEFAULT '',
    audio_key           TEXT NOT NULL DEFAULT '',
    current_job_id      TEXT,
    job_attempts        INTEGER NOT NULL DEFAULT 0,
    job_started_at      TIMESTAMPTZ,
    last_error          TEXT,
    processing_step     TEXT,
    exclude_from_export BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reviewed_at         TIMESTAMPTZ,
    exported_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_phrases_status ON phrases (status);
CREATE INDEX IF NOT EXISTS idx_phrases_owner ON phrases (owner_id);
`

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// EnsureSchema creates the phrases table and its indexes if missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
