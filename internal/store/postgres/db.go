// Package postgres is the pgvector-backed persistence layer: memories,
// the pending-memory outbox, config overrides, job results, and import
// jobs. Grounded on store/db/postgres/episodic_memory_embedding.go (the
// teacher's only pgvector-using file): database/sql + lib/pq driver,
// pgvector-go's Vector wire type, github.com/pkg/errors wrapping, and the
// placeholder()/placeholders() parameter-numbering helpers (those two
// helpers are not present anywhere in the retrieved teacher tree — likely
// defined in a root store/db/postgres file this pack did not retrieve —
// so they are reconstructed here in the same "$N" convention their call
// sites in episodic_memory_embedding.go assume).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB wraps a pgvector-enabled postgres connection.
type DB struct {
	db *sql.DB
}

// Open connects to dsn and verifies it is reachable.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return &DB{db: sqlDB}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns the postgres positional parameter for the given
// 1-based index ("$1", "$2", ...).
func placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// placeholders returns a comma-joined list of n sequential placeholders
// starting at $1, for use in a VALUES(...) clause.
func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// Migrate creates every table this package needs if it does not already
// exist. Schema migration tooling proper is out of scope (spec.md §1's
// non-goals); this is the minimal bootstrap the teacher's own
// cmd/divinesense/main.go performs via store.Migrate before serving.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memory (
			id               TEXT PRIMARY KEY,
			persona_id       TEXT NOT NULL,
			personality_id   TEXT NOT NULL,
			content          TEXT NOT NULL,
			embedding        vector(384) NOT NULL,
			canon_scope      TEXT NOT NULL,
			summary_type     TEXT NOT NULL,
			channel_id       TEXT,
			guild_id         TEXT,
			session_id       TEXT,
			senders          TEXT[] NOT NULL DEFAULT '{}',
			message_ids      TEXT[] NOT NULL DEFAULT '{}',
			chunk_group_id   TEXT,
			chunk_index      INT,
			total_chunks     INT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at       TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS memory_embedding_idx ON memory USING ivfflat (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS pending_memory (
			id              TEXT PRIMARY KEY,
			persona_id      TEXT NOT NULL,
			personality_id  TEXT NOT NULL,
			content         TEXT NOT NULL,
			canon_scope     TEXT NOT NULL,
			summary_type    TEXT NOT NULL,
			channel_id      TEXT,
			guild_id        TEXT,
			session_id      TEXT,
			senders         TEXT[] NOT NULL DEFAULT '{}',
			message_ids     TEXT[] NOT NULL DEFAULT '{}',
			attempts        INT NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ,
			last_error      TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS config_override (
			tier       TEXT NOT NULL,
			key        TEXT NOT NULL,
			params     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tier, key)
		)`,
		`CREATE TABLE IF NOT EXISTS job_result (
			job_id       TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			body         JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			delivered_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS import_job (
			id         TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			error      TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS job (
			id         TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			job_type   TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS job_state_updated_idx ON job (state, updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to apply migration: %s", strings.Fields(stmt)[0])
		}
	}
	return nil
}
