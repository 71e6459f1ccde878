// Package repository implements the persistence ports (pkg/ports) with a
// pgx/v5-backed Postgres store and an in-memory store for tests, both
// grounded on glyphoxa's npcstore.PostgresStore pattern: a small DB
// interface satisfied by *pgxpool.Pool, JSONB columns for free-form
// data, and a Migrate method executing an embedded DDL constant.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for calls, transcripts, agent_configs, and
// crm_contexts, per
// spec.md §6's persisted-state contract.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
    id             TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL,
    client_type    TEXT NOT NULL,
    start_time     TIMESTAMPTZ NOT NULL,
    end_time       TIMESTAMPTZ,
    status         TEXT NOT NULL DEFAULT 'active',
    extracted_data JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id);

CREATE TABLE IF NOT EXISTS transcripts (
    id         BIGSERIAL PRIMARY KEY,
    call_id    TEXT NOT NULL REFERENCES calls(id),
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcripts_call ON transcripts(call_id);

CREATE TABLE IF NOT EXISTS agent_configs (
    agent_id   TEXT PRIMARY KEY,
    body       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crm_contexts (
    phone_number TEXT PRIMARY KEY,
    notes        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface the Postgres stores need, satisfied by
// *pgxpool.Pool or *pgx.Conn.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate executes Schema against db, creating every table and index if
// they do not already exist.
func Migrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
