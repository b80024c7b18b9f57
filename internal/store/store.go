package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a row does not exist (maps to HTTP 404).
var ErrNotFound = errors.New("not found")

// Store wraps the SQL database with report/user/stat queries.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'user',
	eco_points    INTEGER NOT NULL DEFAULT 0,
	reports_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	images      JSONB NOT NULL DEFAULT '[]',
	waste_type  TEXT NOT NULL DEFAULT 'mixed',
	severity    TEXT NOT NULL DEFAULT 'medium',
	status      TEXT NOT NULL DEFAULT 'pending',
	reported_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	verified_by UUID REFERENCES users(id) ON DELETE SET NULL,
	resolved_at TIMESTAMPTZ,
	admin_notes TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports (status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_reported_by ON reports (reported_by);
CREATE INDEX IF NOT EXISTS idx_reports_lon_lat ON reports (longitude, latitude);
`

// EnsureSchema creates tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
