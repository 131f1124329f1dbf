// Package migrate bootstraps the database schema at startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// stmts are idempotent; running them against an up-to-date database is a no-op.
var stmts = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		total_points BIGINT NOT NULL DEFAULT 0 CHECK (total_points >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS wards (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		boundary JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id BIGSERIAL PRIMARY KEY,
		category TEXT NOT NULL CHECK (category IN ('shop', 'vehicle', 'garbage', 'infrastructure', 'hazard')),
		latitude DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
		longitude DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
		entity_reference TEXT,
		ward_id BIGINT REFERENCES wards(id),
		created_at TIMESTAMPTZ NOT NULL,
		fresh_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT violations_fresh_after_created CHECK (fresh_at >= created_at),
		CONSTRAINT violations_reference_only_on_vehicle CHECK (entity_reference IS NULL OR category = 'vehicle')
	)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_entity ON violations (category, entity_reference, fresh_at)
		WHERE entity_reference IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_violations_location ON violations (category, latitude, longitude)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id BIGSERIAL PRIMARY KEY,
		violation_id BIGINT NOT NULL REFERENCES violations(id),
		user_id UUID NOT NULL REFERENCES users(id),
		storage_reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_violation ON reports (violation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_user ON reports (user_id)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (created_at) WHERE published_at IS NULL`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
