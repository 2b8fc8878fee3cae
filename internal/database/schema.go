package database

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		fetched_at BIGINT NOT NULL,
		PRIMARY KEY (scope, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS alert_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		sensor_id TEXT,
		action TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		user_id TEXT,
		acted_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_actions_alert ON alert_actions(alert_id, acted_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		fetched_at BIGINT NOT NULL,
		PRIMARY KEY (scope, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS alert_actions (
		id BIGSERIAL PRIMARY KEY,
		alert_id TEXT NOT NULL,
		sensor_id TEXT,
		action TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		user_id TEXT,
		acted_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_actions_alert ON alert_actions(alert_id, acted_at)`,
}

// Migrate 建表（幂等）
func (s *Store) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}
