// Package sqlite implements store.Store against the internal/db connection
// pool, following the dialect package's conventions. The DDL in tableDefs
// uses SQLite's AUTOINCREMENT keyword, so EnsureSchema succeeds on SQLite
// only, not on PostgreSQL.
package sqlite

import (
	"context"
	"fmt"

	"github.com/flowlane/agentd/internal/db"
)

// tableDefs are intentionally plain CREATE TABLE IF NOT EXISTS statements,
// not a migration framework — schema migration tooling is out of scope
// (§1 Non-goals); a production deployment owns its own migration runner and
// treats these as the canonical shape.
var tableDefs = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		workspace TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		last_active TIMESTAMP NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS sdk_messages (
		db_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		uuid TEXT NOT NULL,
		type TEXT NOT NULL,
		system_subtype TEXT NOT NULL DEFAULT '',
		parent_tool_use_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued',
		timestamp TIMESTAMP NOT NULL,
		internal INTEGER NOT NULL DEFAULT 0,
		is_replay INTEGER NOT NULL DEFAULT 0,
		is_synthetic INTEGER NOT NULL DEFAULT 0,
		insertion_index INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		UNIQUE(session_id, uuid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sdk_messages_session ON sdk_messages(session_id, insertion_index)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		preview TEXT NOT NULL DEFAULT '',
		turn INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS recurring_jobs (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '{}',
		template TEXT NOT NULL DEFAULT '{}',
		enabled INTEGER NOT NULL DEFAULT 1,
		max_runs INTEGER,
		run_count INTEGER NOT NULL DEFAULT 0,
		last_run_at TIMESTAMP,
		next_run_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recurring_jobs_room ON recurring_jobs(room_id, enabled, next_run_at)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		execution_mode TEXT NOT NULL DEFAULT 'single',
		session_assignments TEXT NOT NULL DEFAULT '[]',
		recurring_job_id TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS drafts (
		session_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, client_id)
	)`,
}

// EnsureSchema creates every table the Store requires if it does not already
// exist. Safe to call on every process start.
func EnsureSchema(ctx context.Context, pool *db.Pool) error {
	for _, stmt := range tableDefs {
		if _, err := pool.Writer().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
