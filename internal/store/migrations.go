package store

import (
	"context"
	"fmt"
)

// migrations are applied in order; migrations[i] moves the schema from
// version i to i+1. Entries are never edited once released.
var migrations = []string{
	// 1: initial schema
	`
	CREATE TABLE file_info (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension TEXT NOT NULL,
		orig_uri TEXT NOT NULL,
		orig_display_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE local_entity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES file_info(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE task (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER NOT NULL UNIQUE,
		remote_url TEXT NOT NULL,
		length INTEGER NOT NULL CHECK (length > 0),
		region_length INTEGER NOT NULL CHECK (region_length > 0),
		provenance TEXT NOT NULL CHECK (provenance IN ('LOCAL', 'REMOTE')),
		display_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		submitted_at INTEGER,
		local_entity INTEGER REFERENCES local_entity(id) ON DELETE SET NULL,
		latest_transcript TEXT NOT NULL DEFAULT '',
		submitted_transcript TEXT,
		reject_reason TEXT,
		difficulty TEXT
	);

	CREATE TABLE region (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES task(id) ON DELETE CASCADE,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		play_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE partial_transcript (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES task(id) ON DELETE CASCADE,
		region_id INTEGER NOT NULL REFERENCES region(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX idx_region_task_active ON region(task_id, active);
	CREATE INDEX idx_partial_task ON partial_transcript(task_id, updated_at);
	CREATE INDEX idx_task_updated ON task(updated_at);
	`,
	// 2: track when a completion was last announced to the server
	`ALTER TABLE task ADD COLUMN completion_notified_at INTEGER;`,
}

// SchemaVersion is the version a freshly opened database ends up at.
var SchemaVersion = len(migrations)

// migrate applies every migration newer than PRAGMA user_version, each in its
// own transaction together with the version bump.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
		s.logger.Printf("migrated schema to version %d", i+1)
	}
	return nil
}

// Version returns the current PRAGMA user_version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, storeErr("Version", err)
	}
	return v, nil
}
