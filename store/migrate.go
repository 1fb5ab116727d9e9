package store

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	apply   func(*sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS frames (
					id TEXT PRIMARY KEY,
					captured_at DATETIME NOT NULL,
					app_identifier TEXT NOT NULL,
					window_title TEXT,
					confidence REAL NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_frames_captured_at ON frames(captured_at)`,

				`CREATE TABLE IF NOT EXISTS elements (
					id TEXT PRIMARY KEY,
					frame_id TEXT NOT NULL,
					type TEXT NOT NULL,
					value TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					metadata TEXT,
					FOREIGN KEY (frame_id) REFERENCES frames(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_elements_frame ON elements(frame_id)`,

				`CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					occurred_at DATETIME NOT NULL,
					context_key TEXT NOT NULL,
					target TEXT,
					value_before TEXT,
					value_after TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					payload TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_events_context ON events(context_key, occurred_at)`,
				`CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at)`,

				`CREATE TABLE IF NOT EXISTS summaries (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					narrative TEXT,
					event_ids TEXT NOT NULL,
					reference TEXT NOT NULL,
					propagation TEXT NOT NULL,
					overall_confidence REAL NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}
	var current sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	for _, m := range migrations {
		if current.Valid && m.version <= int(current.Int64) {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: begin migration %d: %w", m.version, err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
