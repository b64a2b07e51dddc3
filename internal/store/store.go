// Package store provides SQLite persistence for game sessions, their move
// logs and saved simulation runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session or run does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB

	// flushes tracks background move-log writes so Close can wait for them.
	flushes sync.WaitGroup
}

// Open opens (creating if needed) the database at path and runs migrations.
// Use ":memory:" only for single-connection throwaway stores.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			board_size INTEGER NOT NULL,
			num_players INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT 'idle',
			winner TEXT,
			snapshot_json TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS moves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			player_index INTEGER NOT NULL,
			player_name TEXT NOT NULL,
			roll INTEGER NOT NULL,
			task_id TEXT NOT NULL DEFAULT '',
			task_type TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL,
			from_square INTEGER NOT NULL,
			landed INTEGER NOT NULL,
			to_square INTEGER NOT NULL,
			overshoot BOOLEAN NOT NULL DEFAULT 0,
			jump_from INTEGER,
			jump_to INTEGER,
			won BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moves_session ON moves(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_moves_session_turn ON moves(session_id, turn)`,
		`CREATE TABLE IF NOT EXISTS simulation_runs (
			id TEXT PRIMARY KEY,
			board_size INTEGER NOT NULL,
			players INTEGER NOT NULL,
			games INTEGER NOT NULL,
			seed_start INTEGER NOT NULL,
			script TEXT NOT NULL DEFAULT '',
			mean_turns TEXT NOT NULL,
			summary_json TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_simulation_runs_board ON simulation_runs(board_size)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close waits for pending move-log writes and closes the database.
func (s *Store) Close() error {
	s.flushes.Wait()
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
