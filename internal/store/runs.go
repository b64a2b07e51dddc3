package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is a saved simulation run. Summary holds the simulator's full result
// as JSON; MeanTurns is duplicated as a decimal string for listing.
type Run struct {
	ID        string          `json:"id"`
	BoardSize int             `json:"boardSize"`
	Players   int             `json:"players"`
	Games     int             `json:"games"`
	SeedStart uint32          `json:"seedStart"`
	Script    string          `json:"script,omitempty"`
	MeanTurns string          `json:"meanTurns"`
	Summary   json.RawMessage `json:"summary"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SaveRun stores a simulation run, assigning an ID if it has none.
func (s *Store) SaveRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	summary := run.Summary
	if len(summary) == 0 {
		summary = json.RawMessage("{}")
	}
	_, err := s.db.Exec(
		`INSERT INTO simulation_runs (id, board_size, players, games, seed_start, script, mean_turns, summary_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BoardSize, run.Players, run.Games, run.SeedStart, run.Script, run.MeanTurns, string(summary),
	)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

const runColumns = `id, board_size, players, games, seed_start, script, mean_turns, summary_json, created_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var seed int64
	var summary string
	err := row.Scan(&r.ID, &r.BoardSize, &r.Players, &r.Games, &seed, &r.Script, &r.MeanTurns, &summary, &r.CreatedAt)
	r.SeedStart = uint32(seed)
	r.Summary = json.RawMessage(summary)
	return r, err
}

// GetRun fetches a simulation run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM simulation_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns runs newest first, optionally restricted to one board
// size (0 for all).
func (s *Store) ListRuns(boardSize, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM simulation_runs`
	args := []any{}
	if boardSize > 0 {
		query += ` WHERE board_size = ?`
		args = append(args, boardSize)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
