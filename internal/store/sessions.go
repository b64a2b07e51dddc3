package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/lingo-ladders/internal/session"
)

// SessionRecord is the listing view of a stored session. The full state
// lives in the snapshot.
type SessionRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BoardSize  int       `json:"boardSize"`
	NumPlayers int       `json:"numPlayers"`
	Seed       uint32    `json:"seed"`
	Phase      string    `json:"phase"`
	Winner     *string   `json:"winner,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// phaseOf derives the resting phase from a snapshot. Snapshots never hold a
// move in flight.
func phaseOf(snap session.Snapshot) (session.Phase, *string) {
	for _, p := range snap.Players {
		if p.Position == snap.BoardSize {
			name := p.Name
			return session.PhaseFinished, &name
		}
	}
	if snap.PendingRoll != nil {
		return session.PhaseAwaiting, nil
	}
	return session.PhaseIdle, nil
}

// CreateSession stores a new session and returns its generated ID.
func (s *Store) CreateSession(name string, snap session.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("store: marshal snapshot: %w", err)
	}
	id := uuid.NewString()
	phase, winner := phaseOf(snap)
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, name, board_size, num_players, seed, phase, winner, snapshot_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, snap.BoardSize, len(snap.Players), snap.Seed, string(phase), winner, string(data),
	)
	if err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

// SaveSnapshot overwrites the stored state of an existing session.
func (s *Store) SaveSnapshot(id string, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	phase, winner := phaseOf(snap)
	res, err := s.db.Exec(
		`UPDATE sessions SET
			board_size = ?, num_players = ?, seed = ?, phase = ?, winner = ?,
			snapshot_json = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		snap.BoardSize, len(snap.Players), snap.Seed, string(phase), winner,
		string(data), id,
	)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	return nil
}

// LoadSnapshot reads a session's state through the tolerant decoder. dropped
// names fields that were reset to defaults.
func (s *Store) LoadSnapshot(id string) (snap session.Snapshot, dropped []string, err error) {
	var data string
	err = s.db.QueryRow(`SELECT snapshot_json FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.DefaultSnapshot(), nil, fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return session.DefaultSnapshot(), nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	snap, dropped, err = session.DecodeSnapshot([]byte(data))
	if err != nil {
		// The stored row is unreadable; hand back defaults and let the
		// caller decide whether that is fatal.
		return snap, dropped, fmt.Errorf("store: decode snapshot %q: %w", id, err)
	}
	return snap, dropped, nil
}

const sessionColumns = `id, name, board_size, num_players, seed, phase, winner, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (SessionRecord, error) {
	var rec SessionRecord
	var seed int64
	err := row.Scan(&rec.ID, &rec.Name, &rec.BoardSize, &rec.NumPlayers, &seed,
		&rec.Phase, &rec.Winner, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Seed = uint32(seed)
	return rec, err
}

// GetSession fetches a session's listing record.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &rec, nil
}

// ListSessions returns sessions, most recently updated first, and the total
// count.
func (s *Store) ListSessions(limit, offset int) ([]SessionRecord, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count sessions: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC, created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list sessions: %w", err)
	}
	return out, total, nil
}

// DeleteSession removes a session and its move log.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	return nil
}
