package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// MoveRow is one logged move.
type MoveRow struct {
	session.MoveResult

	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MovesPage is a paginated move log.
type MovesPage struct {
	Moves      []MoveRow `json:"moves"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

const insertMove = `INSERT INTO moves (
	session_id, turn, player_index, player_name, roll, task_id, task_type, success,
	from_square, landed, to_square, overshoot, jump_from, jump_to, won
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func moveArgs(sessionID string, m session.MoveResult) []any {
	var jumpFrom, jumpTo *int
	if m.Jump != nil {
		jumpFrom, jumpTo = &m.Jump.From, &m.Jump.To
	}
	return []any{
		sessionID, m.Turn, m.PlayerIndex, m.PlayerName, m.Roll, m.TaskID, string(m.TaskType), m.Success,
		m.From, m.Landed, m.To, m.Overshoot, jumpFrom, jumpTo, m.Won,
	}
}

// InsertMove records a single move.
func (s *Store) InsertMove(sessionID string, m session.MoveResult) error {
	if _, err := s.db.Exec(insertMove, moveArgs(sessionID, m)...); err != nil {
		return fmt.Errorf("store: insert move: %w", err)
	}
	return nil
}

// InsertMovesBatch records several moves in one transaction.
func (s *Store) InsertMovesBatch(sessionID string, moves []session.MoveResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertMove)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range moves {
		if _, err := stmt.Exec(moveArgs(sessionID, m)...); err != nil {
			return fmt.Errorf("store: insert move turn %d: %w", m.Turn, err)
		}
	}
	return tx.Commit()
}

// GetMoves returns a page of a session's move log, newest first.
func (s *Store) GetMoves(sessionID string, page, perPage int) (*MovesPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM moves WHERE session_id = ?", sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: count moves: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, turn, player_index, player_name, roll, task_id, task_type, success,
		        from_square, landed, to_square, overshoot, jump_from, jump_to, won, created_at
		 FROM moves WHERE session_id = ? ORDER BY turn DESC, id DESC LIMIT ? OFFSET ?`,
		sessionID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get moves: %w", err)
	}
	defer rows.Close()

	var moves []MoveRow
	for rows.Next() {
		var r MoveRow
		var taskType string
		var jumpFrom, jumpTo sql.NullInt64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Turn, &r.PlayerIndex, &r.PlayerName, &r.Roll,
			&r.TaskID, &taskType, &r.Success, &r.From, &r.Landed, &r.To, &r.Overshoot,
			&jumpFrom, &jumpTo, &r.Won, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan move: %w", err)
		}
		r.TaskType = tasks.Type(taskType)
		if jumpFrom.Valid && jumpTo.Valid {
			r.Jump = &board.Jump{From: int(jumpFrom.Int64), To: int(jumpTo.Int64)}
		}
		moves = append(moves, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get moves: %w", err)
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}
	return &MovesPage{
		Moves:      moves,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// ClearMoves drops a session's move log, e.g. after a reset.
func (s *Store) ClearMoves(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM moves WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("store: clear moves: %w", err)
	}
	return nil
}
