package session

import (
	"iter"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// MoveResult describes one applied outcome.
type MoveResult struct {
	Turn        int         `json:"turn"`
	PlayerIndex int         `json:"playerIndex"`
	PlayerName  string      `json:"playerName"`
	Roll        int         `json:"roll"`
	TaskID      string      `json:"taskId"`
	TaskType    tasks.Type  `json:"taskType"`
	Success     bool        `json:"success"`
	From        int         `json:"from"`
	Landed      int         `json:"landed"`
	To          int         `json:"to"`
	Overshoot   bool        `json:"overshoot"`
	Jump        *board.Jump `json:"jump,omitempty"`
	Won         bool        `json:"won"`
}

// FrameKind labels a movement frame.
type FrameKind string

const (
	FrameStep   FrameKind = "step"
	FrameJump   FrameKind = "jump"
	FrameSettle FrameKind = "settle"
)

// Frame is one intermediate snapshot of a move for animation.
type Frame struct {
	Index  int       `json:"index"`
	Kind   FrameKind `json:"kind"`
	Square int       `json:"square"`
	State  State     `json:"state"`
}

// Move is an outcome that has been computed but not yet committed. While a
// Move is open the session rejects rolls, outcomes and setting changes that
// would reset it; Reset cancels it.
type Move struct {
	s         *Session
	result    MoveResult
	start     State
	final     State
	committed bool
	cancelled bool
}

// BeginMove computes the outcome of the pending roll and opens a Move. The
// session state does not change until Commit.
func (s *Session) BeginMove(success bool) (*Move, error) {
	if s.move != nil {
		return nil, ErrMoveInFlight
	}
	p := s.state.Pending
	if p == nil {
		return nil, ErrNoPendingRoll
	}

	idx := s.state.TurnIndex
	player := s.state.Players[idx]
	res := MoveResult{
		Turn:        s.stats.Turns + 1,
		PlayerIndex: idx,
		PlayerName:  player.Name,
		Roll:        p.RollValue,
		TaskID:      p.TaskID,
		Success:     success,
		From:        player.Position,
		Landed:      player.Position,
		To:          player.Position,
	}
	if task, ok := s.PendingTask(); ok {
		res.TaskType = task.Type
	}

	if success {
		next := player.Position + p.RollValue
		if next > s.state.BoardSize {
			res.Overshoot = true
		} else {
			res.Landed = next
			res.To = next
			if to, ok := s.jumps.Lookup(next); ok {
				res.To = to
				res.Jump = &board.Jump{From: next, To: to}
			}
		}
	}
	res.Won = res.To == s.state.BoardSize

	final := s.state.clone()
	final.Players[idx].Position = res.To
	final.TurnIndex = (idx + 1) % len(final.Players)
	final.Pending = nil

	m := &Move{s: s, result: res, start: s.state.clone(), final: final}
	s.move = m
	return m, nil
}

// Result returns the computed outcome.
func (m *Move) Result() MoveResult { return m.result }

// Commit writes the move into the session and releases the in-flight guard.
// Committing twice is a no-op that returns the same result.
func (m *Move) Commit() (MoveResult, error) {
	if m.cancelled {
		return MoveResult{}, ErrMoveCancelled
	}
	if m.committed {
		return m.result, nil
	}
	s := m.s
	s.state = m.final.clone()
	s.move = nil
	m.committed = true
	s.stats.recordMove(m.result)
	if s.recorder != nil {
		s.recorder.RecordMove(m.result)
	}
	return m.result, nil
}

// Frames yields the move square by square: one step frame per square walked,
// a jump frame when a ladder or snake fires, and a final settle frame equal
// to the committed state. The sequence is finite and can be ranged over
// again from the start; pacing is up to the caller.
func (m *Move) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		idx := m.result.PlayerIndex
		n := 0
		emit := func(kind FrameKind, square int, st State) bool {
			f := Frame{Index: n, Kind: kind, Square: square, State: st}
			n++
			return yield(f)
		}

		for sq := m.result.From + 1; sq <= m.result.Landed; sq++ {
			st := m.start.clone()
			st.Players[idx].Position = sq
			if !emit(FrameStep, sq, st) {
				return
			}
		}
		if m.result.Jump != nil {
			st := m.start.clone()
			st.Players[idx].Position = m.result.To
			if !emit(FrameJump, m.result.To, st) {
				return
			}
		}
		emit(FrameSettle, m.result.To, m.final.clone())
	}
}
