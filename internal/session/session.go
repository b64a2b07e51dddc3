// Package session runs one game: rolling, drawing a challenge, applying the
// outcome to the board, and tracking turns until someone lands on the final
// square.
//
// Random stream order is part of the contract. RollAndDraw consumes exactly
// two floats (die, then task pick) and Reset consumes exactly one (display
// die). Nothing else touches the stream, so a seed plus the sequence of calls
// reproduces a game exactly.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/engine"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

const (
	// HistoryCapacity bounds the draw history.
	HistoryCapacity = 50

	MinPlayers     = 1
	MaxPlayers     = 6
	DefaultPlayers = 2

	DefaultBoardSize = board.CanonicalSize
)

var (
	ErrEmptyPool     = errors.New("no tasks match the current filters")
	ErrNoPlayers     = errors.New("session has no players")
	ErrGameOver      = errors.New("game already has a winner")
	ErrRollPending   = errors.New("a roll is already awaiting its outcome")
	ErrNoPendingRoll = errors.New("no roll is awaiting an outcome")
	ErrMoveInFlight  = errors.New("a move is still being applied")
	ErrMoveCancelled = errors.New("move was cancelled by a reset")
	ErrPlayerCount   = errors.New("player count out of range")
)

// Phase is the state machine position.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAwaiting Phase = "awaiting_outcome"
	PhaseMoving   Phase = "moving"
	PhaseFinished Phase = "finished"
)

// Player is a named token on the board. Position 0 means not yet entered.
type Player struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// PendingRoll is a drawn die value whose outcome has not been applied.
type PendingRoll struct {
	RollValue int    `json:"rollValue"`
	TaskID    string `json:"taskId"`
}

// State is a value copy of everything the session tracks.
type State struct {
	Players    []Player          `json:"players"`
	TurnIndex  int               `json:"turnIndex"`
	Pending    *PendingRoll      `json:"pendingRoll"`
	History    []tasks.DrawEvent `json:"history"`
	BoardSize  int               `json:"boardSize"`
	Dice       int               `json:"dice"`
	Filter     tasks.Filter      `json:"filter"`
	ShowAnswer bool              `json:"showAnswer"`
}

func (s State) clone() State {
	out := s
	out.Players = slices.Clone(s.Players)
	out.History = slices.Clone(s.History)
	out.Filter.Levels = slices.Clone(s.Filter.Levels)
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}

// Winner returns the player standing on the final square.
func (s State) Winner() (int, Player, bool) {
	for i, p := range s.Players {
		if p.Position == s.BoardSize {
			return i, p, true
		}
	}
	return -1, Player{}, false
}

// Recorder receives every applied move, e.g. for a persistent move log.
type Recorder interface {
	RecordMove(MoveResult)
}

// Options configures a new session.
type Options struct {
	Seed        uint32
	BoardSize   int
	NumPlayers  int
	PlayerNames []string
	Weights     tasks.Weights
	Tasks       []tasks.TaskRecord
	Filter      tasks.Filter
}

// Session owns one game. It is not safe for concurrent use; callers that
// share a session must serialize access.
type Session struct {
	state    State
	rng      *engine.Source
	selector *tasks.Selector
	bank     []tasks.TaskRecord
	jumps    *board.Jumps
	move     *Move
	stats    Stats
	recorder Recorder
}

// New creates a session at the start of a game. It does not consume from the
// random stream; the display die starts at 1.
func New(opts Options) (*Session, error) {
	size := opts.BoardSize
	if size == 0 {
		size = DefaultBoardSize
	}
	if size < board.MinSize || size > board.MaxSize {
		return nil, fmt.Errorf("session: %w: %d", board.ErrBoardSize, size)
	}

	n := opts.NumPlayers
	if n == 0 {
		n = max(len(opts.PlayerNames), DefaultPlayers)
	}
	if n < MinPlayers || n > MaxPlayers {
		return nil, fmt.Errorf("session: %w: %d", ErrPlayerCount, n)
	}

	s := &Session{
		rng:      engine.NewSource(opts.Seed),
		selector: tasks.NewSelector(opts.Weights),
		bank:     slices.Clone(opts.Tasks),
		jumps:    board.JumpsFor(size),
		state: State{
			Players:   roster(n, opts.PlayerNames),
			BoardSize: size,
			Dice:      1,
			Filter:    opts.Filter,
		},
	}
	s.stats = newStats(s.state.Players)
	return s, nil
}

// DefaultPlayerName is the name given to player i (zero based).
func DefaultPlayerName(i int) string {
	return fmt.Sprintf("Player %d", i+1)
}

func roster(n int, names []string) []Player {
	out := make([]Player, n)
	for i := range out {
		out[i].Name = DefaultPlayerName(i)
		if i < len(names) && names[i] != "" {
			out[i].Name = names[i]
		}
	}
	return out
}

// SetRecorder attaches a move recorder. Pass nil to detach.
func (s *Session) SetRecorder(r Recorder) { s.recorder = r }

// State returns a copy of the current state.
func (s *Session) State() State { return s.state.clone() }

// Jumps returns the jump graph for the current board size.
func (s *Session) Jumps() *board.Jumps { return s.jumps }

// Seed returns the seed of the random stream.
func (s *Session) Seed() uint32 { return s.rng.Seed() }

// Selector returns the task selector.
func (s *Session) Selector() *tasks.Selector { return s.selector }

// Stats returns a copy of the play statistics.
func (s *Session) Stats() Stats { return s.stats.clone() }

// Phase reports where the state machine is.
func (s *Session) Phase() Phase {
	switch {
	case s.move != nil:
		return PhaseMoving
	case s.state.Pending != nil:
		return PhaseAwaiting
	}
	if _, _, won := s.state.Winner(); won {
		return PhaseFinished
	}
	return PhaseIdle
}

// Winner returns the winning player, if any.
func (s *Session) Winner() (Player, bool) {
	_, p, ok := s.state.Winner()
	return p, ok
}

// CurrentPlayer returns the player whose turn it is.
func (s *Session) CurrentPlayer() Player {
	return s.state.Players[s.state.TurnIndex]
}

// Tasks returns the loaded task bank.
func (s *Session) Tasks() []tasks.TaskRecord { return slices.Clone(s.bank) }

// FilteredPool returns the tasks that pass the current pack and level filter.
func (s *Session) FilteredPool() []tasks.TaskRecord {
	return s.state.Filter.Apply(s.bank)
}

// CanRoll reports whether RollAndDraw would succeed.
func (s *Session) CanRoll() bool {
	return s.rollError() == nil
}

func (s *Session) rollError() error {
	switch {
	case s.move != nil:
		return ErrMoveInFlight
	case s.state.Pending != nil:
		return ErrRollPending
	case len(s.state.Players) == 0:
		return ErrNoPlayers
	}
	if _, _, won := s.state.Winner(); won {
		return ErrGameOver
	}
	if len(s.FilteredPool()) == 0 {
		return ErrEmptyPool
	}
	return nil
}

// PendingTask returns the task drawn for the pending roll.
func (s *Session) PendingTask() (tasks.TaskRecord, bool) {
	p := s.state.Pending
	if p == nil {
		return tasks.TaskRecord{}, false
	}
	if len(s.state.History) > 0 && s.state.History[0].Task.ID == p.TaskID {
		return s.state.History[0].Task, true
	}
	return tasks.FindByID(s.bank, p.TaskID)
}

// RollAndDraw rolls the die, then draws a task weighted by that roll. On
// error the state is unchanged.
func (s *Session) RollAndDraw() (tasks.DrawEvent, error) {
	if err := s.rollError(); err != nil {
		return tasks.DrawEvent{}, err
	}

	pool := s.FilteredPool()
	roll := engine.Roll(s.rng)
	task, _ := s.selector.Select(pool, s.state.History, roll, s.rng)

	ev := tasks.DrawEvent{Task: task, RollValue: roll}
	s.state.History = pushHistory(s.state.History, ev)
	s.state.Pending = &PendingRoll{RollValue: roll, TaskID: task.ID}
	s.state.Dice = roll
	s.stats.recordDraw(task.Type)
	return ev, nil
}

func pushHistory(h []tasks.DrawEvent, ev tasks.DrawEvent) []tasks.DrawEvent {
	out := make([]tasks.DrawEvent, 0, min(len(h)+1, HistoryCapacity))
	out = append(out, ev)
	for _, e := range h {
		if len(out) == HistoryCapacity {
			break
		}
		out = append(out, e)
	}
	return out
}

// ApplyMove applies the pending roll's outcome in one step. It is
// BeginMove followed by Commit.
func (s *Session) ApplyMove(success bool) (MoveResult, error) {
	m, err := s.BeginMove(success)
	if err != nil {
		return MoveResult{}, err
	}
	return m.Commit()
}

// Reset starts the game over with the same players: positions zeroed,
// history and pending roll cleared, turn back to the first player, and a
// fresh display die drawn. Any move in flight is cancelled.
func (s *Session) Reset() {
	if s.move != nil {
		s.move.cancelled = true
		s.move = nil
	}
	for i := range s.state.Players {
		s.state.Players[i].Position = 0
	}
	s.state.TurnIndex = 0
	s.state.Pending = nil
	s.state.History = nil
	s.state.Dice = engine.Roll(s.rng)
	s.stats = newStats(s.state.Players)
}

// SetPlayerCount changes the number of players and resets the game. Existing
// names are kept; new seats get default names.
func (s *Session) SetPlayerCount(n int) error {
	if n < MinPlayers || n > MaxPlayers {
		return fmt.Errorf("session: %w: %d", ErrPlayerCount, n)
	}
	names := make([]string, len(s.state.Players))
	for i, p := range s.state.Players {
		names[i] = p.Name
	}
	s.state.Players = roster(n, names)
	s.Reset()
	return nil
}

// SetPlayerNames renames players in seat order without resetting. Extra
// names are ignored; blank names restore the default.
func (s *Session) SetPlayerNames(names []string) error {
	if s.move != nil {
		return ErrMoveInFlight
	}
	for i := range s.state.Players {
		if i >= len(names) {
			break
		}
		name := names[i]
		if name == "" {
			name = DefaultPlayerName(i)
		}
		s.state.Players[i].Name = name
		if i < len(s.stats.Players) {
			s.stats.Players[i].Name = name
		}
	}
	return nil
}

// SetBoardSize switches to a different board and resets the game.
func (s *Session) SetBoardSize(size int) error {
	if size < board.MinSize || size > board.MaxSize {
		return fmt.Errorf("session: %w: %d", board.ErrBoardSize, size)
	}
	s.state.BoardSize = size
	s.jumps = board.JumpsFor(size)
	s.Reset()
	return nil
}

// SetFilter changes the pack and level filter. The game is not reset.
func (s *Session) SetFilter(f tasks.Filter) error {
	if s.move != nil {
		return ErrMoveInFlight
	}
	f.Levels = slices.Clone(f.Levels)
	s.state.Filter = f
	return nil
}

// SetPack selects a pack by focus name; tasks.AllPacks clears it.
func (s *Session) SetPack(pack string) error {
	if s.move != nil {
		return ErrMoveInFlight
	}
	s.state.Filter.Pack = pack
	return nil
}

// SetLevels restricts draws to the given levels; nil allows every level.
func (s *Session) SetLevels(levels []string) error {
	if s.move != nil {
		return ErrMoveInFlight
	}
	s.state.Filter.Levels = slices.Clone(levels)
	return nil
}

// SetShowAnswer toggles whether front ends reveal the target answer.
func (s *Session) SetShowAnswer(show bool) error {
	if s.move != nil {
		return ErrMoveInFlight
	}
	s.state.ShowAnswer = show
	return nil
}

// SetTasks replaces the task bank, e.g. once a feed finishes loading.
func (s *Session) SetTasks(bank []tasks.TaskRecord) {
	s.bank = slices.Clone(bank)
}

// SetWeights replaces the selector weight table.
func (s *Session) SetWeights(w tasks.Weights) {
	s.selector = tasks.NewSelector(w)
}
