package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/taskbank"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// SessionView is the client's picture of one session.
type SessionView struct {
	ID            string            `json:"id"`
	Phase         session.Phase     `json:"phase"`
	State         session.State     `json:"state"`
	CurrentPlayer int               `json:"currentPlayer"`
	CanRoll       bool              `json:"canRoll"`
	PendingTask   *tasks.TaskRecord `json:"pendingTask,omitempty"`
	Winner        *session.Player   `json:"winner,omitempty"`
	PoolSize      int               `json:"poolSize"`
	Seed          uint32            `json:"seed"`
}

func viewOf(id string, s *session.Session) SessionView {
	st := s.State()
	v := SessionView{
		ID:            id,
		Phase:         s.Phase(),
		State:         st,
		CurrentPlayer: st.TurnIndex,
		CanRoll:       s.CanRoll(),
		PoolSize:      len(s.FilteredPool()),
		Seed:          s.Seed(),
	}
	if t, ok := s.PendingTask(); ok {
		v.PendingTask = &t
	}
	if p, ok := s.Winner(); ok {
		v.Winner = &p
	}
	return v
}

// CreateSessionRequest starts a game. A nil Seed picks one from the clock.
type CreateSessionRequest struct {
	Name        string   `json:"name"`
	Seed        *uint32  `json:"seed,omitempty"`
	BoardSize   int      `json:"boardSize,omitempty"`
	Players     int      `json:"players,omitempty"`
	PlayerNames []string `json:"playerNames,omitempty"`
	Pack        string   `json:"pack,omitempty"`
	Levels      []string `json:"levels,omitempty"`
}

type SessionListResponse struct {
	Sessions []store.SessionRecord `json:"sessions"`
	Total    int                   `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

type RollResponse struct {
	Draw    tasks.DrawEvent `json:"draw"`
	Session SessionView     `json:"session"`
}

// MoveRequest applies the outcome of the pending roll.
type MoveRequest struct {
	Success *bool `json:"success"`
}

type MoveResponse struct {
	Result  session.MoveResult `json:"result"`
	Frames  []session.Frame    `json:"frames"`
	Session SessionView        `json:"session"`
}

// SettingsRequest changes session settings; nil fields are left alone.
// Changing the board size or player count resets the game.
type SettingsRequest struct {
	BoardSize   *int      `json:"boardSize,omitempty"`
	Players     *int      `json:"players,omitempty"`
	PlayerNames []string  `json:"playerNames,omitempty"`
	Pack        *string   `json:"pack,omitempty"`
	Levels      *[]string `json:"levels,omitempty"`
	ShowAnswer  *bool     `json:"showAnswer,omitempty"`
}

type PlayerStatsView struct {
	session.PlayerStats
	Accuracy decimal.Decimal `json:"accuracy"`
}

type TypeStatsView struct {
	session.TypeStats
	Accuracy decimal.Decimal `json:"accuracy"`
}

type StatsResponse struct {
	Turns    int                      `json:"turns"`
	Accuracy decimal.Decimal          `json:"accuracy"`
	Players  []PlayerStatsView        `json:"players"`
	Types    map[string]TypeStatsView `json:"types"`
}

func statsView(st session.Stats) StatsResponse {
	out := StatsResponse{
		Turns:    st.Turns,
		Accuracy: st.Accuracy(),
		Players:  make([]PlayerStatsView, len(st.Players)),
		Types:    make(map[string]TypeStatsView, len(st.Types)),
	}
	for i, p := range st.Players {
		out.Players[i] = PlayerStatsView{PlayerStats: p, Accuracy: p.Accuracy()}
	}
	for k, t := range st.Types {
		if t == nil {
			continue
		}
		out.Types[k] = TypeStatsView{TypeStats: *t, Accuracy: t.Accuracy()}
	}
	return out
}

type BoardResponse struct {
	Size    int            `json:"size"`
	Columns int            `json:"columns"`
	Jumps   []board.Jump   `json:"jumps"`
	Chains  []board.Jump   `json:"chains,omitempty"`
	Rows    [][]board.Cell `json:"rows"`
}

type BoardsResponse struct {
	Sizes []int `json:"sizes"`
	Min   int   `json:"min"`
	Max   int   `json:"max"`
}

type PacksResponse struct {
	Packs  []tasks.Pack `json:"packs"`
	Levels []string     `json:"levels"`
	Total  int          `json:"total"`
}

// ReloadTasksRequest replaces the task bank from a file or URL.
type ReloadTasksRequest struct {
	Source string `json:"source"`
}

type ReloadTasksResponse struct {
	Source string          `json:"source"`
	Report taskbank.Report `json:"report"`
	Total  int             `json:"total"`
}

// SimulateRequest runs a Monte Carlo batch. Script, when set, decides each
// answer; otherwise SuccessRate (default 1) does.
type SimulateRequest struct {
	BoardSize   int      `json:"boardSize,omitempty"`
	Players     int      `json:"players,omitempty"`
	Games       int      `json:"games,omitempty"`
	SeedStart   uint32   `json:"seedStart,omitempty"`
	MaxTurns    int      `json:"maxTurns,omitempty"`
	TimeoutMs   int      `json:"timeoutMs,omitempty"`
	Script      string   `json:"script,omitempty"`
	SuccessRate *float64 `json:"successRate,omitempty"`
	UseBank     bool     `json:"useBank,omitempty"`
	Save        bool     `json:"save,omitempty"`
}

type SimulateResponse struct {
	RunID         string           `json:"runId,omitempty"`
	Result        *simulate.Result `json:"result"`
	EngineVersion string           `json:"engine_version"`
}

type RunsResponse struct {
	Runs []store.Run `json:"runs"`
}
