package session

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// PlayerStats tracks one seat's outcomes.
type PlayerStats struct {
	Name       string `json:"name"`
	Attempts   int    `json:"attempts"`
	Successes  int    `json:"successes"`
	Ladders    int    `json:"ladders"`
	Snakes     int    `json:"snakes"`
	Overshoots int    `json:"overshoots"`
}

// Accuracy returns successes as a percentage of attempts, rounded to one
// decimal place. Zero attempts reads as zero.
func (p PlayerStats) Accuracy() decimal.Decimal {
	return percent(p.Successes, p.Attempts)
}

// TypeStats tracks how often a task type was drawn and passed.
type TypeStats struct {
	Draws     int `json:"draws"`
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// Accuracy returns the pass rate for the type as a percentage.
func (t TypeStats) Accuracy() decimal.Decimal {
	return percent(t.Successes, t.Attempts)
}

// Stats aggregates play since the last reset.
type Stats struct {
	Turns   int                   `json:"turns"`
	Players []PlayerStats         `json:"players"`
	Types   map[string]*TypeStats `json:"types"`
}

func newStats(players []Player) Stats {
	st := Stats{Players: make([]PlayerStats, len(players)), Types: map[string]*TypeStats{}}
	for i, p := range players {
		st.Players[i].Name = p.Name
	}
	return st
}

func (s Stats) clone() Stats {
	out := Stats{Turns: s.Turns, Players: slices.Clone(s.Players), Types: make(map[string]*TypeStats, len(s.Types))}
	for k, v := range s.Types {
		if v == nil {
			continue
		}
		c := *v
		out.Types[k] = &c
	}
	return out
}

func (s *Stats) typeStats(t tasks.Type) *TypeStats {
	if s.Types == nil {
		s.Types = map[string]*TypeStats{}
	}
	ts, ok := s.Types[string(t)]
	if !ok {
		ts = &TypeStats{}
		s.Types[string(t)] = ts
	}
	return ts
}

func (s *Stats) recordDraw(t tasks.Type) {
	s.typeStats(t).Draws++
}

func (s *Stats) recordMove(r MoveResult) {
	s.Turns++
	if r.TaskType != "" {
		ts := s.typeStats(r.TaskType)
		ts.Attempts++
		if r.Success {
			ts.Successes++
		}
	}

	if r.PlayerIndex < 0 || r.PlayerIndex >= len(s.Players) {
		return
	}
	p := &s.Players[r.PlayerIndex]
	p.Attempts++
	if r.Success {
		p.Successes++
	}
	if r.Overshoot {
		p.Overshoots++
	}
	if r.Jump != nil {
		if r.Jump.Ladder() {
			p.Ladders++
		} else {
			p.Snakes++
		}
	}
}

// Accuracy returns the overall pass rate across players.
func (s Stats) Accuracy() decimal.Decimal {
	var ok, total int
	for _, p := range s.Players {
		ok += p.Successes
		total += p.Attempts
	}
	return percent(ok, total)
}

func percent(num, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(den))).
		Round(1)
}
