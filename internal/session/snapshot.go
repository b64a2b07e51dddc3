package session

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/engine"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// Snapshot is the persisted form of a session. Field names are stable; the
// decoder accepts any subset of them.
type Snapshot struct {
	Pack           string            `json:"pack"`
	BoardSize      int               `json:"boardSize"`
	Dice           int               `json:"dice"`
	TurnIndex      int               `json:"turnIndex"`
	NumPlayers     int               `json:"numPlayers"`
	Players        []Player          `json:"players"`
	PendingRoll    *PendingRoll      `json:"pendingRoll"`
	History        []tasks.DrawEvent `json:"history"`
	ShowAnswer     bool              `json:"showAnswer"`
	SelectedLevels []string          `json:"selectedLevels"`
	Seed           uint32            `json:"seed"`
	RNGState       uint32            `json:"rngState"`
	RNGDraws       uint64            `json:"rngDraws"`
	Stats          *Stats            `json:"stats,omitempty"`
}

// DefaultSnapshot is what a fresh two-player game on the full board looks
// like.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		BoardSize:  DefaultBoardSize,
		Dice:       1,
		NumPlayers: DefaultPlayers,
		Players:    roster(DefaultPlayers, nil),
	}
}

// Snapshot captures the session for persistence. An open Move is not
// captured; the snapshot reflects the state before it.
func (s *Session) Snapshot() Snapshot {
	st := s.state.clone()
	stats := s.stats.clone()
	return Snapshot{
		Pack:           st.Filter.Pack,
		BoardSize:      st.BoardSize,
		Dice:           st.Dice,
		TurnIndex:      st.TurnIndex,
		NumPlayers:     len(st.Players),
		Players:        st.Players,
		PendingRoll:    st.Pending,
		History:        st.History,
		ShowAnswer:     st.ShowAnswer,
		SelectedLevels: st.Filter.Levels,
		Seed:           s.rng.Seed(),
		RNGState:       s.rng.State(),
		RNGDraws:       s.rng.Draws(),
		Stats:          &stats,
	}
}

// Restore rebuilds a session from a snapshot. bank and weights are not part
// of the snapshot and come from the caller. The snapshot is assumed to be
// valid; run untrusted input through DecodeSnapshot first.
func Restore(snap Snapshot, bank []tasks.TaskRecord, weights tasks.Weights) (*Session, error) {
	s, err := New(Options{
		Seed:       snap.Seed,
		BoardSize:  snap.BoardSize,
		NumPlayers: len(snap.Players),
		Weights:    weights,
		Tasks:      bank,
		Filter:     tasks.Filter{Pack: snap.Pack, Levels: snap.SelectedLevels},
	})
	if err != nil {
		return nil, err
	}

	if snap.RNGState != 0 {
		s.rng = engine.RestoreSource(snap.Seed, snap.RNGState, snap.RNGDraws)
	} else {
		s.rng = engine.ReplaySource(snap.Seed, snap.RNGDraws)
	}

	if len(snap.Players) > 0 {
		s.state.Players = slices.Clone(snap.Players)
	}
	if snap.TurnIndex >= 0 && snap.TurnIndex < len(s.state.Players) {
		s.state.TurnIndex = snap.TurnIndex
	}
	if snap.Dice == 0 {
		snap.Dice = 1
	}
	s.state.Dice = snap.Dice
	s.state.History = slices.Clone(snap.History)
	s.state.ShowAnswer = snap.ShowAnswer
	if snap.PendingRoll != nil {
		p := *snap.PendingRoll
		s.state.Pending = &p
	}
	if snap.Stats != nil && len(snap.Stats.Players) == len(snap.Players) {
		s.stats = snap.Stats.clone()
	} else {
		s.stats = newStats(s.state.Players)
	}
	return s, nil
}

// DecodeSnapshot parses persisted JSON field by field. Fields that are
// missing, mistyped or out of range fall back to their defaults and are
// named in dropped; one bad field never discards the others. err is only
// set when data is not a JSON object at all, and even then the returned
// snapshot holds usable defaults.
func DecodeSnapshot(data []byte) (snap Snapshot, dropped []string, err error) {
	snap = DefaultSnapshot()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, nil, fmt.Errorf("session: snapshot is not a JSON object: %w", err)
	}
	if raw == nil {
		return snap, nil, nil
	}

	drop := func(field string) { dropped = append(dropped, field) }

	if v, ok := raw["boardSize"]; ok {
		if n, ok := decodeInt(v); ok && n >= board.MinSize && n <= board.MaxSize {
			snap.BoardSize = n
		} else {
			drop("boardSize")
		}
	}

	if v, ok := raw["pack"]; ok {
		var p string
		if json.Unmarshal(v, &p) == nil {
			snap.Pack = p
		} else {
			drop("pack")
		}
	}

	if v, ok := raw["dice"]; ok {
		if n, ok := decodeInt(v); ok && n >= 1 && n <= engine.DieFaces {
			snap.Dice = n
		} else {
			drop("dice")
		}
	}

	if v, ok := raw["showAnswer"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			snap.ShowAnswer = b
		} else {
			drop("showAnswer")
		}
	}

	if v, ok := raw["selectedLevels"]; ok {
		var levels []string
		if json.Unmarshal(v, &levels) == nil {
			snap.SelectedLevels = levels
		} else {
			drop("selectedLevels")
		}
	}

	if v, ok := raw["seed"]; ok {
		if n, ok := decodeUint32(v); ok {
			snap.Seed = n
		} else {
			drop("seed")
		}
	}
	if v, ok := raw["rngState"]; ok {
		if n, ok := decodeUint32(v); ok {
			snap.RNGState = n
		} else {
			drop("rngState")
		}
	}
	if v, ok := raw["rngDraws"]; ok {
		var n uint64
		if json.Unmarshal(v, &n) == nil {
			snap.RNGDraws = n
		} else {
			drop("rngDraws")
		}
	}

	numPlayers := 0
	if v, ok := raw["numPlayers"]; ok {
		if n, ok := decodeInt(v); ok && n >= MinPlayers && n <= MaxPlayers {
			numPlayers = n
		} else {
			drop("numPlayers")
		}
	}

	var players []Player
	if v, ok := raw["players"]; ok {
		if p, ok := decodePlayers(v, snap.BoardSize); ok {
			players = p
		} else {
			drop("players")
		}
	}

	switch {
	case players == nil && numPlayers > 0:
		players = roster(numPlayers, nil)
	case players == nil:
		players = roster(DefaultPlayers, nil)
	case numPlayers > 0 && numPlayers != len(players):
		players = resize(players, numPlayers)
	}
	snap.Players = players
	snap.NumPlayers = len(players)

	if v, ok := raw["turnIndex"]; ok {
		if n, ok := decodeInt(v); ok && n >= 0 && n < len(players) {
			snap.TurnIndex = n
		} else {
			drop("turnIndex")
		}
	}

	if v, ok := raw["history"]; ok {
		h, bad, ok := decodeHistory(v)
		if ok {
			snap.History = h
		} else {
			drop("history")
		}
		for _, i := range bad {
			drop(fmt.Sprintf("history[%d]", i))
		}
	}

	if v, ok := raw["pendingRoll"]; ok && !isNull(v) {
		if p, ok := decodePending(v); ok {
			snap.PendingRoll = p
		} else {
			drop("pendingRoll")
		}
	}
	if snap.PendingRoll != nil {
		if _, _, won := (State{Players: snap.Players, BoardSize: snap.BoardSize}).Winner(); won {
			snap.PendingRoll = nil
			drop("pendingRoll")
		}
	}

	if v, ok := raw["stats"]; ok && !isNull(v) {
		var st Stats
		if json.Unmarshal(v, &st) == nil && len(st.Players) == len(snap.Players) {
			for k, ts := range st.Types {
				if ts == nil {
					delete(st.Types, k)
					drop("stats.types." + k)
				}
			}
			snap.Stats = &st
		} else {
			drop("stats")
		}
	}

	return snap, dropped, nil
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

// decodeInt accepts any JSON number with an integral value.
func decodeInt(v json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func decodeUint32(v json.RawMessage) (uint32, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, false
	}
	return uint32(f), true
}

// decodePlayers keeps the roster if it is a non-empty array of at most
// MaxPlayers entries with at most one winner. Individual bad names or
// positions are repaired rather than rejected.
func decodePlayers(v json.RawMessage, boardSize int) ([]Player, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil || len(items) == 0 || len(items) > MaxPlayers {
		return nil, false
	}

	out := make([]Player, len(items))
	winners := 0
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, false
		}
		out[i].Name = DefaultPlayerName(i)
		if nv, ok := fields["name"]; ok {
			var name string
			if json.Unmarshal(nv, &name) == nil && strings.TrimSpace(name) != "" {
				out[i].Name = name
			}
		}
		if pv, ok := fields["position"]; ok {
			if n, ok := decodeInt(pv); ok {
				out[i].Position = max(0, min(n, boardSize))
			}
		}
		if out[i].Position == boardSize {
			winners++
		}
	}
	if winners > 1 {
		return nil, false
	}
	return out, true
}

func resize(players []Player, n int) []Player {
	if n <= len(players) {
		return slices.Clone(players[:n])
	}
	out := slices.Clone(players)
	for i := len(players); i < n; i++ {
		out = append(out, Player{Name: DefaultPlayerName(i)})
	}
	return out
}

// decodeHistory keeps well-formed draw events, most recent first, and
// reports the indexes it skipped.
func decodeHistory(v json.RawMessage) ([]tasks.DrawEvent, []int, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, nil, false
	}
	var out []tasks.DrawEvent
	var bad []int
	for i, item := range items {
		var ev tasks.DrawEvent
		if err := json.Unmarshal(item, &ev); err != nil || ev.Task.ID == "" || ev.RollValue < 1 || ev.RollValue > engine.DieFaces {
			bad = append(bad, i)
			continue
		}
		if len(out) < HistoryCapacity {
			out = append(out, ev)
		}
	}
	return out, bad, true
}

func decodePending(v json.RawMessage) (*PendingRoll, bool) {
	var p PendingRoll
	if err := json.Unmarshal(v, &p); err != nil {
		return nil, false
	}
	if p.RollValue < 1 || p.RollValue > engine.DieFaces {
		return nil, false
	}
	return &p, true
}
