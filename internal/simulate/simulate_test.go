package simulate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/scripting"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	req := Request{BoardSize: 60, Players: 3, Games: 200, SeedStart: 1000}

	one, err := NewRunner(1).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run(1 worker): %v", err)
	}
	many, err := NewRunner(8).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run(8 workers): %v", err)
	}

	if !reflect.DeepEqual(one.Summary, many.Summary) {
		t.Errorf("summaries differ:\n1: %+v\n8: %+v", one.Summary, many.Summary)
	}
	if one.Summary.Games != 200 || one.Summary.Completed != 200 {
		t.Errorf("games = %d completed = %d, want 200/200", one.Summary.Games, one.Summary.Completed)
	}

	wins := 0
	for _, w := range one.Summary.WinsBySeat {
		wins += w
	}
	if wins != one.Summary.Completed {
		t.Errorf("seat wins sum to %d, want %d", wins, one.Summary.Completed)
	}
	if one.Summary.MinTurns > one.Summary.MedianTurns || one.Summary.MedianTurns > one.Summary.MaxTurns {
		t.Errorf("turn order broken: min %d median %d max %d",
			one.Summary.MinTurns, one.Summary.MedianTurns, one.Summary.MaxTurns)
	}
	if got := one.Summary.SuccessRate.String(); got != "100" {
		t.Errorf("success rate = %s, want 100", got)
	}
}

func TestPlayGameMatchesManualSession(t *testing.T) {
	req := Request{BoardSize: 50, Players: 2, Games: 1}
	if err := req.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	g, err := playGame(req, 7)
	if err != nil {
		t.Fatalf("playGame: %v", err)
	}

	s, err := session.New(session.Options{Seed: 7, BoardSize: 50, NumPlayers: 2, Tasks: req.Tasks})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	turns := 0
	for {
		if _, err := s.RollAndDraw(); err != nil {
			t.Fatalf("RollAndDraw: %v", err)
		}
		mv, err := s.ApplyMove(true)
		if err != nil {
			t.Fatalf("ApplyMove: %v", err)
		}
		turns++
		if mv.Won {
			if g.Winner != mv.PlayerIndex {
				t.Errorf("winner = %d, want %d", g.Winner, mv.PlayerIndex)
			}
			break
		}
	}
	if g.Turns != turns {
		t.Errorf("turns = %d, want %d", g.Turns, turns)
	}
}

func TestTurnCap(t *testing.T) {
	res, err := NewRunner(2).Run(context.Background(), Request{
		Games:    10,
		MaxTurns: 25,
		Decider:  func(uint32) (scripting.Decider, error) { return scripting.Always(false), nil },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := res.Summary
	if s.Capped != 10 || s.Completed != 0 {
		t.Errorf("capped = %d completed = %d, want 10/0", s.Capped, s.Completed)
	}
	if !s.MeanTurns.IsZero() || s.SuccessRate.String() != "0" {
		t.Errorf("mean = %s rate = %s, want zero", s.MeanTurns, s.SuccessRate)
	}
	for _, j := range s.Jumps {
		if j.Hits != 0 {
			t.Errorf("jump %d->%d fired without movement", j.From, j.To)
		}
	}
}

func TestScriptedDecider(t *testing.T) {
	req := Request{
		BoardSize: 40,
		Games:     20,
		Decider:   scripting.ScriptFactory(`function outcome(t) { return 0.5 }`),
	}
	a, err := NewRunner(4).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := NewRunner(1).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(a.Summary, b.Summary) {
		t.Error("scripted runs differ across worker counts")
	}
	rate := a.Summary.SuccessRate.InexactFloat64()
	if rate <= 20 || rate >= 80 {
		t.Errorf("success rate %v far from 50", rate)
	}
}

func TestDeciderErrorsCountAsFailures(t *testing.T) {
	res, err := NewRunner(2).Run(context.Background(), Request{
		Games:   5,
		Decider: scripting.ScriptFactory(`function outcome(t) { return "maybe" }`),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Failed != 5 || res.FirstErr == "" {
		t.Errorf("failed = %d firstErr = %q", res.Summary.Failed, res.FirstErr)
	}

	res, err = NewRunner(1).Run(context.Background(), Request{
		Games:   2,
		Decider: scripting.ScriptFactory(`var x`),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Failed != 2 {
		t.Errorf("failed = %d, want 2", res.Summary.Failed)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewRunner(2).Run(ctx, Request{Games: 10_000})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Summary.TimedOut {
		t.Error("cancelled run not marked timed out")
	}
	if res.Summary.Games >= 10_000 {
		t.Errorf("played %d games after cancel", res.Summary.Games)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"board too small", Request{BoardSize: 10}, board.ErrBoardSize},
		{"too many players", Request{Players: 9}, session.ErrPlayerCount},
		{"negative games", Request{Games: -1}, ErrNoGames},
		{"too many games", Request{Games: MaxGames + 1}, ErrTooMany},
		{"empty pool", Request{Tasks: []tasks.TaskRecord{}}, session.ErrEmptyPool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(1).Run(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSummarizeJumpFrequencies(t *testing.T) {
	jumps := board.JumpsFor(100)
	games := []GameResult{
		{Seed: 1, Turns: 10, Winner: 0, Attempts: 10, Successes: 8, Jumps: []board.Jump{{4, 14}, {17, 7}}},
		{Seed: 2, Turns: 20, Winner: 1, Attempts: 20, Successes: 10, Jumps: []board.Jump{{4, 14}}},
		{Seed: 3, Turns: 50, Winner: -1, Capped: true, Attempts: 50},
	}
	s := Summarize(games, 2, jumps)

	if s.Completed != 2 || s.Capped != 1 {
		t.Errorf("completed = %d capped = %d", s.Completed, s.Capped)
	}
	if s.MeanTurns.String() != "15" {
		t.Errorf("mean turns = %s, want 15", s.MeanTurns)
	}
	if s.SuccessRate.String() != "22.5" {
		t.Errorf("success rate = %s, want 22.5", s.SuccessRate)
	}
	if !reflect.DeepEqual(s.WinsBySeat, []int{1, 1}) {
		t.Errorf("wins = %v", s.WinsBySeat)
	}
	if len(s.Jumps) != jumps.Len() {
		t.Fatalf("jump stats = %d, want %d", len(s.Jumps), jumps.Len())
	}
	for _, j := range s.Jumps {
		switch {
		case j.From == 4:
			if j.Hits != 2 || j.PerGame.String() != "0.667" || j.Kind != "ladder" {
				t.Errorf("ladder 4: %+v", j)
			}
		case j.From == 17:
			if j.Hits != 1 || j.Kind != "snake" {
				t.Errorf("snake 17: %+v", j)
			}
		default:
			if j.Hits != 0 {
				t.Errorf("%d->%d hits = %d", j.From, j.To, j.Hits)
			}
		}
	}
}
