// Package simulate plays many seeded games in parallel to measure how a
// board size behaves: turns to win, how often each ladder and snake fires,
// and how often players overshoot the final square.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/scripting"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

const (
	DefaultGames    = 1000
	DefaultMaxTurns = 2000
	MaxGames        = 1_000_000

	batchSize = 64
)

var (
	ErrNoGames   = errors.New("simulate: games must be positive")
	ErrTooMany   = fmt.Errorf("simulate: at most %d games per run", MaxGames)
	ErrNoDecider = errors.New("simulate: decider factory failed")
)

// Request describes a simulation run. Game i uses session seed SeedStart+i,
// so a run is reproducible regardless of worker count.
type Request struct {
	BoardSize int           `json:"boardSize"`
	Players   int           `json:"players"`
	Games     int           `json:"games"`
	SeedStart uint32        `json:"seedStart"`
	MaxTurns  int           `json:"maxTurns,omitempty"`
	Weights   tasks.Weights `json:"weights,omitempty"`
	TimeoutMs int           `json:"timeoutMs,omitempty"`

	// Tasks is the pool drawn from. Nil uses one task per known type.
	Tasks []tasks.TaskRecord `json:"-"`

	// Decider builds the per-game outcome decider. Nil means every
	// answer is correct.
	Decider scripting.Factory `json:"-"`
}

// GameResult is the outcome of one simulated game.
type GameResult struct {
	Seed       uint32       `json:"seed"`
	Turns      int          `json:"turns"`
	Winner     int          `json:"winner"`
	Capped     bool         `json:"capped,omitempty"`
	Attempts   int          `json:"attempts"`
	Successes  int          `json:"successes"`
	Overshoots int          `json:"overshoots"`
	Jumps      []board.Jump `json:"jumps,omitempty"`
}

// JumpStat counts how often one ladder or snake fired.
type JumpStat struct {
	From    int             `json:"from"`
	To      int             `json:"to"`
	Kind    string          `json:"kind"`
	Hits    int             `json:"hits"`
	PerGame decimal.Decimal `json:"perGame"`
}

// Summary aggregates a run.
type Summary struct {
	Games       int             `json:"games"`
	Completed   int             `json:"completed"`
	Capped      int             `json:"capped"`
	Failed      int             `json:"failed"`
	MinTurns    int             `json:"minTurns"`
	MaxTurns    int             `json:"maxTurns"`
	MeanTurns   decimal.Decimal `json:"meanTurns"`
	MedianTurns int             `json:"medianTurns"`
	P90Turns    int             `json:"p90Turns"`
	WinsBySeat  []int           `json:"winsBySeat"`
	SuccessRate decimal.Decimal `json:"successRate"`
	Overshoots  int             `json:"overshoots"`
	Jumps       []JumpStat      `json:"jumps"`
	TimedOut    bool            `json:"timedOut,omitempty"`
}

// Result is a completed run.
type Result struct {
	Summary  Summary       `json:"summary"`
	Elapsed  time.Duration `json:"elapsedNs"`
	Workers  int           `json:"workers"`
	Echo     Request       `json:"echo"`
	FirstErr string        `json:"firstError,omitempty"`
}

type job struct {
	start, end int // game indexes, inclusive
}

type outcome struct {
	game GameResult
	err  error
}

// Runner plays games on a fixed number of workers.
type Runner struct {
	workers int
}

// NewRunner uses one worker per available CPU when workers <= 0.
func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{workers: workers}
}

// Workers reports the pool size.
func (r *Runner) Workers() int { return r.workers }

func (req *Request) normalize() error {
	if req.BoardSize == 0 {
		req.BoardSize = session.DefaultBoardSize
	}
	if req.BoardSize < board.MinSize || req.BoardSize > board.MaxSize {
		return fmt.Errorf("simulate: %w: %d", board.ErrBoardSize, req.BoardSize)
	}
	if req.Players == 0 {
		req.Players = session.DefaultPlayers
	}
	if req.Players < session.MinPlayers || req.Players > session.MaxPlayers {
		return fmt.Errorf("simulate: %w: %d", session.ErrPlayerCount, req.Players)
	}
	if req.Games == 0 {
		req.Games = DefaultGames
	}
	if req.Games < 0 {
		return ErrNoGames
	}
	if req.Games > MaxGames {
		return ErrTooMany
	}
	if req.MaxTurns <= 0 {
		req.MaxTurns = DefaultMaxTurns
	}
	if req.Tasks == nil {
		req.Tasks = syntheticPool()
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("simulate: %w", session.ErrEmptyPool)
	}
	return nil
}

func syntheticPool() []tasks.TaskRecord {
	out := make([]tasks.TaskRecord, len(tasks.KnownTypes))
	for i, t := range tasks.KnownTypes {
		out[i] = tasks.TaskRecord{ID: "sim-" + string(t), Type: t, Focus: tasks.DefaultFocus, Prompt: string(t)}
	}
	return out
}

// Run plays req.Games games and aggregates them. Cancelling ctx (or
// exceeding TimeoutMs) stops early and marks the summary as timed out.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	started := time.Now()
	jobs := make(chan job, r.workers*2)
	results := make(chan outcome, r.workers*batchSize)

	var played atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case j, ok := <-jobs:
					if !ok {
						return
					}
					for idx := j.start; idx <= j.end; idx++ {
						if ctx.Err() != nil {
							return
						}
						g, err := playGame(req, req.SeedStart+uint32(idx))
						played.Add(1)
						select {
						case results <- outcome{game: g, err: err}:
						case <-ctx.Done():
							return
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go generateJobs(ctx, jobs, req.Games)
	go func() {
		wg.Wait()
		close(results)
	}()

	var games []GameResult
	var failed int
	var firstErr error
	for o := range results {
		if o.err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		games = append(games, o.game)
	}

	// Workers finish in any order; sort so aggregation is stable.
	sort.Slice(games, func(i, j int) bool { return games[i].Seed < games[j].Seed })

	summary := Summarize(games, req.Players, board.JumpsFor(req.BoardSize))
	summary.Games = int(played.Load())
	summary.Failed = failed
	summary.TimedOut = ctx.Err() != nil && summary.Games < req.Games

	res := &Result{
		Summary: summary,
		Elapsed: time.Since(started),
		Workers: r.workers,
		Echo:    req,
	}
	res.Echo.Tasks = nil
	res.Echo.Decider = nil
	if firstErr != nil {
		res.FirstErr = firstErr.Error()
	}
	return res, nil
}

func generateJobs(ctx context.Context, jobs chan<- job, games int) {
	defer close(jobs)
	for start := 0; start < games; start += batchSize {
		j := job{start: start, end: min(start+batchSize, games) - 1}
		select {
		case jobs <- j:
		case <-ctx.Done():
			return
		}
	}
}

// playGame runs one game to a win or the turn cap. The decider gets its own
// seed derived from the game seed so answers never perturb the session's
// stream.
func playGame(req Request, seed uint32) (GameResult, error) {
	res := GameResult{Seed: seed, Winner: -1}

	s, err := session.New(session.Options{
		Seed:       seed,
		BoardSize:  req.BoardSize,
		NumPlayers: req.Players,
		Weights:    req.Weights,
		Tasks:      req.Tasks,
	})
	if err != nil {
		return res, err
	}

	var decider scripting.Decider = scripting.Always(true)
	if req.Decider != nil {
		decider, err = req.Decider(seed ^ 0x9E3779B9)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrNoDecider, err)
		}
	}

	for res.Turns < req.MaxTurns {
		player := s.CurrentPlayer()
		idx := s.State().TurnIndex
		ev, err := s.RollAndDraw()
		if err != nil {
			return res, err
		}
		ok, err := decider.Decide(scripting.Turn{
			Number:      res.Turns + 1,
			PlayerIndex: idx,
			PlayerName:  player.Name,
			Position:    player.Position,
			BoardSize:   req.BoardSize,
			Roll:        ev.RollValue,
			Task:        ev.Task,
		})
		if err != nil {
			return res, err
		}
		mv, err := s.ApplyMove(ok)
		if err != nil {
			return res, err
		}

		res.Turns++
		res.Attempts++
		if mv.Success {
			res.Successes++
		}
		if mv.Overshoot {
			res.Overshoots++
		}
		if mv.Jump != nil {
			res.Jumps = append(res.Jumps, *mv.Jump)
		}
		if mv.Won {
			res.Winner = mv.PlayerIndex
			return res, nil
		}
	}
	res.Capped = true
	return res, nil
}

// Summarize aggregates finished games. jumps supplies the full edge list so
// edges that never fired still appear with zero hits.
func Summarize(games []GameResult, players int, jumps *board.Jumps) Summary {
	sum := Summary{
		Games:       len(games),
		WinsBySeat:  make([]int, players),
		MeanTurns:   decimal.Zero,
		SuccessRate: decimal.Zero,
	}

	hits := map[board.Jump]int{}
	var turns []int
	var attempts, successes int
	for _, g := range games {
		attempts += g.Attempts
		successes += g.Successes
		sum.Overshoots += g.Overshoots
		for _, j := range g.Jumps {
			hits[j]++
		}
		if g.Capped || g.Winner < 0 {
			sum.Capped++
			continue
		}
		sum.Completed++
		turns = append(turns, g.Turns)
		if g.Winner < players {
			sum.WinsBySeat[g.Winner]++
		}
	}

	if len(turns) > 0 {
		slices.Sort(turns)
		sum.MinTurns = turns[0]
		sum.MaxTurns = turns[len(turns)-1]
		sum.MedianTurns = turns[len(turns)/2]
		sum.P90Turns = turns[min(len(turns)-1, len(turns)*9/10)]
		total := 0
		for _, t := range turns {
			total += t
		}
		sum.MeanTurns = decimal.NewFromInt(int64(total)).
			Div(decimal.NewFromInt(int64(len(turns)))).
			Round(2)
	}
	if attempts > 0 {
		sum.SuccessRate = decimal.NewFromInt(int64(successes)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(attempts))).
			Round(1)
	}

	for _, e := range jumps.Edges() {
		st := JumpStat{From: e.From, To: e.To, Kind: e.Kind(), Hits: hits[e], PerGame: decimal.Zero}
		if len(games) > 0 {
			st.PerGame = decimal.NewFromInt(int64(st.Hits)).
				Div(decimal.NewFromInt(int64(len(games)))).
				Round(3)
		}
		sum.Jumps = append(sum.Jumps, st)
	}
	return sum
}
