package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/scripting"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
)

type simulateOptions struct {
	seedStart  uint32
	scriptFile string
	rate       float64
	useBank    bool
	save       bool
	asJSON     bool
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play many games to measure board balance",
		Long: `Play a batch of games with seeds seed..seed+games-1 and report turn counts,
wins by seat and how often each ladder and snake fired.

Answers are decided by --rate (probability of a correct answer) or by a
JavaScript file defining outcome(turn). Results do not depend on --workers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{
				"game.board_size":          "size",
				"game.players":             "players",
				"simulate.games":           "games",
				"simulate.max_turns":       "max-turns",
				"simulate.workers":         "workers",
				"simulate.timeout_seconds": "timeout",
				"tasks.source":             "tasks",
				"store.path":               "db",
			})
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			req := simulate.Request{
				BoardSize: cfg.Game.BoardSize,
				Players:   cfg.Game.Players,
				Games:     cfg.Simulate.Games,
				SeedStart: opts.seedStart,
				MaxTurns:  cfg.Simulate.MaxTurns,
				TimeoutMs: int(cfg.Simulate.Timeout().Milliseconds()),
			}

			var script string
			switch {
			case opts.scriptFile != "":
				src, err := os.ReadFile(opts.scriptFile)
				if err != nil {
					return err
				}
				script = string(src)
				if _, err := scripting.NewOracle(script, 0); err != nil {
					return fmt.Errorf("script %s: %w", opts.scriptFile, err)
				}
				req.Decider = scripting.ScriptFactory(script)
			case cmd.Flags().Changed("rate"):
				if opts.rate < 0 || opts.rate > 1 {
					return fmt.Errorf("--rate must be between 0 and 1, got %v", opts.rate)
				}
				req.Decider = scripting.RatesFactory(opts.rate, nil)
			}

			if opts.useBank {
				bank, err := loadBank(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				if len(bank) == 0 {
					return fmt.Errorf("--use-bank needs tasks.source")
				}
				req.Tasks = bank
				req.Weights = cfg.Weights()
			}

			res, err := simulate.NewRunner(cfg.Simulate.Workers).Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			var runID string
			if opts.save {
				runID, err = saveRun(cfg.Store.Path, res, script)
				if err != nil {
					return err
				}
				logger.Info("simulation saved", "run_id", runID)
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					RunID  string           `json:"runId,omitempty"`
					Result *simulate.Result `json:"result"`
				}{runID, res})
			}
			printSummary(cmd.OutOrStdout(), res, runID)
			return nil
		},
	}
	cmd.Flags().Int("size", 0, "board size (overrides game.board_size)")
	cmd.Flags().Int("players", 0, "players per game (overrides game.players)")
	cmd.Flags().Int("games", 0, "number of games (overrides simulate.games)")
	cmd.Flags().Int("max-turns", 0, "turn cap per game (overrides simulate.max_turns)")
	cmd.Flags().Int("workers", 0, "worker goroutines (overrides simulate.workers)")
	cmd.Flags().Int("timeout", 0, "timeout in seconds (overrides simulate.timeout_seconds)")
	cmd.Flags().String("tasks", "", "task bank file or URL (overrides tasks.source)")
	cmd.Flags().String("db", "", "SQLite database path for --save (overrides store.path)")
	cmd.Flags().Uint32Var(&opts.seedStart, "seed", 1, "seed of the first game")
	cmd.Flags().StringVar(&opts.scriptFile, "script", "", "JavaScript file defining outcome(turn)")
	cmd.Flags().Float64Var(&opts.rate, "rate", 1, "probability of a correct answer")
	cmd.Flags().BoolVar(&opts.useBank, "use-bank", false, "draw from the configured task bank instead of one task per type")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the run in the database")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func saveRun(path string, res *simulate.Result, script string) (string, error) {
	st, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer st.Close()

	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return "", err
	}
	run := &store.Run{
		BoardSize: res.Echo.BoardSize,
		Players:   res.Echo.Players,
		Games:     res.Echo.Games,
		SeedStart: res.Echo.SeedStart,
		Script:    script,
		MeanTurns: res.Summary.MeanTurns.String(),
		Summary:   summary,
	}
	if err := st.SaveRun(run); err != nil {
		return "", err
	}
	return run.ID, nil
}

func printSummary(w io.Writer, res *simulate.Result, runID string) {
	s := res.Summary
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d games on %d squares, %d players",
		s.Games, res.Echo.BoardSize, res.Echo.Players)))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "Completed:    %d (capped %d, failed %d)\n", s.Completed, s.Capped, s.Failed)
	fmt.Fprintf(w, "Turns:        min %d  median %d  mean %s  p90 %d  max %d\n",
		s.MinTurns, s.MedianTurns, s.MeanTurns, s.P90Turns, s.MaxTurns)
	fmt.Fprintf(w, "Success rate: %s%%\n", s.SuccessRate)
	fmt.Fprintf(w, "Overshoots:   %d\n", s.Overshoots)

	seats := make([]string, len(s.WinsBySeat))
	for i, n := range s.WinsBySeat {
		seats[i] = fmt.Sprintf("P%d %d", i+1, n)
	}
	fmt.Fprintf(w, "Wins by seat: %s\n", strings.Join(seats, "  "))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "JUMPS")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	for _, j := range s.Jumps {
		style := snakeStyle
		if j.To > j.From {
			style = ladderStyle
		}
		fmt.Fprintf(w, "%s %3d→%-3d  hits %-6d per game %s\n",
			style.Render(fmt.Sprintf("%-6s", j.Kind)), j.From, j.To, j.Hits, j.PerGame)
	}

	fmt.Fprintln(w)
	if s.TimedOut {
		fmt.Fprintln(w, failStyle.Render("Timed out before all games finished."))
	}
	if res.FirstErr != "" {
		fmt.Fprintf(w, "First error: %s\n", res.FirstErr)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d workers, %s", res.Workers, res.Elapsed.Round(time.Millisecond))))
	if runID != "" {
		fmt.Fprintf(w, "Saved as run %s\n", runID)
	}
}
