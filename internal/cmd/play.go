package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/config"
	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

type playOptions struct {
	seed        uint32
	pack        string
	levels      []string
	showAnswers bool
	pace        time.Duration
	save        bool
	name        string
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a game in the terminal",
		Long: `Play a local game. Each turn rolls the die and draws a task; answer it out
loud, then mark it correct or not. A correct answer moves the player by the
roll, landing exactly on the last square to win.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{
				"game.board_size":   "size",
				"game.players":      "players",
				"game.player_names": "names",
				"tasks.source":      "tasks",
				"store.path":        "db",
			})
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				opts.seed = uint32(time.Now().UnixNano())
			}
			if n := len(cfg.Game.PlayerNames); n > cfg.Game.Players && !cmd.Flags().Changed("players") {
				cfg.Game.Players = min(n, session.MaxPlayers)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			bank, err := loadBank(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return runPlay(cmd.InOrStdin(), cmd.OutOrStdout(), cfg, bank, opts, logger)
		},
	}
	cmd.Flags().Int("size", 0, "board size (overrides game.board_size)")
	cmd.Flags().Int("players", 0, "number of players (overrides game.players)")
	cmd.Flags().StringSlice("names", nil, "player names, comma separated (overrides game.player_names)")
	cmd.Flags().String("tasks", "", "task bank file or URL (overrides tasks.source)")
	cmd.Flags().String("db", "", "SQLite database path for --save (overrides store.path)")
	cmd.Flags().Uint32Var(&opts.seed, "seed", 0, "random seed (default from the clock)")
	cmd.Flags().StringVar(&opts.pack, "pack", tasks.AllPacks, "only draw tasks from this pack")
	cmd.Flags().StringSliceVar(&opts.levels, "levels", nil, "only draw tasks at these levels")
	cmd.Flags().BoolVar(&opts.showAnswers, "show-answers", false, "show the expected answer with each task")
	cmd.Flags().DurationVar(&opts.pace, "pace", 0, "delay between squares when animating a move")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the game and its move log in the database")
	cmd.Flags().StringVar(&opts.name, "name", "", "session name when saving")
	return cmd
}

// game is one terminal play-through.
type game struct {
	in     *bufio.Scanner
	out    io.Writer
	s      *session.Session
	grid   board.Grid
	opts   *playOptions
	logger *logging.Logger

	st  *store.Store
	id  string
	rec *store.MoveRecorder
}

func runPlay(r io.Reader, w io.Writer, cfg *config.Config, bank []tasks.TaskRecord, opts *playOptions, logger *logging.Logger) error {
	s, err := session.New(session.Options{
		Seed:        opts.seed,
		BoardSize:   cfg.Game.BoardSize,
		NumPlayers:  cfg.Game.Players,
		PlayerNames: cfg.Game.PlayerNames,
		Weights:     cfg.Weights(),
		Tasks:       bank,
		Filter:      tasks.Filter{Pack: opts.pack, Levels: opts.levels},
	})
	if err != nil {
		return err
	}
	if err := s.SetShowAnswer(opts.showAnswers); err != nil {
		return err
	}
	if len(s.FilteredPool()) == 0 {
		return fmt.Errorf("no tasks to draw: %w", session.ErrEmptyPool)
	}

	grid, err := board.Layout(s.State().BoardSize, cfg.Game.Columns)
	if err != nil {
		return err
	}
	g := &game{in: bufio.NewScanner(r), out: w, s: s, grid: grid, opts: opts, logger: logger}

	if opts.save {
		if err := g.attachStore(cfg); err != nil {
			return err
		}
		defer g.detachStore()
	}

	fmt.Fprintf(w, "%s (seed %d)\n", titleStyle.Render(fmt.Sprintf("Lingo Ladders: %d squares", grid.Size)), s.Seed())
	fmt.Fprintln(w, renderLegend(s.Jumps()))
	return g.loop()
}

func (g *game) attachStore(cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	id, err := st.CreateSession(g.opts.name, g.s.Snapshot())
	if err != nil {
		st.Close()
		return err
	}
	g.st, g.id = st, id
	g.rec = store.NewMoveRecorder(st, id, cfg.Store.FlushSize, g.logger.WithSession(id).Slog())
	g.s.SetRecorder(g.rec)
	fmt.Fprintf(g.out, "Saving as session %s\n", id)
	return nil
}

func (g *game) detachStore() {
	g.rec.Flush()
	if err := g.st.SaveSnapshot(g.id, g.s.Snapshot()); err != nil {
		g.logger.Error("save snapshot", "session_id", g.id, "error", err)
	}
	g.st.Close()
}

// ask prints prompt and reads a line. ok is false at end of input.
func (g *game) ask(prompt string) (string, bool) {
	fmt.Fprint(g.out, prompt)
	if !g.in.Scan() {
		fmt.Fprintln(g.out)
		return "", false
	}
	return strings.TrimSpace(g.in.Text()), true
}

func (g *game) loop() error {
	for {
		st := g.s.State()
		fmt.Fprintln(g.out)
		fmt.Fprintln(g.out, renderBoard(g.grid, g.s.Jumps(), st.Players))

		cur := g.s.CurrentPlayer()
		line, ok := g.ask(fmt.Sprintf("%s on %d. Enter to roll, q to quit: ", tokenStyle.Render(cur.Name), cur.Position))
		if !ok || strings.EqualFold(line, "q") {
			g.printStats()
			return nil
		}

		ev, err := g.s.RollAndDraw()
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "Rolled %d. %s\n", ev.RollValue, mutedStyle.Render(describeType(ev.Task.Type)))
		fmt.Fprintf(g.out, "  %s\n", ev.Task.Prompt)
		if st.ShowAnswer && ev.Task.Target != "" {
			fmt.Fprintf(g.out, "  %s\n", mutedStyle.Render("answer: "+ev.Task.Target))
		}

		success, ok := g.askOutcome()
		if !ok {
			g.printStats()
			return nil
		}
		res, err := g.move(success)
		if err != nil {
			return err
		}
		fmt.Fprintln(g.out, describeMove(res))

		if g.st != nil {
			if err := g.st.SaveSnapshot(g.id, g.s.Snapshot()); err != nil {
				return err
			}
		}
		if res.Won {
			fmt.Fprintln(g.out)
			fmt.Fprintln(g.out, renderBoard(g.grid, g.s.Jumps(), g.s.State().Players))
			fmt.Fprintln(g.out, titleStyle.Render(fmt.Sprintf("%s wins on turn %d!", res.PlayerName, res.Turn)))
			g.printStats()
			return nil
		}
	}
}

func (g *game) askOutcome() (bool, bool) {
	for {
		line, ok := g.ask("Correct? [y/n]: ")
		if !ok {
			return false, false
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, true
		case "n", "no":
			return false, true
		}
	}
}

// move walks the frames at the configured pace, then commits.
func (g *game) move(success bool) (session.MoveResult, error) {
	mv, err := g.s.BeginMove(success)
	if err != nil {
		return session.MoveResult{}, err
	}
	if g.opts.pace > 0 {
		for f := range mv.Frames() {
			switch f.Kind {
			case session.FrameStep:
				fmt.Fprintf(g.out, " %d", f.Square)
			case session.FrameJump:
				fmt.Fprintf(g.out, " ⇒ %d", f.Square)
			case session.FrameSettle:
				fmt.Fprintln(g.out)
			}
			time.Sleep(g.opts.pace)
		}
	}
	return mv.Commit()
}

func describeType(t tasks.Type) string {
	switch t {
	case tasks.TypeSpeaking:
		return "Speaking"
	case tasks.TypeErrorCorrection:
		return "Fix the error"
	case tasks.TypeTranslateCaEn:
		return "Translate CA → EN"
	case tasks.TypeTranslateEnCa:
		return "Translate EN → CA"
	}
	return string(t)
}

func describeMove(res session.MoveResult) string {
	switch {
	case !res.Success:
		return failStyle.Render(fmt.Sprintf("%s stays on %d.", res.PlayerName, res.From))
	case res.Overshoot:
		return failStyle.Render(fmt.Sprintf("%s needs an exact roll; stays on %d.", res.PlayerName, res.From))
	case res.Jump != nil && res.Jump.Ladder():
		return okStyle.Render(fmt.Sprintf("%s lands on %d and climbs a ladder to %d!", res.PlayerName, res.Landed, res.To))
	case res.Jump != nil:
		return failStyle.Render(fmt.Sprintf("%s lands on %d and slides down a snake to %d.", res.PlayerName, res.Landed, res.To))
	}
	return okStyle.Render(fmt.Sprintf("%s moves %d → %d.", res.PlayerName, res.From, res.To))
}

func (g *game) printStats() {
	st := g.s.Stats()
	if st.Turns == 0 {
		return
	}
	fmt.Fprintln(g.out)
	fmt.Fprintf(g.out, "%s after %d turns\n", titleStyle.Render("Stats"), st.Turns)
	for _, p := range st.Players {
		fmt.Fprintf(g.out, "  %-12s %d/%d correct (%s%%)  ladders %d  snakes %d\n",
			p.Name, p.Successes, p.Attempts, p.Accuracy(), p.Ladders, p.Snakes)
	}
}
