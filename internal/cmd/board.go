package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/board"
)

func newBoardCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the board for a size",
		Long: `Render the serpentine board with its ladders (▲) and snakes (▼).

Jumps for sizes other than 100 are scaled from the classic 100-square table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{
				"game.board_size": "size",
				"game.columns":    "columns",
			})
			if err != nil {
				return err
			}
			jumps, err := board.BuildJumps(cfg.Game.BoardSize)
			if err != nil {
				return err
			}
			grid, err := board.Layout(cfg.Game.BoardSize, cfg.Game.Columns)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Grid   board.Grid   `json:"grid"`
					Jumps  []board.Jump `json:"jumps"`
					Chains []board.Jump `json:"chains,omitempty"`
				}{grid, jumps.Edges(), jumps.Chains()})
			}

			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Board %d", cfg.Game.BoardSize)))
			fmt.Fprintln(out, renderBoard(grid, jumps, nil))
			fmt.Fprintln(out, renderLegend(jumps))
			for _, c := range jumps.Chains() {
				fmt.Fprintf(out, "%s %d→%d lands on another jump; only the first hop applies\n",
					mutedStyle.Render("note:"), c.From, c.To)
			}
			return nil
		},
	}
	cmd.Flags().Int("size", 0, "board size (overrides game.board_size)")
	cmd.Flags().Int("columns", 0, "grid width (overrides game.columns)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the layout as JSON")
	return cmd
}
