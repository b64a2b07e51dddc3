package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/tasks"
)

func newPacksCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "packs",
		Short: "List the packs and levels in the task bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{"tasks.source": "tasks"})
			if err != nil {
				return err
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
			packs := tasks.ListPacks(bank)
			levels := tasks.ListLevels(bank)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Packs  []tasks.Pack `json:"packs"`
					Levels []string     `json:"levels"`
					Total  int          `json:"total"`
				}{packs, levels, len(bank)})
			}

			if len(bank) == 0 {
				fmt.Fprintln(out, "No tasks loaded. Point tasks.source or --tasks at a CSV or JSON bank.")
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d tasks", len(bank))))
			for _, p := range packs {
				fmt.Fprintf(out, "  %-24s %d\n", p.Name, p.Count)
			}
			if len(levels) > 0 {
				fmt.Fprintf(out, "Levels: %s\n", strings.Join(levels, ", "))
			}
			return nil
		},
	}
	cmd.Flags().String("tasks", "", "task bank file or URL (overrides tasks.source)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
