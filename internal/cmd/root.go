// Package cmd implements the ladders command line.
package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/authtoken"
	"github.com/MJE43/lingo-ladders/internal/config"
	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/taskbank"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

type rootOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the ladders command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ladders",
		Short: "Snakes and ladders for language practice",
		Long: `Ladders runs a snakes-and-ladders board where every roll draws a
language task. A correct answer moves the player; a wrong one passes the turn.

Run "ladders serve" for the local API used by the front end, or
"ladders play" for a game in the terminal.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./ladders.yaml or $XDG_CONFIG_HOME/lingo-ladders/ladders.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newBoardCmd(opts),
		newSimulateCmd(opts),
		newPacksCmd(opts),
		newPlayCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads configuration for cmd. bind maps config keys to flags of
// cmd; a flag only overrides the file when it was set.
func (o *rootOptions) loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, error) {
	v, err := config.NewViper(o.cfgFile)
	if err != nil {
		return nil, err
	}
	for key, name := range bind {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	if o.logLevel != "" {
		v.Set("logging.level", o.logLevel)
	}
	return config.Load(v)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

// loadBank reads the configured task bank. An unset source yields an empty
// bank.
func loadBank(ctx context.Context, cfg *config.Config, logger *logging.Logger) ([]tasks.TaskRecord, error) {
	if cfg.Tasks.Source == "" {
		logger.Warn("no task source configured; set tasks.source to load a bank")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Tasks.Timeout())
	defer cancel()

	bank, report, err := newLoader(cfg).Load(ctx, cfg.Tasks.Source)
	if err != nil {
		return nil, fmt.Errorf("load tasks from %s: %w", cfg.Tasks.Source, err)
	}
	for _, issue := range report.Skipped {
		logger.Debug("task row skipped", "row", issue.Row, "reason", issue.Reason)
	}
	logger.Info("task bank loaded",
		"source", cfg.Tasks.Source,
		"loaded", report.Loaded,
		"skipped", len(report.Skipped),
		"repaired", len(report.Repaired),
	)
	return bank, nil
}

func newLoader(cfg *config.Config) *taskbank.Loader {
	return taskbank.NewLoader(taskbank.Config{MaxRetries: cfg.Tasks.MaxRetries})
}

func tokenStore() *authtoken.Store {
	return authtoken.NewStore(authtoken.DefaultService, filepath.Join(config.ConfigDir(), "token.json"))
}
