package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/api"
	"github.com/MJE43/lingo-ladders/internal/authtoken"
	"github.com/MJE43/lingo-ladders/internal/store"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local game API",
		Long: `Serve the session engine over HTTP on a loopback address.

Requests under /api/v1 must carry the API token in the X-Ladders-Token header
unless api.require_token is false. The token is created on first run and kept
in the OS keyring; see "ladders token".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{
				"api.addr":     "addr",
				"store.path":   "db",
				"tasks.source": "tasks",
			})
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bank, err := loadBank(ctx, cfg, logger)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			var token string
			if cfg.API.RequireToken {
				var created bool
				token, created, err = tokenStore().Ensure(profile)
				if err != nil {
					return fmt.Errorf("api token: %w", err)
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Created API token for profile %q: %s\n", profile, token)
				}
			}

			manager := api.NewManager(st, bank, cfg.Weights(), cfg.Store.FlushSize, logger)
			srv := api.NewServer(manager, st, api.Options{
				Addr:           cfg.API.Addr,
				Token:          token,
				AllowedOrigins: cfg.API.AllowedOrigins,
				RequestTimeout: cfg.API.RequestTimeout(),
				Columns:        cfg.Game.Columns,
				Workers:        cfg.Simulate.Workers,
				Loader:         newLoader(cfg),
			}, logger)

			addr, err := srv.Start()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s (%d tasks)\n", addr, len(bank))

			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides api.addr)")
	cmd.Flags().String("db", "", "SQLite database path (overrides store.path)")
	cmd.Flags().String("tasks", "", "task bank file or URL (overrides tasks.source)")
	cmd.Flags().StringVar(&profile, "profile", authtoken.DefaultProfile, "token profile")
	return cmd
}
