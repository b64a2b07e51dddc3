package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/lingo-ladders/internal/authtoken"
)

func newTokenCmd(_ *rootOptions) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API token",
	}
	cmd.PersistentFlags().StringVar(&profile, "profile", authtoken.DefaultProfile, "token profile")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the API token, creating one if needed",
			RunE: func(cmd *cobra.Command, args []string) error {
				tok, created, err := tokenStore().Ensure(profile)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintln(cmd.ErrOrStderr(), "created a new token")
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Replace the API token; running servers keep the old one until restart",
			RunE: func(cmd *cobra.Command, args []string) error {
				tok, err := tokenStore().Rotate(profile)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored API token",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := tokenStore().Delete(profile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token for %q deleted\n", profile)
				return nil
			},
		},
	)
	return cmd
}
