package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
)

// newLoginCmd creates the `login` command. It signs in once so the
// persistent profile carries the session into later runs.
func newLoginCmd(launch browserLauncher) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to eCalc and keep the session in the browser profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			sess, cleanup, err := openSession(ctx, cfg, logger, launch)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("Logged in.", zap.String("url", sess.CurrentURL()), zap.String("profile", cfg.Browser.ProfileDir))
			fmt.Fprintln(cmd.OutOrStdout(), "Login successful.")
			return nil
		},
	}
}
