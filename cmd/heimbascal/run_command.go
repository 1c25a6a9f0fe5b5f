package main

import (
	"fmt"

	"github.com/spf13/cobra"

	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var userLabel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the schedule once for every configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(cfg)

			if userLabel == "" {
				return runner.RunAll(cmd.Context())
			}

			u, ok := cfg.User(userLabel)
			if !ok {
				return fmt.Errorf("unknown user %q", userLabel)
			}
			res, err := runner.RunUser(cmd.Context(), u)
			if err != nil {
				return fmt.Errorf("user %s: %w", u.Label, err)
			}
			appLog.Info("run finished", "user", res.User, "entries", len(res.Entries), "output", res.Output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userLabel, "user", "u", "", "Only run the user with this label")
	return cmd
}
