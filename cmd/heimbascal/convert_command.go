package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bonii97/Heimbas-Calender/internal/config"
	"github.com/Bonii97/Heimbas-Calender/internal/pipeline"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var userLabel string
	var output string
	var printTable bool
	var forward bool

	cmd := &cobra.Command{
		Use:   "convert <page.html>",
		Short: "Convert a saved Einsatz-Vorschau page into an ICS file",
		Long: "Convert reads a page saved from the portal (for example lastpage.html)\n" +
			"and writes the calendar without starting a browser. Records are only\n" +
			"forwarded to the webhook with --forward.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}

			u := cfg.Users[0]
			if userLabel != "" {
				var ok bool
				if u, ok = cfg.User(userLabel); !ok {
					return fmt.Errorf("unknown user %q", userLabel)
				}
			}
			if output != "" {
				u.Output = output
			}

			local := *cfg
			if !forward {
				local.Webhook = config.WebhookConfig{}
			}
			res, err := pipeline.NewRunner(&local).Convert(cmd.Context(), string(doc), u)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printTable {
				fmt.Fprintln(out, renderEntries(res.Entries, shouldColorize(out)))
			}
			fmt.Fprintf(out, "%d entries written to %s (%d rows dropped, %d skipped)\n",
				res.Stats.Entries, res.Output, res.Stats.Dropped, res.Stats.Skipped)
			if !res.Forwarded.Skipped {
				fmt.Fprintf(out, "webhook: %d sent, %d failed\n", res.Forwarded.Sent, res.Forwarded.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userLabel, "user", "u", "", "User label whose output and webhook identity are used")
	cmd.Flags().StringVarP(&output, "output", "o", "", "ICS output path (overrides the user's output)")
	cmd.Flags().BoolVar(&printTable, "print", false, "Print the resolved entries as a table")
	cmd.Flags().BoolVar(&forward, "forward", false, "Forward the entries to the configured webhook")
	return cmd
}
