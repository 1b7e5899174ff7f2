package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-classify aging tiers of open work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			go rt.notifications.Run(cmd.Context())
			defer rt.notifications.Stop()

			sweep := rt.agingSweep()
			if !once {
				sweep.Run(cmd.Context())
				return nil
			}

			result, err := sweep.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.Skipped {
				fmt.Fprintln(out, "skipped: another replica holds the sweep lease")
				return nil
			}
			fmt.Fprintf(out, "scanned=%d changed=%d conflicts=%d\n", result.Scanned, result.Changed, result.Conflicts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}
