package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetflow/handover-service/internal/worker"
)

// NewSweepCommand creates the sweep command with one subcommand per sweep.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single background sweep and exit",
		Long: `Run one tick of a background sweep, for cron-style deployments.

The tick honours the same lease as serve, so it is skipped when another
process holds it.`,
	}

	cmd.AddCommand(newSweepSubcommand(rootOpts, worker.ReminderSweepName, "Send due reminders for pending handovers",
		func(a *app) func(context.Context, time.Time) (worker.SweepResult, error) { return a.reminderSweeper.Sweep }))
	cmd.AddCommand(newSweepSubcommand(rootOpts, worker.ExpirySweepName, "Expire handovers whose signing deadline passed",
		func(a *app) func(context.Context, time.Time) (worker.SweepResult, error) { return a.expiryReaper.Sweep }))

	return cmd
}

func newSweepSubcommand(rootOpts *RootOptions, name, short string, pick func(*app) func(context.Context, time.Time) (worker.SweepResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sweep := pick(a)
			var result worker.SweepResult
			p := a.periodic(name, func(ctx context.Context, now time.Time) error {
				var err error
				result, err = sweep(ctx, now)
				return err
			})
			ran, err := p.RunOnce(ctx)
			out := cmd.OutOrStdout()
			if !ran && err == nil {
				fmt.Fprintf(out, "%s: skipped, lease held elsewhere\n", name)
				return nil
			}
			fmt.Fprintf(out, "%s: selected=%d committed=%d skipped=%d failed=%d\n",
				name, result.Selected, result.Committed, result.Skipped, result.Failed)
			return err
		},
	}
}
