package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the root command for the handover service.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "handover",
		Short: "Asset handover signature service",
		Long: `Runs the asset handover signature workflow: staff create handovers,
recipients sign or dispute them through a single-use link, and background
sweeps send reminders and expire unanswered links.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStaffTokenCommand(opts))

	return cmd
}

// load reads configuration and builds the logger, applying flag overrides.
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Logger.Level = o.LogLevel
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
