package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assetflow/handover-service/internal/persistence"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	List bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if opts.List {
				names, err := persistence.MigrationNames()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required to run migrations")
			}

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
				return err
			}
			fmt.Fprintln(out, "migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "print embedded migration names without connecting")

	return cmd
}
