package cli

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/worker"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoSweeps        bool
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweeps",
		Long: `Start the HTTP API together with the reminder and expiry sweeps.

Sweeps take a lease before each tick, so several replicas can run serve
against the same database. Pass --no-sweeps to run the API only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSweeps, "no-sweeps", false, "do not run the reminder and expiry sweeps")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup
	if !opts.NoSweeps {
		sweeps := []*worker.Periodic{
			a.periodic(worker.ReminderSweepName, a.reminderSweeper.Task()),
			a.periodic(worker.ExpirySweepName, a.expiryReaper.Task()),
		}
		for _, p := range sweeps {
			wg.Add(1)
			go func(p *worker.Periodic) {
				defer wg.Done()
				if err := p.Run(ctx); err != nil {
					logger.Error("sweep stopped", zap.String("sweep", p.Name), zap.Error(err))
				}
			}(p)
		}
	}

	server := a.httpServer()
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- server.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-listenErr:
		logger.Error("http server stopped", zap.Error(err))
	}
	stop()

	if shutdownErr := server.ShutdownWithTimeout(opts.ShutdownTimeout); shutdownErr != nil {
		logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
