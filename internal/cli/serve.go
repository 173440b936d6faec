package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"draftforge/internal/engine"
	"draftforge/internal/handlers"
	"draftforge/internal/notify"
	"draftforge/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Interval time.Duration

	// ClaimGenerator allows overriding the claim token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	ClaimGenerator engine.ClaimTokenGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pipeline daemon",
		Long: `Start the pipeline processing loop.

The daemon opens the SQLite database (creating it if it doesn't exist),
wires a handler for every pipeline stage, and starts ticking: each tick
claims the oldest runnable article, runs its stage handler, and advances
or retries it. Stuck articles are recovered on the same cadence.

Example:
  draftforge serve --db ./draftforge.db
  draftforge serve --config ./draftforge.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "tick interval (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	slog.Info("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database ready")

	reg, err := handlers.DefaultRegistry(cfg.Linker.Links, cfg.Linker.MaxLinks)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build handler registry", err)
	}

	engineOpts := []engine.Option{
		engine.WithMaxRetries(cfg.Pipeline.MaxRetries),
		engine.WithStuckAfter(cfg.StuckAfter()),
	}
	if opts.ClaimGenerator != nil {
		engineOpts = append(engineOpts, engine.WithClaimTokens(opts.ClaimGenerator))
	}
	eng := engine.New(st, reg, engineOpts...)

	interval := opts.Interval
	if interval <= 0 {
		interval = cfg.Interval()
	}
	hub := notify.NewHub()
	sched := engine.NewScheduler(eng, interval, hub)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("pipeline starting", "db", cfg.Database.Path, "interval", interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Pipeline started. Processing approved topics...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "pipeline error", err)
	}

	slog.Info("pipeline stopped gracefully")
	return nil
}
