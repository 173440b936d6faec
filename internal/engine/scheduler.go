package engine

import (
	"context"
	"log/slog"
	"time"

	"draftforge/internal/notify"
)

// DefaultInterval is the scheduler's default tick period.
const DefaultInterval = 5 * time.Second

// Scheduler is the timed driver: every interval it runs one engine
// tick, one stuck-work sweep, and publishes a status snapshot.
//
// Multiple schedulers may safely share one database - the store's
// per-article claim, not scheduler exclusivity, is what guarantees
// correctness.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	hub      *notify.Hub
}

// NewScheduler creates a scheduler. hub may be nil to disable status
// publishing. A non-positive interval falls back to DefaultInterval.
func NewScheduler(e *Engine, interval time.Duration, hub *notify.Hub) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{engine: e, interval: interval, hub: hub}
}

// Run drives the engine until ctx is cancelled, returning ctx.Err().
// Cancellation stops future ticks; it does not abort an in-flight one.
//
// Store errors are logged and retried on the next interval - one bad
// tick must not kill the loop. A ConfigError is the exception: it
// means the deployment is wired wrong and the loop aborts loudly.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping: context cancelled")
			return ctx.Err()

		case <-ticker.C:
			if err := s.step(ctx); err != nil {
				slog.Error("scheduler aborting: configuration error", "error", err)
				return err
			}
		}
	}
}

// step runs one scheduling round. Only configuration errors are
// returned; everything else is logged and absorbed.
func (s *Scheduler) step(ctx context.Context) error {
	if _, err := s.engine.Tick(ctx); err != nil {
		if IsConfigError(err) {
			return err
		}
		slog.Error("tick failed", "error", err)
	}

	if n, err := s.engine.RecoverStuck(ctx); err != nil {
		slog.Error("stuck recovery failed", "error", err)
	} else if n > 0 {
		slog.Warn("recovered stuck articles", "count", n)
	}

	s.publishStatus(ctx)
	return nil
}

func (s *Scheduler) publishStatus(ctx context.Context) {
	if s.hub == nil {
		return
	}
	status, err := s.engine.Status(ctx)
	if err != nil {
		slog.Error("status snapshot failed", "error", err)
		return
	}
	s.hub.Publish(status)
}
