package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"draftforge/internal/notify"
	"draftforge/internal/pipeline"
	"draftforge/internal/store"
)

// DefaultMaxRetries bounds how many times a stage is re-attempted
// before the article moves to the failed state.
const DefaultMaxRetries = 3

// DefaultStuckAfter is how long an article may sit without a
// transition attempt before RecoverStuck treats it as stalled.
const DefaultStuckAfter = time.Hour

// Engine drives articles through the pipeline, one claimed article per
// tick. See the package comment for the full processing model.
type Engine struct {
	store      *store.Store
	registry   *Registry
	claimGen   ClaimTokenGenerator
	maxRetries int
	stuckAfter time.Duration
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries overrides the retry bound. Use WithMaxRetries(0) to
// fail articles on the first error.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithStuckAfter overrides the staleness threshold.
func WithStuckAfter(d time.Duration) Option {
	return func(e *Engine) { e.stuckAfter = d }
}

// WithClock overrides the wall clock. Tests use this together with
// testutil.Clock to make staleness deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithClaimTokens overrides the claim-token generator (for testing).
func WithClaimTokens(g ClaimTokenGenerator) Option {
	return func(e *Engine) { e.claimGen = g }
}

// New creates an Engine over the given store and handler registry.
func New(s *store.Store, r *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		registry:   r,
		claimGen:   UUIDv7Generator{},
		maxRetries: DefaultMaxRetries,
		stuckAfter: DefaultStuckAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick processes at most one pending article through its current
// stage. Returns processed=false when nothing was eligible - a normal,
// frequent outcome, not an error.
//
// The returned error is either a *ConfigError (fatal: a runnable state
// has no handler) or a store error; handler failures never surface
// here, they become retry bookkeeping.
func (e *Engine) Tick(ctx context.Context) (processed bool, err error) {
	token := e.claimGen.Generate()

	article, err := e.store.ClaimNext(ctx, token, e.now())
	if err != nil {
		return false, fmt.Errorf("tick: %w", err)
	}
	if article == nil {
		return false, nil
	}

	// The claim must be released on every path, including handler
	// panics and store failures below. The success/failure patches
	// clear it atomically with the transition, making this a no-op on
	// the normal paths.
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if relErr := e.store.ReleaseClaim(releaseCtx, article.ID, token); relErr != nil {
			slog.Error("release claim failed", "article", article.ID, "error", relErr)
		}
	}()

	handler, ok := e.registry.Handler(article.State)
	if !ok {
		return false, &ConfigError{State: article.State}
	}

	slog.Debug("processing article",
		"article", article.ID,
		"state", article.State,
		"retry_count", article.RetryCount,
	)

	outcome := runHandler(ctx, handler, *article)

	if outcome.Success {
		if vErr := pipeline.ValidateFields(article.State, outcome.Fields); vErr != nil {
			// A handler writing outside its slot is a handler bug,
			// handled like any other stage failure.
			outcome = Fail(vErr.Error())
		}
	}

	if outcome.Success {
		return true, e.applySuccess(ctx, article, outcome.Fields)
	}
	return true, e.applyFailure(ctx, article, outcome.Reason)
}

// runHandler invokes a stage handler behind a catch-all boundary: a
// panic is indistinguishable from a failure outcome.
func runHandler(ctx context.Context, h Handler, article pipeline.Article) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failf("handler panic: %v", r)
		}
	}()
	return h.Process(ctx, article)
}

// applySuccess advances the article to the next state, merging the
// handler's field updates and resetting retry bookkeeping, atomically
// with the state_changed event.
func (e *Engine) applySuccess(ctx context.Context, article *pipeline.Article, fields map[string]any) error {
	next, ok := pipeline.Next(article.State)
	if !ok {
		return fmt.Errorf("tick: state %q has no successor", article.State)
	}

	zero := 0
	noError := ""
	patch := store.Patch{
		Fields:     fields,
		State:      &next,
		RetryCount: &zero,
		LastError:  &noError,
		ClearClaim: true,
	}
	if next == pipeline.StatePublished {
		t := e.now()
		patch.PublishedAt = &t
	}

	data := map[string]any{
		"from": article.State.String(),
		"to":   next.String(),
	}
	if err := e.store.ApplyTransition(ctx, article.ID, patch, pipeline.EventStateChanged, data); err != nil {
		return fmt.Errorf("tick: %w", err)
	}

	slog.Info("article transitioned",
		"article", article.ID,
		"from", article.State,
		"to", next,
	)
	return nil
}

// applyFailure runs the retry policy: bounded retries in place, then a
// terminal move to the failed state. Shared by handler failures and
// stuck-article recovery, so the two are indistinguishable to the
// retry accounting.
func (e *Engine) applyFailure(ctx context.Context, article *pipeline.Article, reason string) error {
	if article.RetryCount < e.maxRetries {
		attempt := article.RetryCount + 1
		patch := store.Patch{
			RetryCount: &attempt,
			LastError:  &reason,
			ClearClaim: true,
		}
		data := map[string]any{
			"attempt": attempt,
			"state":   article.State.String(),
			"error":   reason,
		}
		if err := e.store.ApplyTransition(ctx, article.ID, patch, pipeline.EventRetry, data); err != nil {
			return fmt.Errorf("record retry: %w", err)
		}

		slog.Warn("stage failed, will retry",
			"article", article.ID,
			"state", article.State,
			"attempt", attempt,
			"max_retries", e.maxRetries,
			"error", reason,
		)
		return nil
	}

	failed := pipeline.StateFailed
	patch := store.Patch{
		State:      &failed,
		LastError:  &reason,
		ClearClaim: true,
	}
	data := map[string]any{
		"from":  article.State.String(),
		"error": reason,
	}
	if err := e.store.ApplyTransition(ctx, article.ID, patch, pipeline.EventError, data); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	slog.Error("article failed permanently",
		"article", article.ID,
		"state", article.State,
		"error", reason,
	)
	return nil
}

// RecoverStuck sweeps for stalled work and feeds it through the
// standard failure bookkeeping with a timeout reason. Returns how many
// articles were recovered.
//
// Two kinds of stall are handled, in order:
//
//  1. Expired claims: a process died mid-handler and its claim was
//     never released. The claim is force-dropped (with a recovered
//     event) so the article becomes visible to the staleness scan.
//  2. Stale unclaimed articles: updated_at older than the threshold.
//
// The sweep is idempotent: recovery bumps updated_at, so an immediate
// second sweep finds nothing.
func (e *Engine) RecoverStuck(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.stuckAfter)

	released, err := e.store.ReleaseExpiredClaims(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stuck: %w", err)
	}
	for _, id := range released {
		if err := e.store.AppendEvent(ctx, id, pipeline.EventRecovered, map[string]any{
			"reason": "claim expired",
		}); err != nil {
			return 0, fmt.Errorf("recover stuck: %w", err)
		}
		slog.Warn("released expired claim", "article", id)
	}

	stuck, err := e.store.QueryStuck(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stuck: %w", err)
	}

	recovered := 0
	for i := range stuck {
		article := stuck[i]
		reason := fmt.Sprintf("timeout: no progress within %s", e.stuckAfter)
		if err := e.applyFailure(ctx, &article, reason); err != nil {
			return recovered, fmt.Errorf("recover stuck: %w", err)
		}
		recovered++
	}
	return recovered, nil
}

// Status assembles a live snapshot of the pipeline for observers.
func (e *Engine) Status(ctx context.Context) (notify.Status, error) {
	counts, err := e.store.StateCounts(ctx)
	if err != nil {
		return notify.Status{}, fmt.Errorf("status: %w", err)
	}
	claimed, err := e.store.CountClaimed(ctx)
	if err != nil {
		return notify.Status{}, fmt.Errorf("status: %w", err)
	}

	states := make(map[string]int, len(counts))
	stages := make(map[string]string)
	total := 0
	queue := 0
	for st, n := range counts {
		states[st.String()] = n
		total += n
		if st.Runnable() {
			queue += n
			if n > 0 {
				stages[st.String()] = "working"
			} else {
				stages[st.String()] = "idle"
			}
		}
	}

	return notify.Status{
		At:         e.now(),
		States:     states,
		Stages:     stages,
		QueueDepth: queue,
		Claimed:    claimed,
		Total:      total,
	}, nil
}

// MaxRetries returns the configured retry bound. Used for tests and
// diagnostics.
func (e *Engine) MaxRetries() int {
	return e.maxRetries
}

// StuckAfter returns the configured staleness threshold.
func (e *Engine) StuckAfter() time.Duration {
	return e.stuckAfter
}
