package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftforge/internal/pipeline"
	"draftforge/internal/store"
	"draftforge/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// passRegistry binds a no-payload success handler to every runnable
// state, so ticks walk the chain without producing content.
func passRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, state := range pipeline.RunnableStates() {
		require.NoError(t, reg.Register(state, HandlerFunc(
			func(ctx context.Context, a pipeline.Article) Outcome {
				return Succeed(nil)
			})))
	}
	require.NoError(t, reg.Validate())
	return reg
}

// registryWith is passRegistry with one state's handler overridden.
func registryWith(t *testing.T, state pipeline.State, h Handler) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, s := range pipeline.RunnableStates() {
		handler := Handler(HandlerFunc(func(ctx context.Context, a pipeline.Article) Outcome {
			return Succeed(nil)
		}))
		if s == state {
			handler = h
		}
		require.NoError(t, reg.Register(s, handler))
	}
	return reg
}

func seedArticle(t *testing.T, s *store.Store, title string, state pipeline.State) pipeline.Article {
	t.Helper()
	a, err := s.CreateArticle(context.Background(), "", title, state)
	require.NoError(t, err)
	return a
}

func backdate(t *testing.T, s *store.Store, id string, to time.Time) {
	t.Helper()
	_, err := s.DB().Exec(`UPDATE articles SET updated_at = ? WHERE id = ?`, to.UTC(), id)
	require.NoError(t, err)
}

func TestTick_EmptyQueue(t *testing.T) {
	st := newTestStore(t)
	eng := New(st, passRegistry(t))

	processed, err := eng.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)

	n, err := st.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "an idle tick must write nothing")
}

func TestTick_SuccessAdvancesOneState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, passRegistry(t))

	a := seedArticle(t, st, "Tick Me", pipeline.StatePending)

	processed, err := eng.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateResearching, got.State)
	assert.Zero(t, got.RetryCount)
	assert.False(t, got.Claimed(), "claim must be released with the transition")

	evs, err := st.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, pipeline.EventStateChanged, evs[0].Type)
	assert.Equal(t, "pending", evs[0].Data["from"])
	assert.Equal(t, "researching", evs[0].Data["to"])
}

func TestTick_TwelveSuccessesReachPublished(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, passRegistry(t))

	a := seedArticle(t, st, "Full Run", pipeline.StatePending)

	for i := 0; i < 12; i++ {
		processed, err := eng.Tick(ctx)
		require.NoError(t, err, "tick %d", i)
		require.True(t, processed, "tick %d found no work", i)
	}

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatePublished, got.State)
	require.NotNil(t, got.PublishedAt)

	evs, err := st.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 12)

	expected := pipeline.StatePending
	for i, ev := range evs {
		next, ok := pipeline.Next(expected)
		require.True(t, ok)
		assert.Equal(t, pipeline.EventStateChanged, ev.Type, "event %d", i)
		assert.Equal(t, expected.String(), ev.Data["from"], "event %d", i)
		assert.Equal(t, next.String(), ev.Data["to"], "event %d", i)
		expected = next
	}

	// Nothing left to do.
	processed, err := eng.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestTick_FailureRetriesInPlace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, registryWith(t, pipeline.StateWriting, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			return Fail("model unavailable")
		})))

	a := seedArticle(t, st, "Flaky", pipeline.StateWriting)

	processed, err := eng.Tick(ctx)
	require.NoError(t, err, "handler failure is bookkeeping, not a tick error")
	assert.True(t, processed)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateWriting, got.State, "state must not change on retry")
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "model unavailable", got.LastError)
	assert.False(t, got.Claimed())

	evs, err := st.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, pipeline.EventRetry, evs[0].Type)
	assert.Equal(t, float64(1), evs[0].Data["attempt"])
}

func TestTick_RetryExhaustionMovesToFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, registryWith(t, pipeline.StateWriting, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			return Fail("still broken")
		})), WithMaxRetries(2))

	a := seedArticle(t, st, "Doomed", pipeline.StateWriting)

	// Attempts 1 and 2 retry, the third failure is terminal.
	for i := 0; i < 3; i++ {
		_, err := eng.Tick(ctx)
		require.NoError(t, err)
	}

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateFailed, got.State)
	assert.Equal(t, "still broken", got.LastError)

	evs, err := st.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, pipeline.EventRetry, evs[0].Type)
	assert.Equal(t, pipeline.EventRetry, evs[1].Type)
	assert.Equal(t, pipeline.EventError, evs[2].Type)
	assert.Equal(t, "writing", evs[2].Data["from"])

	// Failed articles are out of the queue.
	processed, err := eng.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestTick_SuccessResetsRetryBookkeeping(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, passRegistry(t))

	a := seedArticle(t, st, "Recovering", pipeline.StateWriting)
	two := 2
	boom := "boom"
	_, err := st.UpdateArticle(ctx, a.ID, store.Patch{RetryCount: &two, LastError: &boom})
	require.NoError(t, err)

	_, err = eng.Tick(ctx)
	require.NoError(t, err)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateEnriching, got.State)
	assert.Zero(t, got.RetryCount, "success must reset the retry count")
	assert.Empty(t, got.LastError)
}

func TestTick_PanicIsAFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, registryWith(t, pipeline.StateWriting, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			panic("nil dereference in handler")
		})))

	a := seedArticle(t, st, "Panicky", pipeline.StateWriting)

	processed, err := eng.Tick(ctx)
	require.NoError(t, err, "a panicking handler must not crash the engine")
	assert.True(t, processed)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateWriting, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "handler panic")
	assert.Contains(t, got.LastError, "nil dereference")
	assert.False(t, got.Claimed())
}

func TestTick_SlotViolationIsAFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, registryWith(t, pipeline.StateWriting, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			return Succeed(map[string]any{pipeline.SlotSEO: map[string]any{"keyword": "smuggled"}})
		})))

	a := seedArticle(t, st, "Overreaching", pipeline.StateWriting)

	_, err := eng.Tick(ctx)
	require.NoError(t, err)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateWriting, got.State, "violating outcome must not advance the article")
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "may not write")
	assert.Nil(t, got.SEO, "the foreign slot must stay untouched")
}

func TestTick_MissingHandlerIsConfigError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	reg := NewRegistry()
	require.NoError(t, reg.Register(pipeline.StatePending, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			return Succeed(nil)
		})))
	eng := New(st, reg)

	a := seedArticle(t, st, "Unroutable", pipeline.StateWriting)

	_, err := eng.Tick(ctx)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateWriting, got.State)
	assert.Zero(t, got.RetryCount, "a config gap is not the article's fault")
	assert.False(t, got.Claimed(), "claim must be released on the error path")
}

func TestTick_AtMostOneConcurrentClaim(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var invocations atomic.Int64
	eng := New(st, registryWith(t, pipeline.StateWriting, HandlerFunc(
		func(ctx context.Context, a pipeline.Article) Outcome {
			invocations.Add(1)
			time.Sleep(50 * time.Millisecond)
			return Succeed(nil)
		})))

	seedArticle(t, st, "Contended", pipeline.StateWriting)

	const workers = 8
	var wg sync.WaitGroup
	var processedCount atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processed, err := eng.Tick(ctx)
			assert.NoError(t, err)
			if processed {
				processedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), invocations.Load(), "exactly one worker may run the handler")
	assert.Equal(t, int64(1), processedCount.Load())
}

func TestRecoverStuck_TimesOutStaleArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Now())
	eng := New(st, passRegistry(t), WithStuckAfter(time.Hour), WithClock(clock.Now))

	a := seedArticle(t, st, "Stalled", pipeline.StateWriting)
	backdate(t, st, a.ID, clock.Now().Add(-2*time.Hour))

	recovered, err := eng.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateWriting, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "timeout: no progress")

	// Recovery bumped updated_at, so an immediate second sweep is a no-op.
	recovered, err = eng.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestRecoverStuck_ExhaustsRetriesIntoFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Now())
	eng := New(st, passRegistry(t), WithStuckAfter(time.Hour), WithClock(clock.Now), WithMaxRetries(1))

	a := seedArticle(t, st, "Chronically Stalled", pipeline.StateRevising)

	backdate(t, st, a.ID, clock.Now().Add(-2*time.Hour))
	_, err := eng.RecoverStuck(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = eng.RecoverStuck(ctx)
	require.NoError(t, err)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateFailed, got.State)
}

func TestRecoverStuck_ReleasesExpiredClaim(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Now())
	eng := New(st, passRegistry(t), WithStuckAfter(time.Hour), WithClock(clock.Now))

	a := seedArticle(t, st, "Orphaned", pipeline.StateEnriching)
	stale := clock.Now().Add(-2 * time.Hour).UTC()
	_, err := st.DB().Exec(
		`UPDATE articles SET claimed_at = ?, claimed_by = 'dead-process', updated_at = ? WHERE id = ?`,
		stale, stale, a.ID,
	)
	require.NoError(t, err)

	recovered, err := eng.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered, "released article must fall through to the staleness sweep")

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Claimed())
	assert.Equal(t, 1, got.RetryCount)

	evs, err := st.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, pipeline.EventRecovered, evs[0].Type)
	assert.Equal(t, "claim expired", evs[0].Data["reason"])
	assert.Equal(t, pipeline.EventRetry, evs[1].Type)
}

func TestRecoverStuck_LeavesReadyArticlesAlone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Now())
	eng := New(st, passRegistry(t), WithStuckAfter(time.Hour), WithClock(clock.Now))

	a := seedArticle(t, st, "Awaiting Publish", pipeline.StateReady)
	backdate(t, st, a.ID, clock.Now().Add(-48*time.Hour))

	recovered, err := eng.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered, "ready is waiting, not stuck")

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateReady, got.State)
	assert.Zero(t, got.RetryCount)
}

func TestStatus_Snapshot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	eng := New(st, passRegistry(t))

	seedArticle(t, st, "One", pipeline.StateWriting)
	seedArticle(t, st, "Two", pipeline.StateWriting)
	seedArticle(t, st, "Done", pipeline.StatePublished)

	status, err := eng.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.QueueDepth, "published articles are not queued")
	assert.Zero(t, status.Claimed)
	assert.Equal(t, 2, status.States["writing"])
	assert.Equal(t, "working", status.Stages["writing"])
	assert.Equal(t, "idle", status.Stages["researching"])
	assert.NotContains(t, status.Stages, "published", "terminal states are not stages")
}
