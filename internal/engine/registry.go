package engine

import (
	"context"
	"fmt"

	"draftforge/internal/pipeline"
)

// Handler executes one pipeline stage for one article.
//
// Handlers are black boxes to the engine: they may perform arbitrary
// external I/O internally, but must not write to the store - all
// persistence goes through the engine, which is the single writer.
// A handler must tolerate re-invocation: retries re-run the stage from
// scratch, so it can never assume it is the first attempt.
type Handler interface {
	Process(ctx context.Context, article pipeline.Article) Outcome
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, article pipeline.Article) Outcome

func (f HandlerFunc) Process(ctx context.Context, article pipeline.Article) Outcome {
	return f(ctx, article)
}

// Outcome is a handler's result: either a set of field updates to merge
// (success) or an error description (failure). Construct with Succeed
// or Fail.
type Outcome struct {
	Success bool
	Fields  map[string]any
	Reason  string
}

// Succeed builds a success outcome carrying the stage's field updates.
// fields may be nil for stages that produce no payload.
func Succeed(fields map[string]any) Outcome {
	return Outcome{Success: true, Fields: fields}
}

// Fail builds a failure outcome with a human-readable reason.
func Fail(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Failf builds a failure outcome with a formatted reason.
func Failf(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

// Registry is the explicit state->handler mapping, built at startup.
// Dispatch is by exact state, never discovered dynamically.
type Registry struct {
	handlers map[pipeline.State]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[pipeline.State]Handler)}
}

// Register binds a handler to a runnable state. Duplicate registration
// and registration for a non-runnable state are both configuration
// bugs and rejected.
func (r *Registry) Register(state pipeline.State, h Handler) error {
	if !state.Runnable() {
		return fmt.Errorf("state %q is not runnable, cannot register a handler for it", state)
	}
	if _, dup := r.handlers[state]; dup {
		return fmt.Errorf("duplicate handler registration for state %q", state)
	}
	if h == nil {
		return fmt.Errorf("nil handler for state %q", state)
	}
	r.handlers[state] = h
	return nil
}

// Handler looks up the handler for a state.
func (r *Registry) Handler(state pipeline.State) (Handler, bool) {
	h, ok := r.handlers[state]
	return h, ok
}

// Validate checks that every runnable state has a handler. Call after
// startup wiring; a gap found later aborts the tick that hits it.
func (r *Registry) Validate() error {
	for _, state := range pipeline.RunnableStates() {
		if _, ok := r.handlers[state]; !ok {
			return &ConfigError{State: state}
		}
	}
	return nil
}
