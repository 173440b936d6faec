package pipeline

import "fmt"

// State is one named step of the article pipeline.
type State string

const (
	StatePending         State = "pending"
	StateResearching     State = "researching"
	StateWriting         State = "writing"
	StateEnriching       State = "enriching"
	StateRevising        State = "revising"
	StateFactChecking    State = "fact_checking"
	StateSEOOptimizing   State = "seo_optimizing"
	StateHumanizing      State = "humanizing"
	StateInternalLinking State = "internal_linking"
	StateMediaGenerating State = "media_generating"
	StateFormatting      State = "wordpress_formatting"
	StateReady           State = "ready"
	StatePublished       State = "published"
	StateFailed          State = "failed"
)

// transitions is the linear transition table. There is no branching and
// no cycle; the only edge not listed here is the universal edge from
// every runnable state into StateFailed.
var transitions = map[State]State{
	StatePending:         StateResearching,
	StateResearching:     StateWriting,
	StateWriting:         StateEnriching,
	StateEnriching:       StateRevising,
	StateRevising:        StateFactChecking,
	StateFactChecking:    StateSEOOptimizing,
	StateSEOOptimizing:   StateHumanizing,
	StateHumanizing:      StateInternalLinking,
	StateInternalLinking: StateMediaGenerating,
	StateMediaGenerating: StateFormatting,
	StateFormatting:      StateReady,
	StateReady:           StatePublished,
}

// chain lists every state in pipeline order, terminal states last.
// The order is load-bearing for RunnableStates and String output.
var chain = []State{
	StatePending,
	StateResearching,
	StateWriting,
	StateEnriching,
	StateRevising,
	StateFactChecking,
	StateSEOOptimizing,
	StateHumanizing,
	StateInternalLinking,
	StateMediaGenerating,
	StateFormatting,
	StateReady,
	StatePublished,
	StateFailed,
}

// Next returns the successor of s in the transition table.
// ok is false for StatePublished and StateFailed, which have no
// outgoing edge.
func Next(s State) (next State, ok bool) {
	next, ok = transitions[s]
	return next, ok
}

// Runnable reports whether the engine may select an article in state s
// for processing. Every state with an outgoing edge is runnable,
// including StateReady (its handler performs the publish step).
func (s State) Runnable() bool {
	_, ok := transitions[s]
	return ok
}

// Final reports whether s is a dead end: StatePublished or StateFailed.
func (s State) Final() bool {
	return s == StatePublished || s == StateFailed
}

// Recoverable reports whether an article stalled in state s is subject
// to stuck-detection. StateReady is excluded: a formatted article
// waiting for its publish tick is not stuck, it is done.
func (s State) Recoverable() bool {
	return s.Runnable() && s != StateReady
}

func (s State) String() string { return string(s) }

// States returns every pipeline state in chain order.
func States() []State {
	out := make([]State, len(chain))
	copy(out, chain)
	return out
}

// RunnableStates returns the states the engine selects from, in chain
// order. Used by the store's claim query and the registry coverage
// check.
func RunnableStates() []State {
	out := make([]State, 0, len(chain))
	for _, s := range chain {
		if s.Runnable() {
			out = append(out, s)
		}
	}
	return out
}

// RecoverableStates returns the states subject to stuck-detection, in
// chain order.
func RecoverableStates() []State {
	out := make([]State, 0, len(chain))
	for _, s := range chain {
		if s.Recoverable() {
			out = append(out, s)
		}
	}
	return out
}

// ParseState validates a raw string against the fixed state set.
func ParseState(raw string) (State, error) {
	s := State(raw)
	for _, known := range chain {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline state %q", raw)
}
