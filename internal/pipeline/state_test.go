package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainReachesPublished(t *testing.T) {
	s := StatePending
	steps := 0
	for {
		next, ok := Next(s)
		if !ok {
			break
		}
		s = next
		steps++
	}
	assert.Equal(t, StatePublished, s, "walking the chain from pending must end at published")
	assert.Equal(t, 12, steps, "one successful tick per stage")
}

func TestTerminalStatesHaveNoSuccessor(t *testing.T) {
	for _, s := range []State{StatePublished, StateFailed} {
		_, ok := Next(s)
		assert.False(t, ok, "%s must have no outgoing edge", s)
		assert.True(t, s.Final())
		assert.False(t, s.Runnable())
	}
}

func TestReadyIsRunnableButNotRecoverable(t *testing.T) {
	assert.True(t, StateReady.Runnable(), "ready still needs its publish tick")
	assert.False(t, StateReady.Recoverable(), "a formatted article waiting to publish is not stuck")
}

func TestRunnableStatesCoverEveryNonTerminal(t *testing.T) {
	runnable := RunnableStates()
	require.Len(t, runnable, 12)
	for _, s := range runnable {
		assert.False(t, s.Final())
	}

	recoverable := RecoverableStates()
	require.Len(t, recoverable, 11)
	assert.NotContains(t, recoverable, StateReady)
}

func TestParseState(t *testing.T) {
	s, err := ParseState("fact_checking")
	require.NoError(t, err)
	assert.Equal(t, StateFactChecking, s)

	_, err = ParseState("daydreaming")
	assert.Error(t, err)
}
