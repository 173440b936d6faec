package engine

import (
	"errors"
	"fmt"

	"draftforge/internal/pipeline"
)

// ConfigError reports a runnable state with no registered handler.
//
// This is a deployment/config bug, not a transient condition: the
// pipeline cannot make forward progress past the gap. It is therefore
// never converted into retry bookkeeping - it propagates out of Tick
// and aborts the scheduler loudly.
type ConfigError struct {
	State pipeline.State
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no handler registered for state %q", e.State)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
