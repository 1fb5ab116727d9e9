package enhance

import "fmt"

// InitializationError reports a plugin that failed to start. The plugin is
// excluded from dispatch for its lifetime; other plugins are unaffected.
type InitializationError struct {
	Plugin string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("plugin %s failed to initialize: %v", e.Plugin, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ExecutionError reports a timeout, budget overrun, or fault during one
// plugin call. The call is isolated: its partial output is discarded and
// dispatch continues; the plugin remains eligible for future frames.
type ExecutionError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: %s failed: %v", e.Plugin, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
