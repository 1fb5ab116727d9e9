package recognition

import (
	"errors"
	"fmt"
)

// EngineError reports a recognizer failure or timeout on one frame. It is
// recovered locally by the coordinator via fallback and only fatal for the
// frame when every engine fails.
type EngineError struct {
	Engine  string
	FrameID string
	Err     error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed on frame %s: %v", e.Engine, e.FrameID, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsEngineError reports whether err is (or wraps) an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
