package enhance

import (
	"context"
	"strings"
	"time"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/recognition"
)

// Config is the per-plugin execution budget and settings bag. Recognized
// settings keys are plugin-specific; unknown keys are ignored, never
// rejected.
type Config struct {
	// PluginDirectory is where script plugins are loaded from.
	PluginDirectory string
	// SandboxEnabled requests isolation for plugins that support it.
	SandboxEnabled bool
	// MaxMemoryUsage bounds a plugin call in bytes. Enforced for script
	// plugins; advisory for in-process Go plugins.
	MaxMemoryUsage int64
	// MaxExecutionTime bounds a single enhance/extract call.
	MaxExecutionTime time.Duration
	// Settings carries plugin-specific keys.
	Settings map[string]string
}

// DefaultConfig returns the documented defaults: 30s execution budget and
// 100MB memory budget.
func DefaultConfig() Config {
	return Config{
		MaxMemoryUsage:   100 << 20,
		MaxExecutionTime: 30 * time.Second,
	}
}

// Plugin is a capability-scoped handler that enhances recognition output
// with application-specific semantics.
//
// Initialize must be called once before use and may fail; Cleanup is
// idempotent. CanHandle must be a fast, side-effect-free predicate over
// identifiers and patterns. Enhance and ExtractStructured are pure
// functions over a read-only snapshot and may run concurrently with other
// plugins' calls.
type Plugin interface {
	Identifier() string
	// SupportedApplicationPatterns returns exact application identifiers
	// or prefix wildcards such as "com.jetbrains.*".
	SupportedApplicationPatterns() []string
	Initialize(cfg Config) error
	Cleanup() error
	CanHandle(app capture.ApplicationContext) bool
	Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]EnhancedResult, error)
	ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]StructuredElement, error)
}

// MatchPattern reports whether an application identifier matches a
// declared pattern: exact match, or prefix match when the pattern ends in
// ".*" or "*".
func MatchPattern(pattern, appIdentifier string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(appIdentifier, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(appIdentifier, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == appIdentifier
}

// MatchAny reports whether the identifier matches any of the patterns.
func MatchAny(patterns []string, appIdentifier string) bool {
	for _, p := range patterns {
		if MatchPattern(p, appIdentifier) {
			return true
		}
	}
	return false
}
