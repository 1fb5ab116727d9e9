package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/recognition"
)

type fakePlugin struct {
	id       string
	patterns []string
	initErr  error
	panicOn  bool
	delay    time.Duration

	initCalls    int
	cleanupCalls int
}

func (f *fakePlugin) Identifier() string                     { return f.id }
func (f *fakePlugin) SupportedApplicationPatterns() []string { return f.patterns }

func (f *fakePlugin) Initialize(Config) error {
	f.initCalls++
	return f.initErr
}

func (f *fakePlugin) Cleanup() error {
	f.cleanupCalls++
	return nil
}

func (f *fakePlugin) CanHandle(app capture.ApplicationContext) bool {
	return MatchAny(f.patterns, app.AppIdentifier)
}

func (f *fakePlugin) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]EnhancedResult, error) {
	if f.panicOn {
		panic("plugin bug")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []EnhancedResult
	for i := range results {
		out = append(out, EnhancedResult{Original: results[i], SemanticType: f.id})
	}
	return out, nil
}

func (f *fakePlugin) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]StructuredElement, error) {
	if f.panicOn {
		panic("plugin bug")
	}
	return []StructuredElement{{ID: f.id + "-el", Type: f.id, Value: "v"}}, nil
}

func chromeContext() capture.ApplicationContext {
	return capture.ApplicationContext{AppIdentifier: "com.google.Chrome"}
}

func sampleResults() []recognition.Result {
	return []recognition.Result{{Text: "hello", Confidence: 0.9}}
}

func newTestRegistry(t *testing.T, ps ...*fakePlugin) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.id, err)
		}
	}
	if errs := r.Initialize(); len(errs) > 0 {
		t.Fatalf("Initialize() errors = %v", errs)
	}
	return r
}

func TestRegisterRejectsDuplicateIdentifier(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakePlugin{id: "a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(&fakePlugin{id: "a"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestDispatchConcatenatesInRegistrationOrder(t *testing.T) {
	first := &fakePlugin{id: "first", patterns: []string{"com.google.*"}}
	second := &fakePlugin{id: "second", patterns: []string{"*"}}
	r := newTestRegistry(t, first, second)

	out := r.Dispatch(context.Background(), sampleResults(), chromeContext())
	if len(out.Enhanced) != 2 {
		t.Fatalf("expected 2 enhanced results, got %d", len(out.Enhanced))
	}
	if out.Enhanced[0].SemanticType != "first" || out.Enhanced[1].SemanticType != "second" {
		t.Fatalf("output order must follow registration order: %+v", out.Enhanced)
	}
	if len(out.Elements) != 2 || out.Elements[0].ID != "first-el" {
		t.Fatalf("unexpected elements: %+v", out.Elements)
	}
}

func TestDispatchSkipsNonMatchingPlugins(t *testing.T) {
	browser := &fakePlugin{id: "browser", patterns: []string{"com.google.*"}}
	mail := &fakePlugin{id: "mail", patterns: []string{"com.apple.mail"}}
	r := newTestRegistry(t, browser, mail)

	out := r.Dispatch(context.Background(), sampleResults(), chromeContext())
	for _, e := range out.Enhanced {
		if e.SemanticType == "mail" {
			t.Fatalf("mail plugin must not run for chrome context")
		}
	}
	if len(out.Enhanced) != 1 {
		t.Fatalf("expected 1 enhanced result, got %d", len(out.Enhanced))
	}
}

func TestDispatchIsolatesPanickingPlugin(t *testing.T) {
	broken := &fakePlugin{id: "broken", patterns: []string{"*"}, panicOn: true}
	healthy := &fakePlugin{id: "healthy", patterns: []string{"*"}}
	r := newTestRegistry(t, broken, healthy)

	out := r.Dispatch(context.Background(), sampleResults(), chromeContext())
	if len(out.Enhanced) != 1 || out.Enhanced[0].SemanticType != "healthy" {
		t.Fatalf("healthy plugin output must survive, got %+v", out.Enhanced)
	}
	if len(out.Failures) != 2 {
		t.Fatalf("expected enhance+extract failures from broken plugin, got %d", len(out.Failures))
	}
	var execErr *ExecutionError
	if !errors.As(out.Failures[0], &execErr) {
		t.Fatalf("expected *ExecutionError, got %v", out.Failures[0])
	}
	if execErr.Plugin != "broken" {
		t.Fatalf("unexpected plugin in error: %q", execErr.Plugin)
	}
}

func TestDispatchEnforcesTimeBudget(t *testing.T) {
	slow := &fakePlugin{id: "slow", patterns: []string{"*"}, delay: time.Second}
	r := NewRegistry()
	if err := r.RegisterWithConfig(slow, Config{MaxExecutionTime: 20 * time.Millisecond, MaxMemoryUsage: 1 << 20}); err != nil {
		t.Fatalf("RegisterWithConfig() error = %v", err)
	}
	if errs := r.Initialize(); len(errs) != 0 {
		t.Fatalf("Initialize() errors = %v", errs)
	}

	start := time.Now()
	out := r.Dispatch(context.Background(), sampleResults(), chromeContext())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dispatch blocked on slow plugin for %v", elapsed)
	}
	if len(out.Failures) == 0 {
		t.Fatalf("expected a budget failure")
	}
	if !strings.Contains(out.Failures[0].Error(), "budget") {
		t.Fatalf("unexpected failure: %v", out.Failures[0])
	}
}

func TestInitializeFailureExcludesPlugin(t *testing.T) {
	bad := &fakePlugin{id: "bad", patterns: []string{"*"}, initErr: fmt.Errorf("no model file")}
	good := &fakePlugin{id: "good", patterns: []string{"*"}}
	r := NewRegistry()
	for _, p := range []*fakePlugin{bad, good} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	errs := r.Initialize()
	if len(errs) != 1 {
		t.Fatalf("expected 1 initialization error, got %v", errs)
	}
	var initErr *InitializationError
	if !errors.As(errs[0], &initErr) || initErr.Plugin != "bad" {
		t.Fatalf("unexpected error: %v", errs[0])
	}

	out := r.Dispatch(context.Background(), sampleResults(), chromeContext())
	if len(out.Enhanced) != 1 || out.Enhanced[0].SemanticType != "good" {
		t.Fatalf("failed plugin must be excluded from dispatch: %+v", out.Enhanced)
	}

	status := r.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 status entries, got %d", len(status))
	}
	if status[0].Identifier != "bad" || status[0].Initialized || !errors.As(status[0].InitErr, &initErr) {
		t.Fatalf("failed plugin status not surfaced: %+v", status[0])
	}
	if status[1].Identifier != "good" || !status[1].Initialized || status[1].InitErr != nil {
		t.Fatalf("healthy plugin status wrong: %+v", status[1])
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	p := &fakePlugin{id: "p", patterns: []string{"*"}}
	r := newTestRegistry(t, p)
	r.Cleanup()
	r.Cleanup()
	if p.cleanupCalls != 1 {
		t.Fatalf("cleanup must run once per initialization, got %d", p.cleanupCalls)
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		app     string
		want    bool
	}{
		{"com.google.Chrome", "com.google.Chrome", true},
		{"com.google.Chrome", "com.google.Chrome.canary", false},
		{"com.jetbrains.*", "com.jetbrains.goland", true},
		{"com.jetbrains.*", "com.jetbrain", false},
		{"*", "anything", true},
		{"", "anything", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.app); got != tc.want {
			t.Fatalf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.app, got, tc.want)
		}
	}
}
