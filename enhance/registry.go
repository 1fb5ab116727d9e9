package enhance

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/observability"
	"github.com/wudi/screenkit/recognition"
)

// Registry holds registered plugins and dispatches matched contexts to
// them. Plugins run in registration order semantics: outputs are
// concatenated in registration order even though calls execute
// concurrently.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry

	defaults Config
	logger   observability.Logger
	metrics  observability.Metrics
}

type entry struct {
	plugin      Plugin
	cfg         Config
	initialized bool
	initErr     error
}

// RegistryOption mutates a Registry during construction.
type RegistryOption func(*Registry)

// WithDefaultConfig sets the config applied to plugins registered without
// their own.
func WithDefaultConfig(cfg Config) RegistryOption {
	return func(r *Registry) { r.defaults = cfg }
}

// WithLogger sets the logger. Default nop.
func WithLogger(l observability.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink. Default nop.
func WithMetrics(m observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defaults: DefaultConfig(),
		logger:   observability.NopLogger{},
		metrics:  observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a plugin with the registry's default config. Registration
// order determines output order during dispatch.
func (r *Registry) Register(p Plugin) error {
	return r.RegisterWithConfig(p, r.defaults)
}

// RegisterWithConfig adds a plugin with its own execution budget.
func (r *Registry) RegisterWithConfig(p Plugin, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.plugin.Identifier() == p.Identifier() {
			return fmt.Errorf("plugin %s already registered", p.Identifier())
		}
	}
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = DefaultConfig().MaxExecutionTime
	}
	if cfg.MaxMemoryUsage <= 0 {
		cfg.MaxMemoryUsage = DefaultConfig().MaxMemoryUsage
	}
	r.entries = append(r.entries, &entry{plugin: p, cfg: cfg})
	return nil
}

// Initialize initializes every registered plugin. A plugin whose
// Initialize fails is excluded from dispatch for its lifetime; the error
// is recorded and initialization continues with the rest.
func (r *Registry) Initialize() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, e := range r.entries {
		if e.initialized {
			continue
		}
		if err := e.plugin.Initialize(e.cfg); err != nil {
			e.initErr = &InitializationError{Plugin: e.plugin.Identifier(), Err: err}
			errs = append(errs, e.initErr)
			r.logger.Warn("plugin excluded from dispatch",
				observability.String("plugin", e.plugin.Identifier()),
				observability.Error("error", err))
			continue
		}
		e.initialized = true
	}
	return errs
}

// Cleanup releases every initialized plugin's resources. Idempotent.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if !e.initialized {
			continue
		}
		if err := e.plugin.Cleanup(); err != nil {
			r.logger.Warn("plugin cleanup failed",
				observability.String("plugin", e.plugin.Identifier()),
				observability.Error("error", err))
		}
		e.initialized = false
	}
}

// PluginIdentifiers lists registered plugins in registration order.
func (r *Registry) PluginIdentifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.plugin.Identifier())
	}
	return out
}

// PluginStatus reports one registered plugin's dispatch eligibility.
type PluginStatus struct {
	Identifier  string
	Initialized bool
	// InitErr is the error that excluded the plugin from dispatch, nil
	// for initialized or not-yet-initialized plugins.
	InitErr error
}

// Status lists every registered plugin in registration order with the
// initialization outcome, so callers can see why a plugin never matches.
func (r *Registry) Status() []PluginStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PluginStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, PluginStatus{
			Identifier:  e.plugin.Identifier(),
			Initialized: e.initialized,
			InitErr:     e.initErr,
		})
	}
	return out
}

// matching returns initialized plugins whose CanHandle accepts the
// context, in registration order. Uninitialized plugins never match.
func (r *Registry) matching(app capture.ApplicationContext) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*entry
	for _, e := range r.entries {
		if e.initialized && e.plugin.CanHandle(app) {
			matched = append(matched, e)
		}
	}
	return matched
}

// Output carries the concatenated plugin results for one dispatch, plus
// the per-call failures that were isolated along the way.
type Output struct {
	Enhanced []EnhancedResult
	Elements []StructuredElement
	Failures []error
}

// Dispatch routes the recognition snapshot to every matching plugin.
// Enhance and ExtractStructured calls run concurrently across plugins as
// pure functions over the same read-only input; a plugin that exceeds its
// time budget or panics is isolated: its partial output is discarded and
// the remaining plugins' outputs still appear.
func (r *Registry) Dispatch(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) Output {
	matched := r.matching(app)
	if len(matched) == 0 {
		return Output{}
	}

	type slot struct {
		enhanced []EnhancedResult
		elements []StructuredElement
		errs     []error
	}
	slots := make([]slot, len(matched))
	var wg sync.WaitGroup
	for i, e := range matched {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			enhanced, err := callEnhance(ctx, e, results, app)
			if err != nil {
				slots[i].errs = append(slots[i].errs, err)
			} else {
				slots[i].enhanced = enhanced
			}
			elements, err := callExtract(ctx, e, results, app)
			if err != nil {
				slots[i].errs = append(slots[i].errs, err)
			} else {
				slots[i].elements = elements
			}
		}(i, e)
	}
	wg.Wait()

	var out Output
	for i, s := range slots {
		out.Enhanced = append(out.Enhanced, s.enhanced...)
		out.Elements = append(out.Elements, s.elements...)
		for _, err := range s.errs {
			out.Failures = append(out.Failures, err)
			r.logger.Warn("plugin call isolated",
				observability.String("plugin", matched[i].plugin.Identifier()),
				observability.Error("error", err))
			r.metrics.IncCounter(observability.MetricPluginFailures,
				map[string]string{"component": matched[i].plugin.Identifier()})
		}
	}
	return out
}

func callEnhance(ctx context.Context, e *entry, results []recognition.Result, app capture.ApplicationContext) ([]EnhancedResult, error) {
	return guard(ctx, e, "enhance", func(callCtx context.Context) ([]EnhancedResult, error) {
		return e.plugin.Enhance(callCtx, results, app)
	})
}

func callExtract(ctx context.Context, e *entry, results []recognition.Result, app capture.ApplicationContext) ([]StructuredElement, error) {
	return guard(ctx, e, "extractStructured", func(callCtx context.Context) ([]StructuredElement, error) {
		return e.plugin.ExtractStructured(callCtx, results, app)
	})
}

// guard time-boxes one plugin call and converts panics and timeouts into
// ExecutionErrors. The call runs in its own goroutine so a stuck plugin
// cannot wedge dispatch; its eventual return value is dropped.
func guard[T any](ctx context.Context, e *entry, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.MaxExecutionTime)
	defer cancel()

	type answer struct {
		val T
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- answer{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		val, err := call(callCtx)
		ch <- answer{val: val, err: err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return zero, &ExecutionError{Plugin: e.plugin.Identifier(), Op: op, Err: a.err}
		}
		return a.val, nil
	case <-callCtx.Done():
		return zero, &ExecutionError{
			Plugin: e.plugin.Identifier(), Op: op,
			Err: fmt.Errorf("exceeded budget %s: %w", e.cfg.MaxExecutionTime, callCtx.Err()),
		}
	}
}
