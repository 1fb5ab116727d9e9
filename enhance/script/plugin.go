package script

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/recognition"
)

// Plugin adapts one JavaScript file to the enhance.Plugin contract. Each
// call runs the compiled program on a fresh VM, so concurrent dispatches
// never share interpreter state.
type Plugin struct {
	path string

	mu         sync.RWMutex
	program    *goja.Program
	identifier string
	patterns   []string
	ready      bool
	memLimit   int64
}

// Load compiles the script and probes its declared identifier and
// patterns. The plugin still requires Initialize before it can match.
func Load(path string) (*Plugin, error) {
	p := &Plugin{path: path}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plugin) compile() error {
	src, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read script %s: %w", p.path, err)
	}
	program, err := goja.Compile(p.path, string(src), true)
	if err != nil {
		return fmt.Errorf("compile script %s: %w", p.path, err)
	}
	vm, err := runProgram(context.Background(), program, 0)
	if err != nil {
		return fmt.Errorf("evaluate script %s: %w", p.path, err)
	}
	obj, err := pluginObject(vm)
	if err != nil {
		return fmt.Errorf("script %s: %w", p.path, err)
	}
	identifier := obj.Get("identifier")
	if identifier == nil || goja.IsUndefined(identifier) {
		return fmt.Errorf("script %s: missing plugin.identifier", p.path)
	}
	var patterns []string
	if raw := obj.Get("patterns"); raw != nil && !goja.IsUndefined(raw) {
		if err := vm.ExportTo(raw, &patterns); err != nil {
			return fmt.Errorf("script %s: plugin.patterns: %w", p.path, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = program
	p.identifier = identifier.String()
	p.patterns = patterns
	return nil
}

// Reload recompiles the script in place, keeping the initialized state.
// Used by the directory watcher for hot reload.
func (p *Plugin) Reload() error { return p.compile() }

// Path returns the script file path.
func (p *Plugin) Path() string { return p.path }

func (p *Plugin) Identifier() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identifier
}

func (p *Plugin) SupportedApplicationPatterns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.patterns...)
}

func (p *Plugin) Initialize(cfg enhance.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program == nil {
		return fmt.Errorf("script %s not compiled", p.path)
	}
	p.memLimit = cfg.MaxMemoryUsage
	p.ready = true
	return nil
}

func (p *Plugin) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

func (p *Plugin) CanHandle(app capture.ApplicationContext) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready && enhance.MatchAny(p.patterns, app.AppIdentifier)
}

// resultPayload is the JSON shape scripts receive for each recognition
// result.
type resultPayload struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type contextPayload struct {
	AppIdentifier string            `json:"appIdentifier"`
	AppName       string            `json:"appName"`
	WindowTitle   string            `json:"windowTitle"`
	Metadata      map[string]string `json:"metadata"`
}

func toPayload(results []recognition.Result, app capture.ApplicationContext) ([]resultPayload, contextPayload) {
	rs := make([]resultPayload, len(results))
	for i, r := range results {
		rs[i] = resultPayload{
			Text: r.Text, X: r.Region.X, Y: r.Region.Y,
			Width: r.Region.Width, Height: r.Region.Height,
			Confidence: r.Confidence, Language: r.Language,
		}
	}
	return rs, contextPayload{
		AppIdentifier: app.AppIdentifier,
		AppName:       app.AppName,
		WindowTitle:   app.WindowTitle,
		Metadata:      app.Metadata,
	}
}

func (p *Plugin) call(ctx context.Context, name string, results []recognition.Result, app capture.ApplicationContext) ([]map[string]interface{}, error) {
	p.mu.RLock()
	program := p.program
	memLimit := p.memLimit
	p.mu.RUnlock()
	if program == nil {
		return nil, fmt.Errorf("script %s not compiled", p.path)
	}

	vm, err := runProgram(ctx, program, memLimit)
	if err != nil {
		return nil, err
	}
	obj, err := pluginObject(vm)
	if err != nil {
		return nil, err
	}
	raw := obj.Get(name)
	if raw == nil || goja.IsUndefined(raw) {
		return nil, nil // optional function, nothing to contribute
	}
	fn, ok := goja.AssertFunction(raw)
	if !ok {
		return nil, fmt.Errorf("plugin.%s is not a function", name)
	}
	rs, cp := toPayload(results, app)
	exported, err := callFunction(ctx, vm, memLimit, fn, vm.ToValue(rs), vm.ToValue(cp))
	if err != nil {
		return nil, fmt.Errorf("plugin.%s: %w", name, err)
	}
	if exported == nil {
		return nil, nil
	}
	items, ok := exported.([]interface{})
	if !ok {
		return nil, fmt.Errorf("plugin.%s must return an array, got %T", name, exported)
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("plugin.%s returned a non-object entry %T", name, item)
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *Plugin) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.EnhancedResult, error) {
	items, err := p.call(ctx, "enhance", results, app)
	if err != nil {
		return nil, err
	}
	out := make([]enhance.EnhancedResult, 0, len(items))
	for _, m := range items {
		er := enhance.EnhancedResult{SemanticType: str(m["semanticType"])}
		if idx, ok := num(m["resultIndex"]); ok {
			i := int(idx)
			if i >= 0 && i < len(results) {
				er.Original = results[i]
			}
		}
		if sd, ok := m["structuredData"].(map[string]interface{}); ok {
			er.StructuredData = toValues(sd)
		}
		out = append(out, er)
	}
	return out, nil
}

func (p *Plugin) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.StructuredElement, error) {
	items, err := p.call(ctx, "extractStructured", results, app)
	if err != nil {
		return nil, err
	}
	out := make([]enhance.StructuredElement, 0, len(items))
	for _, m := range items {
		el := enhance.StructuredElement{
			ID:    uuid.NewString(),
			Type:  str(m["type"]),
			Value: str(m["value"]),
		}
		if conf, ok := num(m["confidence"]); ok {
			el.Confidence = conf
		}
		if md, ok := m["metadata"].(map[string]interface{}); ok {
			el.Metadata = toValues(md)
		}
		out = append(out, el)
	}
	return out, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

func toValues(m map[string]interface{}) map[string]enhance.Value {
	out := make(map[string]enhance.Value, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = enhance.StringValue(t)
		case float64:
			out[k] = enhance.NumberValue(t)
		case int64:
			out[k] = enhance.NumberValue(float64(t))
		case bool:
			out[k] = enhance.BoolValue(t)
		case map[string]interface{}:
			out[k] = enhance.MapValue(toValues(t))
		}
	}
	return out
}
