// Package plugins ships the builtin content-enhancement plugins. Each is
// a thin rule set over the shared toolkit heuristics; the per-application
// rules are data, not architecture, and live entirely in this package.
package plugins

import (
	"github.com/google/uuid"
	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/recognition"
)

// base carries the lifecycle plumbing every builtin plugin shares.
type base struct {
	id       string
	patterns []string
	cfg      enhance.Config
	ready    bool
}

func (b *base) Identifier() string                     { return b.id }
func (b *base) SupportedApplicationPatterns() []string { return append([]string(nil), b.patterns...) }

func (b *base) Initialize(cfg enhance.Config) error {
	b.cfg = cfg
	b.ready = true
	return nil
}

func (b *base) Cleanup() error {
	b.ready = false
	return nil
}

func (b *base) CanHandle(app capture.ApplicationContext) bool {
	return b.ready && enhance.MatchAny(b.patterns, app.AppIdentifier)
}

// newElement builds a StructuredElement with a fresh globally-unique id.
func newElement(typ, value string, meta map[string]enhance.Value, r *recognition.Region, confidence float64) enhance.StructuredElement {
	return enhance.StructuredElement{
		ID:         uuid.NewString(),
		Type:       typ,
		Value:      value,
		Metadata:   meta,
		Region:     r,
		Confidence: confidence,
	}
}

// regionCopy returns a heap copy so elements never alias a result slice.
func regionCopy(r recognition.Region) *recognition.Region {
	cp := r
	return &cp
}
