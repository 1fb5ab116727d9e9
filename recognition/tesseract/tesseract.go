// Package tesseract provides the gosseract-backed primary recognition
// engine.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/recognition"
)

// Engine implements recognition.Engine using the gosseract client. It is
// the fast local path and serves as the coordinator's primary engine.
type Engine struct {
	clientFactory func() *gosseract.Client
	languages     []string
	variables     map[string]string
}

// Option mutates an Engine during construction.
type Option func(*Engine)

// WithLanguages sets the trained-data language hints (e.g. "eng", "deu").
func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// WithVariable passes a raw Tesseract variable (e.g. "psm") through to the
// client for every frame.
func WithVariable(key, value string) Option {
	return func(e *Engine) { e.variables[key] = value }
}

// New constructs a Tesseract-backed recognition engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clientFactory: gosseract.NewClient,
		variables:     map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Languages() []string {
	return append([]string(nil), e.languages...)
}

// Recognize performs OCR on a single frame and returns one result per
// recognized text line.
func (e *Engine) Recognize(ctx context.Context, frame capture.Frame) ([]recognition.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(frame.Image); err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("set image: %w", err)}
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("set languages: %w", err)}
		}
	}
	for k, v := range e.variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("set variable %s: %w", k, err)}
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("bounding boxes: %w", err)}
	}
	lang := ""
	if len(e.languages) > 0 {
		lang = e.languages[0]
	}
	results := make([]recognition.Result, 0, len(boxes))
	for _, b := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		results = append(results, recognition.Result{
			Text: text,
			Region: recognition.Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
			Confidence: b.Confidence / 100.0,
			Language:   lang,
		})
	}
	return results, nil
}
