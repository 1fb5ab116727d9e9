// Package pipeline orchestrates the per-frame flow: recognition through
// the engine coordinator, enhancement dispatch, event detection, and
// optional persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/coordinator"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/evidence"
	"github.com/wudi/screenkit/observability"
	"github.com/wudi/screenkit/store"
)

// ErrSuperseded reports that a newer frame for the same application
// context arrived while this frame was still being processed. The
// superseded frame publishes no events.
var ErrSuperseded = errors.New("frame superseded by newer capture")

// Result is the pipeline output for one fully processed frame.
type Result struct {
	Frame       capture.Frame
	Recognition coordinator.Outcome
	Enhancement enhance.Output
	Events      []event.DetectedEvent
}

// Option mutates a Pipeline during construction.
type Option func(*Pipeline)

// WithStore persists frames, elements, and events as they are produced.
func WithStore(s *store.Store) Option { return func(p *Pipeline) { p.store = s } }

// WithLogger sets the logger. Default nop.
func WithLogger(log observability.Logger) Option { return func(p *Pipeline) { p.logger = log } }

// WithMetrics sets the metrics sink. Default nop.
func WithMetrics(m observability.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// Pipeline runs frames through recognition, enhancement, and detection.
// Frames for distinct application contexts process concurrently; within
// one context the newest frame wins and cancels any in-flight older one.
type Pipeline struct {
	coordinator *coordinator.Coordinator
	registry    *enhance.Registry
	detector    *event.Detector
	store       *store.Store

	mu       sync.Mutex
	inflight map[string]*flight

	logger  observability.Logger
	metrics observability.Metrics
}

type flight struct {
	frameID    string
	cancel     context.CancelFunc
	superseded bool
}

// New assembles a pipeline from its three stages.
func New(c *coordinator.Coordinator, r *enhance.Registry, d *event.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		coordinator: c,
		registry:    r,
		detector:    d,
		inflight:    make(map[string]*flight),
		logger:      observability.NopLogger{},
		metrics:     observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one frame through all stages. Returns ErrSuperseded when
// a newer frame for the same context arrives mid-flight; in that case no
// events are published and nothing is persisted for the frame.
func (p *Pipeline) Process(ctx context.Context, frame capture.Frame) (Result, error) {
	start := time.Now()
	key := frame.Context.Key()

	fctx, fl := p.admit(ctx, key, frame.ID)
	defer p.release(key, fl)

	res := Result{Frame: frame}

	outcome, err := p.coordinator.Recognize(fctx, frame)
	if err != nil {
		return res, p.flightErr(fctx, fl, fmt.Errorf("recognize frame %s: %w", frame.ID, err))
	}
	res.Recognition = outcome

	res.Enhancement = p.registry.Dispatch(fctx, outcome.Results, frame.Context)
	for _, failure := range res.Enhancement.Failures {
		p.logger.Warn("enhancement plugin failed",
			observability.String("frame", frame.ID), observability.Error("error", failure))
	}

	// Detection mutates the snapshot cache; a superseded frame must not
	// reach it, or stale deltas would surface as events.
	if err := fctx.Err(); err != nil {
		return res, p.flightErr(fctx, fl, err)
	}
	res.Events = p.detector.Detect(frame.ID, frame.CapturedAt, frame.Context, outcome.Results)

	if p.store != nil {
		if err := p.persist(fctx, frame, outcome, res); err != nil {
			return res, err
		}
	}

	p.metrics.ObserveDuration(observability.MetricPipelineTime,
		map[string]string{"component": "pipeline"}, time.Since(start))
	p.logger.Debug("frame processed",
		observability.String("frame", frame.ID),
		observability.String("context", key),
		observability.Int("events", len(res.Events)))
	return res, nil
}

// admit registers the frame as the in-flight work for its context key,
// cancelling any older frame still running there.
func (p *Pipeline) admit(ctx context.Context, key, frameID string) (context.Context, *flight) {
	fctx, cancel := context.WithCancel(ctx)
	fl := &flight{frameID: frameID, cancel: cancel}

	p.mu.Lock()
	if prev, ok := p.inflight[key]; ok {
		prev.superseded = true
		prev.cancel()
		p.logger.Debug("superseding in-flight frame",
			observability.String("context", key),
			observability.String("old", prev.frameID),
			observability.String("new", frameID))
		p.metrics.IncCounter(observability.MetricFramesSuperseded, map[string]string{"component": "pipeline"})
	}
	p.inflight[key] = fl
	p.mu.Unlock()
	return fctx, fl
}

func (p *Pipeline) release(key string, fl *flight) {
	fl.cancel()
	p.mu.Lock()
	if p.inflight[key] == fl {
		delete(p.inflight, key)
	}
	p.mu.Unlock()
}

// flightErr maps a cancellation caused by supersession to ErrSuperseded
// and passes every other error through.
func (p *Pipeline) flightErr(fctx context.Context, fl *flight, err error) error {
	if fl.superseded && (errors.Is(err, context.Canceled) || fctx.Err() != nil) {
		return ErrSuperseded
	}
	return err
}

func (p *Pipeline) persist(ctx context.Context, frame capture.Frame, outcome coordinator.Outcome, res Result) error {
	meta := evidence.FrameMeta{
		ID:            frame.ID,
		Timestamp:     frame.CapturedAt,
		AppIdentifier: frame.Context.AppIdentifier,
		WindowTitle:   frame.Context.WindowTitle,
		Confidence:    outcome.Confidence,
	}
	if err := p.store.SaveFrame(ctx, meta); err != nil {
		return err
	}
	if err := p.store.SaveElements(ctx, frame.ID, res.Enhancement.Elements); err != nil {
		return err
	}
	return p.store.SaveEvents(ctx, res.Events)
}
