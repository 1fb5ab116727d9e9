// Package coordinator chooses between the primary and secondary
// recognition engines per frame, retries on engine errors, merges hybrid
// output, and tracks rolling per-engine performance counters.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/observability"
	"github.com/wudi/screenkit/recognition"
)

// Mode selects the coordination strategy.
type Mode int

const (
	// ModeFallback invokes the primary engine and falls back to the
	// secondary on error or low aggregate confidence.
	ModeFallback Mode = iota
	// ModeHybrid runs both engines concurrently and merges non-overlapping
	// regions, preferring the higher-confidence result on overlap.
	ModeHybrid
)

// Aggregate selects how per-result confidences collapse into the frame
// score compared against MinimumPrimaryConfidence.
type Aggregate int

const (
	AggregateMean Aggregate = iota
	AggregateMin
)

// Attempt records one engine invocation for a frame.
type Attempt struct {
	Engine     string
	Duration   time.Duration
	Confidence float64
	Err        error
}

// Outcome is the coordinator's answer for one frame. Confidence is always
// computed over the returned results, never over discarded attempts.
type Outcome struct {
	Results     []recognition.Result
	EnginesUsed []string
	Attempts    []Attempt
	// Engine names the engine whose results were returned, or "hybrid".
	Engine     string
	Confidence float64
}

// FailedError reports total recognizer failure on a frame: every engine
// attempt errored. The frame is surfaced to the caller rather than retried
// indefinitely.
type FailedError struct {
	FrameID  string
	Attempts []Attempt
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("recognition failed on frame %s after %d attempts", e.FrameID, len(e.Attempts))
}

// Option mutates a Coordinator during construction.
type Option func(*Coordinator)

// WithMode sets the coordination strategy. Default ModeFallback.
func WithMode(m Mode) Option { return func(c *Coordinator) { c.mode = m } }

// WithAggregate sets the confidence aggregation. Default AggregateMean.
func WithAggregate(a Aggregate) Option { return func(c *Coordinator) { c.aggregate = a } }

// WithMinimumPrimaryConfidence sets the threshold below which primary
// output triggers the secondary engine. Default 0.4.
func WithMinimumPrimaryConfidence(v float64) Option {
	return func(c *Coordinator) { c.minPrimaryConfidence = v }
}

// WithMaxRetryAttempts caps retries per engine on transient errors.
// Default 2.
func WithMaxRetryAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxRetryAttempts = n
		}
	}
}

// WithAttemptTimeout bounds a single engine invocation. Default 15s.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithOverlapIoU sets the intersection-over-union threshold above which
// two regions from different engines are treated as the same region in
// hybrid merges. Default 0.5.
func WithOverlapIoU(v float64) Option { return func(c *Coordinator) { c.overlapIoU = v } }

// WithMaxImageDim downscales frames whose longest side exceeds the bound
// before recognition. Zero disables downscaling.
func WithMaxImageDim(px int) Option { return func(c *Coordinator) { c.maxImageDim = px } }

// WithLogger sets the logger. Default nop.
func WithLogger(l observability.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithMetrics sets the metrics sink. Default nop.
func WithMetrics(m observability.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// Coordinator wraps a primary and a secondary recognition engine.
type Coordinator struct {
	primary   recognition.Engine
	secondary recognition.Engine

	mode                 Mode
	aggregate            Aggregate
	minPrimaryConfidence float64
	maxRetryAttempts     int
	attemptTimeout       time.Duration
	overlapIoU           float64
	maxImageDim          int

	stats   *statsBook
	logger  observability.Logger
	metrics observability.Metrics
}

// New constructs a coordinator. The secondary engine may be nil, in which
// case no fallback is available and low-confidence primary output is
// returned as-is.
func New(primary, secondary recognition.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		primary:              primary,
		secondary:            secondary,
		minPrimaryConfidence: 0.4,
		maxRetryAttempts:     2,
		attemptTimeout:       15 * time.Second,
		overlapIoU:           0.5,
		logger:               observability.NopLogger{},
		metrics:              observability.NopMetrics(),
		stats:                newStatsBook(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns a read-only snapshot of the rolling per-engine counters.
func (c *Coordinator) Stats() map[string]EngineStats { return c.stats.snapshot() }

// Recognize runs recognition for one frame. A frame is never silently
// dropped: exhausting retries returns the best available partial result,
// and only total failure of every engine surfaces as *FailedError.
func (c *Coordinator) Recognize(ctx context.Context, frame capture.Frame) (Outcome, error) {
	if c.maxImageDim > 0 {
		scaled, err := capture.Downscale(frame.Image, c.maxImageDim)
		if err == nil {
			frame.Image = scaled
		} else {
			c.logger.Warn("frame downscale failed, using original",
				observability.String("frame", frame.ID), observability.Error("error", err))
		}
	}
	if c.mode == ModeHybrid && c.secondary != nil {
		return c.recognizeHybrid(ctx, frame)
	}
	return c.recognizeFallback(ctx, frame)
}

func (c *Coordinator) recognizeFallback(ctx context.Context, frame capture.Frame) (Outcome, error) {
	out := Outcome{}

	primaryResults, primaryErr := c.attemptWithRetry(ctx, c.primary, frame, &out)
	primaryConf := c.aggregateConfidence(primaryResults)
	if primaryErr == nil && primaryConf >= c.minPrimaryConfidence {
		return c.finish(out, c.primary.Name(), primaryResults), nil
	}
	if c.secondary == nil {
		if primaryErr != nil {
			return out, &FailedError{FrameID: frame.ID, Attempts: out.Attempts}
		}
		return c.finish(out, c.primary.Name(), primaryResults), nil
	}

	if primaryErr != nil {
		c.logger.Debug("primary engine failed, falling back",
			observability.String("frame", frame.ID), observability.Error("error", primaryErr))
	} else {
		c.logger.Debug("primary confidence below threshold, falling back",
			observability.String("frame", frame.ID), observability.Float64("confidence", primaryConf))
	}
	c.metrics.IncCounter(observability.MetricFallbackCount, map[string]string{"component": c.secondary.Name()})

	secondaryResults, secondaryErr := c.attemptWithRetry(ctx, c.secondary, frame, &out)
	if secondaryErr == nil {
		return c.finish(out, c.secondary.Name(), secondaryResults), nil
	}
	if primaryErr == nil {
		// Secondary failed but the primary produced something; a
		// low-confidence partial result beats dropping the frame.
		return c.finish(out, c.primary.Name(), primaryResults), nil
	}
	return out, &FailedError{FrameID: frame.ID, Attempts: out.Attempts}
}

func (c *Coordinator) recognizeHybrid(ctx context.Context, frame capture.Frame) (Outcome, error) {
	out := Outcome{}
	type answer struct {
		results []recognition.Result
		attempt Attempt
	}
	run := func(e recognition.Engine, ch chan<- answer) {
		results, attempt := c.attempt(ctx, e, frame)
		ch <- answer{results: results, attempt: attempt}
	}
	primaryCh := make(chan answer, 1)
	secondaryCh := make(chan answer, 1)
	go run(c.primary, primaryCh)
	go run(c.secondary, secondaryCh)
	pa := <-primaryCh
	sa := <-secondaryCh

	out.Attempts = append(out.Attempts, pa.attempt, sa.attempt)
	out.EnginesUsed = append(out.EnginesUsed, c.primary.Name(), c.secondary.Name())

	switch {
	case pa.attempt.Err != nil && sa.attempt.Err != nil:
		return out, &FailedError{FrameID: frame.ID, Attempts: out.Attempts}
	case pa.attempt.Err != nil:
		return c.finish(out, c.secondary.Name(), sa.results), nil
	case sa.attempt.Err != nil:
		return c.finish(out, c.primary.Name(), pa.results), nil
	}
	merged := mergeResults(pa.results, sa.results, c.overlapIoU)
	return c.finish(out, "hybrid", merged), nil
}

// mergeResults keeps every primary region, replaces a primary region with
// an overlapping secondary one of higher confidence, and appends secondary
// regions that overlap nothing.
func mergeResults(primary, secondary []recognition.Result, iouThreshold float64) []recognition.Result {
	merged := append([]recognition.Result(nil), primary...)
	for _, s := range secondary {
		overlapped := false
		for i, p := range merged {
			if p.Region.IoU(s.Region) >= iouThreshold {
				overlapped = true
				if s.Confidence > p.Confidence {
					merged[i] = s
				}
				break
			}
		}
		if !overlapped {
			merged = append(merged, s)
		}
	}
	return merged
}

func (c *Coordinator) attemptWithRetry(ctx context.Context, e recognition.Engine, frame capture.Frame, out *Outcome) ([]recognition.Result, error) {
	out.EnginesUsed = append(out.EnginesUsed, e.Name())
	var lastErr error
	for try := 0; try < c.maxRetryAttempts; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, attempt := c.attempt(ctx, e, frame)
		out.Attempts = append(out.Attempts, attempt)
		if attempt.Err == nil {
			return results, nil
		}
		lastErr = attempt.Err
		if ctx.Err() != nil {
			return nil, attempt.Err
		}
	}
	return nil, lastErr
}

func (c *Coordinator) attempt(ctx context.Context, e recognition.Engine, frame capture.Frame) ([]recognition.Result, Attempt) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	start := time.Now()
	results, err := e.Recognize(attemptCtx, frame)
	elapsed := time.Since(start)

	c.stats.record(e.Name(), err == nil, elapsed)
	c.metrics.ObserveDuration(observability.MetricRecognizeTime, map[string]string{"component": e.Name()}, elapsed)

	attempt := Attempt{Engine: e.Name(), Duration: elapsed}
	if err != nil {
		if !recognition.IsEngineError(err) && !errors.Is(err, context.Canceled) {
			err = &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: err}
		}
		attempt.Err = err
		return nil, attempt
	}
	attempt.Confidence = c.aggregateConfidence(results)
	return results, attempt
}

func (c *Coordinator) aggregateConfidence(results []recognition.Result) float64 {
	if c.aggregate == AggregateMin {
		return recognition.MinConfidence(results)
	}
	return recognition.MeanConfidence(results)
}

func (c *Coordinator) finish(out Outcome, engine string, results []recognition.Result) Outcome {
	out.Engine = engine
	out.Results = results
	out.Confidence = c.aggregateConfidence(results)
	return out
}
