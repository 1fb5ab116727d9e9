package recognition

import (
	"context"

	"github.com/wudi/screenkit/capture"
)

// Region describes a rectangular area in pixel coordinates with the origin
// in the upper-left corner of the frame.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the midpoint of the region.
func (r Region) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// IoU returns the intersection-over-union overlap of two regions in [0,1].
func (r Region) IoU(o Region) float64 {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.Width, o.X+o.Width)
	y2 := min(r.Y+r.Height, o.Y+o.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := r.Width*r.Height + o.Width*o.Height - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Result is one recognized text region in one frame. Results are immutable
// once produced by an engine.
type Result struct {
	// Text is the recognized content of the region.
	Text string
	// Region is the bounding region of the text in frame coordinates.
	Region Region
	// Confidence is the engine's score for this region in [0,1].
	Confidence float64
	// Language is the detected or assumed language of the text, if known.
	Language string
}

// Engine is the uniform contract wrapping any text-recognition engine.
// Engines are swappable without changing the coordinator.
type Engine interface {
	// Name identifies the engine in attempts, metrics and logs.
	Name() string
	// Recognize extracts text regions from a single frame. Implementations
	// must honor ctx cancellation.
	Recognize(ctx context.Context, frame capture.Frame) ([]Result, error)
	// Languages reports the language hints the engine was configured with.
	Languages() []string
}

// MeanConfidence returns the average confidence across results, 0 for none.
func MeanConfidence(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

// MinConfidence returns the lowest confidence across results, 0 for none.
func MinConfidence(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	lowest := results[0].Confidence
	for _, r := range results[1:] {
		if r.Confidence < lowest {
			lowest = r.Confidence
		}
	}
	return lowest
}
