package recognition

import (
	"math"
	"testing"
)

func TestRegionIoU(t *testing.T) {
	base := Region{X: 0, Y: 0, Width: 100, Height: 100}
	tests := []struct {
		name  string
		other Region
		want  float64
	}{
		{"identical", Region{X: 0, Y: 0, Width: 100, Height: 100}, 1},
		{"disjoint", Region{X: 200, Y: 200, Width: 50, Height: 50}, 0},
		{"touching edge", Region{X: 100, Y: 0, Width: 50, Height: 100}, 0},
		{"half overlap", Region{X: 50, Y: 0, Width: 100, Height: 100}, 50.0 / 150.0},
		{"contained quarter", Region{X: 0, Y: 0, Width: 50, Height: 50}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.IoU(tt.other)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("IoU = %v, want %v", got, tt.want)
			}
			if rev := tt.other.IoU(base); math.Abs(rev-got) > 1e-9 {
				t.Fatalf("IoU not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestRegionHelpers(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 30, Height: 40}
	if r.IsEmpty() {
		t.Fatalf("non-degenerate region reported empty")
	}
	if (Region{Width: 0, Height: 10}).IsEmpty() != true {
		t.Fatalf("zero-width region not empty")
	}
	cx, cy := r.Center()
	if cx != 25 || cy != 40 {
		t.Fatalf("Center = (%v, %v)", cx, cy)
	}
}

func TestConfidenceAggregates(t *testing.T) {
	results := []Result{
		{Text: "a", Confidence: 0.9},
		{Text: "b", Confidence: 0.5},
		{Text: "c", Confidence: 0.7},
	}
	if got := MeanConfidence(results); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("MeanConfidence = %v", got)
	}
	if got := MinConfidence(results); got != 0.5 {
		t.Fatalf("MinConfidence = %v", got)
	}
	if MeanConfidence(nil) != 0 || MinConfidence(nil) != 0 {
		t.Fatalf("empty input must aggregate to 0")
	}
}
