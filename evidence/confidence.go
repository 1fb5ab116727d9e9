package evidence

import (
	"fmt"
	"math"
	"sort"

	"github.com/wudi/screenkit/event"
)

// Confidence aggregation.
//
// Per-event support is the event's own confidence capped by its weakest
// evidence frame: an unevidenced event contributes its unverified
// confidence, and the moment frames exist the support is
// min(eventConfidence, min frameConfidence). The summary aggregate is a
// mean of supports weighted by each event's own confidence, which
// down-weights low-confidence events without depending on frame counts.
// The overall confidence is the minimum of that aggregate and the plain
// mean of event confidences, so a badly-supported summary can never
// appear trustworthy.
//
// Every term is non-increasing under frame addition: supports only ever
// move down when a frame joins an event, and the weights never move at
// all. Adding a frame therefore never raises overallConfidence. The
// weak-evidence signal (how many events have no frames) is carried by
// traceComplete and the evidence_coverage factor, not folded into the
// score, because a coverage multiplier jumps discontinuously when an
// event gains its first frame.
func (l *Linker) propagate(summary Summary, events []event.DetectedEvent, frames map[string]FrameMeta, ref Reference) Propagation {
	prop := Propagation{
		FrameConfidences: make(map[string]float64),
		EventConfidences: make(map[string]float64, len(events)),
	}
	for _, fid := range ref.DirectEvidenceFrames {
		if f, ok := frames[fid]; ok {
			prop.FrameConfidences[fid] = f.Confidence
		}
	}
	for _, cf := range ref.CorrelatedFrames {
		if f, ok := frames[cf.FrameID]; ok {
			prop.FrameConfidences[cf.FrameID] = f.Confidence
		}
	}

	var weightSum, supportSum, eventConfSum float64
	evidenced := 0
	for _, ev := range events {
		prop.EventConfidences[ev.ID] = ev.Confidence
		eventConfSum += ev.Confidence

		support := ev.Confidence
		hasFrames := false
		for _, fid := range ref.EventEvidenceMap[ev.ID] {
			if f, ok := frames[fid]; ok {
				hasFrames = true
				support = math.Min(support, f.Confidence)
			}
		}
		if hasFrames {
			evidenced++
		}
		weightSum += ev.Confidence
		supportSum += ev.Confidence * support
	}

	total := len(events)
	prop.SummaryConfidence = SummaryConfidence{
		EvidencedEvents: evidenced,
		TotalEvents:     total,
	}
	if total == 0 {
		prop.ConfidenceFactors = append(prop.ConfidenceFactors, Factor{
			Name: "no_events", Value: 0, Detail: "summary references no known events",
		})
		return prop
	}

	coverage := float64(evidenced) / float64(total)
	aggregated := 0.0
	if weightSum > 0 {
		aggregated = clamp01(supportSum / weightSum)
	}
	eventMean := eventConfSum / float64(total)
	prop.SummaryConfidence.AggregatedConfidence = aggregated
	prop.OverallConfidence = clamp01(math.Min(aggregated, eventMean))

	prop.ConfidenceFactors = append(prop.ConfidenceFactors,
		Factor{Name: "evidence_coverage", Value: coverage,
			Detail: fmt.Sprintf("%d of %d events carry frame evidence", evidenced, total)},
		Factor{Name: "event_support", Value: aggregated,
			Detail: "confidence-weighted mean of frame-capped event supports"},
		Factor{Name: "event_mean", Value: eventMean,
			Detail: "plain mean of event confidences (upper bound)"},
	)
	sort.SliceStable(prop.ConfidenceFactors, func(i, j int) bool {
		return prop.ConfidenceFactors[i].Name < prop.ConfidenceFactors[j].Name
	})
	return prop
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
