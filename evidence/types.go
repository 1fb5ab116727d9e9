package evidence

import "time"

// FrameMeta is the linker's view of one captured frame: identity, timing,
// context, and the recognition confidence the coordinator reported for it.
type FrameMeta struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	AppIdentifier string    `json:"appIdentifier"`
	WindowTitle   string    `json:"windowTitle"`
	Confidence    float64   `json:"confidence"`
}

// Session is an externally produced grouping of activity in a bounded
// time window. Opaque to the linker beyond its window and context.
type Session struct {
	ID            string    `json:"id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AppIdentifier string    `json:"appIdentifier"`
	WindowTitle   string    `json:"windowTitle"`
}

// Summary is an externally produced narrative over a session's events.
// The linker treats it as an opaque node that references event ids.
type Summary struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionId"`
	Narrative string   `json:"narrative"`
	EventIDs  []string `json:"eventIds"`
}

// CorrelatedFrame is a frame not directly referenced by any event but
// temporally and contextually close enough to support the summary.
type CorrelatedFrame struct {
	FrameID string  `json:"frameId"`
	Score   float64 `json:"correlationScore"`
}

// Reference owns the graph edges between one summary, its events, and
// frames. EventEvidenceMap keys are always a subset of the summary's
// event ids.
type Reference struct {
	SummaryID            string              `json:"summaryId"`
	DirectEvidenceFrames []string            `json:"directEvidenceFrames"`
	CorrelatedFrames     []CorrelatedFrame   `json:"correlatedFrames"`
	EventEvidenceMap     map[string][]string `json:"eventEvidenceMap"`
	BidirectionalLinks   map[string][]string `json:"bidirectionalLinks"`
}

// Neighbors returns the nodes adjacent to id in the link closure. O(1)
// after construction.
func (r Reference) Neighbors(id string) []string {
	return r.BidirectionalLinks[id]
}

// Factor explains one input to the aggregated confidence.
type Factor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail,omitempty"`
}

// SummaryConfidence carries the summary-level aggregation and the
// coverage it was computed from.
type SummaryConfidence struct {
	AggregatedConfidence float64 `json:"aggregatedConfidence"`
	EvidencedEvents      int     `json:"evidencedEvents"`
	TotalEvents          int     `json:"totalEvents"`
}

// Propagation is the bottom-up confidence roll-up for one summary.
// Recomputed whenever the summary's evidence graph changes; never
// inflated by aggregation.
type Propagation struct {
	OverallConfidence float64            `json:"overallConfidence"`
	SummaryConfidence SummaryConfidence  `json:"summaryConfidence"`
	FrameConfidences  map[string]float64 `json:"frameConfidences"`
	EventConfidences  map[string]float64 `json:"eventConfidences"`
	ConfidenceFactors []Factor           `json:"confidenceFactors"`
}

// TraceLevel identifies a node's tier in the lineage graph.
type TraceLevel string

const (
	LevelSummary TraceLevel = "summary"
	LevelEvent   TraceLevel = "event"
	LevelFrame   TraceLevel = "frame"
)

// TraceStep is one visited node in an evidence walk.
type TraceStep struct {
	Level      TraceLevel `json:"level"`
	ID         string     `json:"id"`
	Confidence float64    `json:"confidence"`
}

// Trace is a reconstructed path from one summary down to its frames.
// Built on demand; the graph, not the trace, is the source of truth.
// An incomplete trace is a valid, reportable outcome signalling a weakly
// evidenced summary, not a pipeline failure.
type Trace struct {
	TraceComplete   bool        `json:"traceComplete"`
	TotalConfidence float64     `json:"totalConfidence"`
	TracePath       []TraceStep `json:"tracePath"`
}
