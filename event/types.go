package event

import (
	"time"

	"github.com/wudi/screenkit/recognition"
)

// Type names the structural shape of a detected state change.
type Type string

const (
	TypeFieldChange    Type = "field_change"
	TypeContentAdded   Type = "content_appeared"
	TypeContentRemoved Type = "content_removed"
)

// Importance ranks how much a consumer should care about an event.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// ModifiedPair is a previous/current result pair the aligner judged to be
// the same on-screen element with changed text.
type ModifiedPair struct {
	Previous recognition.Result
	Current  recognition.Result
}

// Delta is the difference between two recognition snapshots of the same
// context. Computed once per context transition and consumed only by the
// detector's classification stage.
type Delta struct {
	Previous []recognition.Result
	Current  []recognition.Result
	Added    []recognition.Result
	Removed  []recognition.Result
	Modified []ModifiedPair
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// DetectedEvent is one discrete state change. Immutable after creation.
// Confidence never exceeds the minimum confidence of the contributing
// recognition results.
type DetectedEvent struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Target      string            `json:"target,omitempty"`
	ValueBefore string            `json:"valueBefore,omitempty"`
	ValueAfter  string            `json:"valueAfter,omitempty"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// ContextKey identifies the application/window stream the event
	// belongs to.
	ContextKey string `json:"contextKey"`
	// EvidenceFrames lists the frame ids that justify this event.
	EvidenceFrames []string       `json:"evidenceFrames,omitempty"`
	Classification Classification `json:"classification"`
}

// Classification categorizes one detected event. One-to-one with the
// event, produced by classification rules or the base classifier.
type Classification struct {
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory,omitempty"`
	Importance  Importance `json:"importance"`
	Tags        []string   `json:"tags,omitempty"`
	Confidence  float64    `json:"confidence"`
}
