// Package event turns successive recognition snapshots of the same
// context into discrete, importance-ranked state-change events.
package event

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/observability"
	"github.com/wudi/screenkit/recognition"
)

// Option mutates a Detector during construction.
type Option func(*Detector)

// WithSnapshotTTL bounds how long a context's previous snapshot is
// retained. Default 10 minutes.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(d *Detector) { d.snapshotTTL = ttl }
}

// WithSameRegionIoU sets the overlap above which two results are treated
// as the same on-screen element. Default 0.6.
func WithSameRegionIoU(v float64) Option { return func(d *Detector) { d.sameRegionIoU = v } }

// WithClassifier replaces the base classifier.
func WithClassifier(c *Classifier) Option { return func(d *Detector) { d.classifier = c } }

// WithLogger sets the logger. Default nop.
func WithLogger(l observability.Logger) Option { return func(d *Detector) { d.logger = l } }

// WithMetrics sets the metrics sink. Default nop.
func WithMetrics(m observability.Metrics) Option { return func(d *Detector) { d.metrics = m } }

// Detector diffs recognition snapshots per context key. Stateless across
// contexts except for the bounded snapshot store.
type Detector struct {
	snapshots     *snapshotStore
	snapshotTTL   time.Duration
	sameRegionIoU float64
	classifier    *Classifier
	logger        observability.Logger
	metrics       observability.Metrics
}

// NewDetector constructs a detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		snapshotTTL:   10 * time.Minute,
		sameRegionIoU: 0.6,
		classifier:    NewClassifier(),
		logger:        observability.NopLogger{},
		metrics:       observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.snapshots = newSnapshotStore(d.snapshotTTL)
	return d
}

// Detect compares the frame's recognition results against the previous
// snapshot for the same context key and returns classified events in
// non-decreasing timestamp order. The first frame for a key produces no
// events; it only seeds the snapshot.
func (d *Detector) Detect(frameID string, capturedAt time.Time, app capture.ApplicationContext, current []recognition.Result) []DetectedEvent {
	key := app.Key()
	lock := d.snapshots.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	prev, had := d.snapshots.get(key)
	d.snapshots.put(key, snapshot{frameID: frameID, taken: capturedAt, results: current})
	if !had {
		return nil
	}

	delta := ComputeDelta(prev.results, current, d.sameRegionIoU)
	if delta.Empty() {
		return nil
	}
	events := d.classify(delta, capturedAt, key, prev.frameID, frameID)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	for range events {
		d.metrics.IncCounter(observability.MetricEventsDetected, map[string]string{"component": app.AppIdentifier})
	}
	d.logger.Debug("events detected",
		observability.String("context", app.AppIdentifier),
		observability.Int("count", len(events)))
	return events
}

// SnapshotCount reports how many context snapshots are currently held.
func (d *Detector) SnapshotCount() int { return d.snapshots.len() }

// ComputeDelta aligns previous and current result sets. A "modified" pair
// requires a near-identical bounding region with differing text, not mere
// proximity; identical normalized text in the same region is unchanged.
// Anything unmatched in current is added, in previous removed. When a
// region overlaps several candidates ambiguously, both sides are treated
// as independent added/removed rather than force-matched. Deterministic:
// the same inputs always produce identical sets.
func ComputeDelta(previous, current []recognition.Result, sameRegionIoU float64) Delta {
	prev := sortedByPosition(previous)
	cur := sortedByPosition(current)
	delta := Delta{Previous: previous, Current: current}

	prevMatched := make([]bool, len(prev))
	curMatched := make([]bool, len(cur))

	// Pass 1: unchanged elements (same text, same region).
	for ci, c := range cur {
		cNorm := normalizeText(c.Text)
		for pi, p := range prev {
			if prevMatched[pi] {
				continue
			}
			if cNorm == normalizeText(p.Text) && c.Region.IoU(p.Region) >= sameRegionIoU {
				prevMatched[pi] = true
				curMatched[ci] = true
				break
			}
		}
	}

	// Pass 2: modified elements (same region, different text). A current
	// region matching multiple remaining previous regions is ambiguous
	// and falls through to added/removed.
	for ci, c := range cur {
		if curMatched[ci] {
			continue
		}
		candidate := -1
		candidates := 0
		for pi, p := range prev {
			if prevMatched[pi] {
				continue
			}
			if c.Region.IoU(p.Region) >= sameRegionIoU || nearIdentical(c.Region, p.Region) {
				candidates++
				candidate = pi
			}
		}
		if candidates != 1 {
			continue
		}
		p := prev[candidate]
		if normalizeText(c.Text) == normalizeText(p.Text) {
			// Text equal after normalization: not a change at all.
			prevMatched[candidate] = true
			curMatched[ci] = true
			continue
		}
		delta.Modified = append(delta.Modified, ModifiedPair{Previous: p, Current: c})
		prevMatched[candidate] = true
		curMatched[ci] = true
	}

	for ci, c := range cur {
		if !curMatched[ci] && normalizeText(c.Text) != "" {
			delta.Added = append(delta.Added, c)
		}
	}
	for pi, p := range prev {
		if !prevMatched[pi] && normalizeText(p.Text) != "" {
			delta.Removed = append(delta.Removed, p)
		}
	}
	return delta
}

func (d *Detector) classify(delta Delta, ts time.Time, key, prevFrameID, frameID string) []DetectedEvent {
	var events []DetectedEvent
	emit := func(ev DetectedEvent) {
		ev.ID = uuid.NewString()
		ev.Timestamp = ts
		ev.ContextKey = key
		ev.Classification = d.classifier.Classify(ev)
		events = append(events, ev)
	}

	for _, pair := range delta.Modified {
		emit(DetectedEvent{
			Type:           TypeFieldChange,
			Target:         normalizeText(pair.Previous.Text),
			ValueBefore:    strings.TrimSpace(pair.Previous.Text),
			ValueAfter:     strings.TrimSpace(pair.Current.Text),
			Confidence:     math.Min(pair.Previous.Confidence, pair.Current.Confidence),
			EvidenceFrames: dedupe(prevFrameID, frameID),
		})
	}
	for _, added := range delta.Added {
		emit(DetectedEvent{
			Type:           TypeContentAdded,
			Target:         normalizeText(added.Text),
			ValueAfter:     strings.TrimSpace(added.Text),
			Confidence:     added.Confidence,
			EvidenceFrames: []string{frameID},
		})
	}
	for _, removed := range delta.Removed {
		emit(DetectedEvent{
			Type:           TypeContentRemoved,
			Target:         normalizeText(removed.Text),
			ValueBefore:    strings.TrimSpace(removed.Text),
			Confidence:     removed.Confidence,
			EvidenceFrames: []string{prevFrameID},
		})
	}
	return events
}

// normalizeText collapses whitespace so layout jitter never reads as a
// content change.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// nearIdentical accepts small positional jitter between captures of the
// same element even when the text length (and therefore the box width)
// changed enough to depress IoU.
func nearIdentical(a, b recognition.Region) bool {
	ax, ay := a.Center()
	bx, by := b.Center()
	tolerance := math.Max(a.Height, b.Height)
	return math.Abs(ay-by) <= tolerance && math.Abs(ax-bx) <= tolerance*4
}

func sortedByPosition(results []recognition.Result) []recognition.Result {
	out := append([]recognition.Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Region.Y != out[j].Region.Y {
			return out[i].Region.Y < out[j].Region.Y
		}
		if out[i].Region.X != out[j].Region.X {
			return out[i].Region.X < out[j].Region.X
		}
		return out[i].Text < out[j].Text
	})
	return out
}

func dedupe(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
