// Package evidence assembles summaries, events, and frames into a
// bidirectional lineage graph with bottom-up confidence propagation and
// on-demand path reconstruction.
package evidence

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/observability"
)

// Option mutates a Linker during construction.
type Option func(*Linker)

// WithCorrelationWeights sets the time/app/title weights of the
// correlation score. They are normalized internally.
func WithCorrelationWeights(timeW, appW, titleW float64) Option {
	return func(l *Linker) {
		l.timeWeight, l.appWeight, l.titleWeight = timeW, appW, titleW
	}
}

// WithMinCorrelationScore sets the score below which a frame is not
// retained as correlated evidence. Default 0.3.
func WithMinCorrelationScore(v float64) Option {
	return func(l *Linker) { l.minCorrelationScore = v }
}

// WithDecayHalfLife sets the exponential time-decay half-life applied to
// frames outside the session window. Default 30s.
func WithDecayHalfLife(d time.Duration) Option {
	return func(l *Linker) {
		if d > 0 {
			l.decayHalfLife = d
		}
	}
}

// WithLogger sets the logger. Default nop.
func WithLogger(log observability.Logger) Option { return func(l *Linker) { l.logger = log } }

// WithMetrics sets the metrics sink. Default nop.
func WithMetrics(m observability.Metrics) Option { return func(l *Linker) { l.metrics = m } }

// Linker builds evidence references and answers trace queries for linked
// summaries.
type Linker struct {
	timeWeight          float64
	appWeight           float64
	titleWeight         float64
	minCorrelationScore float64
	decayHalfLife       time.Duration

	mu     sync.RWMutex
	linked map[string]*linkedSummary

	logger  observability.Logger
	metrics observability.Metrics
}

type linkedSummary struct {
	summary     Summary
	session     Session
	reference   Reference
	propagation Propagation
	eventOrder  []string
}

// NewLinker constructs a linker with the documented defaults.
func NewLinker(opts ...Option) *Linker {
	l := &Linker{
		timeWeight:          0.5,
		appWeight:           0.3,
		titleWeight:         0.2,
		minCorrelationScore: 0.3,
		decayHalfLife:       30 * time.Second,
		linked:              make(map[string]*linkedSummary),
		logger:              observability.NopLogger{},
		metrics:             observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Link builds the evidence reference and confidence propagation for one
// summary. Events not referenced by the summary are ignored, keeping the
// eventEvidenceMap key set a subset of the summary's events. Frames not
// directly referenced are scored for temporal correlation against the
// session window.
func (l *Linker) Link(summary Summary, session Session, events []event.DetectedEvent, frames []FrameMeta) (Reference, Propagation) {
	wanted := make(map[string]struct{}, len(summary.EventIDs))
	for _, id := range summary.EventIDs {
		wanted[id] = struct{}{}
	}
	var linkedEvents []event.DetectedEvent
	for _, ev := range events {
		if _, ok := wanted[ev.ID]; ok {
			linkedEvents = append(linkedEvents, ev)
		}
	}

	frameByID := make(map[string]FrameMeta, len(frames))
	for _, f := range frames {
		frameByID[f.ID] = f
	}

	ref := Reference{
		SummaryID:          summary.ID,
		EventEvidenceMap:   make(map[string][]string, len(linkedEvents)),
		BidirectionalLinks: make(map[string][]string),
	}

	direct := make(map[string]struct{})
	for _, ev := range linkedEvents {
		evidence := make([]string, 0, len(ev.EvidenceFrames))
		for _, fid := range ev.EvidenceFrames {
			if _, ok := frameByID[fid]; !ok {
				// The event references a frame the caller did not supply;
				// keep the edge so the gap is visible in traces.
				l.logger.Debug("evidence frame missing from frame set",
					observability.String("event", ev.ID), observability.String("frame", fid))
			}
			evidence = append(evidence, fid)
			direct[fid] = struct{}{}
		}
		ref.EventEvidenceMap[ev.ID] = evidence
	}
	ref.DirectEvidenceFrames = sortedKeys(direct)

	ref.CorrelatedFrames = l.correlateFrames(session, frames, direct)
	l.buildLinks(&ref, summary, linkedEvents)

	prop := l.propagate(summary, linkedEvents, frameByID, ref)

	l.mu.Lock()
	l.linked[summary.ID] = &linkedSummary{
		summary:     summary,
		session:     session,
		reference:   ref,
		propagation: prop,
		eventOrder:  summary.EventIDs,
	}
	l.mu.Unlock()

	l.metrics.IncCounter(observability.MetricFramesLinked, map[string]string{"component": "linker"})
	return ref, prop
}

// Reference returns the stored evidence reference for a linked summary.
func (l *Linker) Reference(summaryID string) (Reference, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ls, ok := l.linked[summaryID]
	if !ok {
		return Reference{}, fmt.Errorf("summary %s has not been linked", summaryID)
	}
	return ls.reference, nil
}

// Propagation returns the stored confidence propagation for a linked
// summary.
func (l *Linker) Propagation(summaryID string) (Propagation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ls, ok := l.linked[summaryID]
	if !ok {
		return Propagation{}, fmt.Errorf("summary %s has not been linked", summaryID)
	}
	return ls.propagation, nil
}

// correlateFrames scores frames not directly referenced by any event
// against the session window and context, keeping those above the
// minimum score in descending score order.
func (l *Linker) correlateFrames(session Session, frames []FrameMeta, direct map[string]struct{}) []CorrelatedFrame {
	wSum := l.timeWeight + l.appWeight + l.titleWeight
	if wSum <= 0 {
		return nil
	}
	var out []CorrelatedFrame
	for _, f := range frames {
		if _, ok := direct[f.ID]; ok {
			continue
		}
		score := (l.timeWeight*l.timeScore(session, f.Timestamp) +
			l.appWeight*boolScore(f.AppIdentifier == session.AppIdentifier) +
			l.titleWeight*titleSimilarity(f.WindowTitle, session.WindowTitle)) / wSum
		if score >= l.minCorrelationScore {
			out = append(out, CorrelatedFrame{FrameID: f.ID, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].FrameID < out[j].FrameID
	})
	return out
}

// timeScore is 1 inside the session window and decays exponentially with
// the configured half-life outside it.
func (l *Linker) timeScore(session Session, ts time.Time) float64 {
	var distance time.Duration
	switch {
	case ts.Before(session.Start):
		distance = session.Start.Sub(ts)
	case ts.After(session.End):
		distance = ts.Sub(session.End)
	default:
		return 1
	}
	return math.Exp(-math.Ln2 * float64(distance) / float64(l.decayHalfLife))
}

// buildLinks computes the transitive closure of summary→event and
// event→frame edges plus their inverses so any node's neighbors resolve
// in O(1).
func (l *Linker) buildLinks(ref *Reference, summary Summary, events []event.DetectedEvent) {
	addEdge := func(a, b string) {
		ref.BidirectionalLinks[a] = appendUnique(ref.BidirectionalLinks[a], b)
		ref.BidirectionalLinks[b] = appendUnique(ref.BidirectionalLinks[b], a)
	}
	for _, ev := range events {
		addEdge(summary.ID, ev.ID)
		for _, fid := range ref.EventEvidenceMap[ev.ID] {
			addEdge(ev.ID, fid)
		}
	}
	for _, cf := range ref.CorrelatedFrames {
		addEdge(summary.ID, cf.FrameID)
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// titleSimilarity is the token Jaccard similarity of two window titles.
func titleSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = struct{}{}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
