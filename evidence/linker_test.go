package evidence

import (
	"testing"
	"time"

	"github.com/wudi/screenkit/event"
)

var sessionStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testSession() Session {
	return Session{
		ID:            "sess-1",
		Start:         sessionStart,
		End:           sessionStart.Add(5 * time.Minute),
		AppIdentifier: "com.apple.mail",
		WindowTitle:   "Inbox - Mail",
	}
}

func inWindow(offset time.Duration) time.Time { return sessionStart.Add(offset) }

func testFrames() []FrameMeta {
	return []FrameMeta{
		{ID: "f1", Timestamp: inWindow(time.Minute), AppIdentifier: "com.apple.mail", WindowTitle: "Inbox - Mail", Confidence: 0.9},
		{ID: "f2", Timestamp: inWindow(2 * time.Minute), AppIdentifier: "com.apple.mail", WindowTitle: "Inbox - Mail", Confidence: 0.8},
		{ID: "f3", Timestamp: inWindow(3 * time.Minute), AppIdentifier: "com.apple.mail", WindowTitle: "Inbox - Mail", Confidence: 0.7},
		{ID: "f4", Timestamp: sessionStart.Add(-30 * time.Minute), AppIdentifier: "com.google.Chrome", WindowTitle: "Docs", Confidence: 0.9},
	}
}

func testEvents() []event.DetectedEvent {
	return []event.DetectedEvent{
		{ID: "e1", Type: event.TypeFieldChange, Timestamp: inWindow(2 * time.Minute), Confidence: 0.85, EvidenceFrames: []string{"f1", "f2"}},
		{ID: "e2", Type: event.TypeContentAdded, Timestamp: inWindow(4 * time.Minute), Confidence: 0.6},
		{ID: "e3", Type: event.TypeContentRemoved, Timestamp: inWindow(4 * time.Minute), Confidence: 0.9, EvidenceFrames: []string{"f3"}},
	}
}

func testSummary() Summary {
	return Summary{ID: "sum-1", SessionID: "sess-1", Narrative: "Replied to a thread.", EventIDs: []string{"e1", "e2"}}
}

func TestLinkBuildsEvidenceReference(t *testing.T) {
	l := NewLinker()
	ref, _ := l.Link(testSummary(), testSession(), testEvents(), testFrames())

	if ref.SummaryID != "sum-1" {
		t.Fatalf("unexpected summary id %q", ref.SummaryID)
	}
	// e3 is not referenced by the summary and must not leak in.
	if len(ref.EventEvidenceMap) != 2 {
		t.Fatalf("eventEvidenceMap must cover summary events only: %v", ref.EventEvidenceMap)
	}
	if _, ok := ref.EventEvidenceMap["e3"]; ok {
		t.Fatalf("unlinked event leaked into the map")
	}
	if got := ref.EventEvidenceMap["e1"]; len(got) != 2 || got[0] != "f1" || got[1] != "f2" {
		t.Fatalf("unexpected evidence for e1: %v", got)
	}
	if len(ref.DirectEvidenceFrames) != 2 || ref.DirectEvidenceFrames[0] != "f1" || ref.DirectEvidenceFrames[1] != "f2" {
		t.Fatalf("unexpected direct frames: %v", ref.DirectEvidenceFrames)
	}
}

func TestLinkCorrelatesNearbyFrames(t *testing.T) {
	l := NewLinker()
	ref, _ := l.Link(testSummary(), testSession(), testEvents(), testFrames())

	// f3 is in-window, same app and title, and not direct evidence of any
	// linked event; f4 is far outside the window in another app.
	if len(ref.CorrelatedFrames) != 1 {
		t.Fatalf("expected one correlated frame, got %+v", ref.CorrelatedFrames)
	}
	cf := ref.CorrelatedFrames[0]
	if cf.FrameID != "f3" {
		t.Fatalf("expected f3 correlated, got %q", cf.FrameID)
	}
	if cf.Score < 0.99 {
		t.Fatalf("in-window same-context frame should score ~1.0, got %v", cf.Score)
	}
	for _, direct := range ref.DirectEvidenceFrames {
		if direct == cf.FrameID {
			t.Fatalf("direct evidence must not also be correlated")
		}
	}
}

func TestLinkBidirectionalClosure(t *testing.T) {
	l := NewLinker()
	ref, _ := l.Link(testSummary(), testSession(), testEvents(), testFrames())

	pairs := [][2]string{
		{"sum-1", "e1"},
		{"sum-1", "e2"},
		{"e1", "f1"},
		{"e1", "f2"},
		{"sum-1", "f3"},
	}
	for _, pair := range pairs {
		if !contains(ref.Neighbors(pair[0]), pair[1]) {
			t.Fatalf("missing edge %s -> %s: %v", pair[0], pair[1], ref.Neighbors(pair[0]))
		}
		if !contains(ref.Neighbors(pair[1]), pair[0]) {
			t.Fatalf("missing inverse edge %s -> %s: %v", pair[1], pair[0], ref.Neighbors(pair[1]))
		}
	}
}

func TestPropagationCoverageAndBounds(t *testing.T) {
	l := NewLinker()
	_, prop := l.Link(testSummary(), testSession(), testEvents(), testFrames())

	sc := prop.SummaryConfidence
	if sc.EvidencedEvents != 1 || sc.TotalEvents != 2 {
		t.Fatalf("expected 1 of 2 events evidenced, got %+v", sc)
	}
	if prop.OverallConfidence <= 0 || prop.OverallConfidence >= 1 {
		t.Fatalf("overall confidence out of range: %v", prop.OverallConfidence)
	}
	eventMean := (0.85 + 0.6) / 2
	if prop.OverallConfidence > eventMean {
		t.Fatalf("overall %v must not exceed event mean %v", prop.OverallConfidence, eventMean)
	}
	if prop.EventConfidences["e1"] != 0.85 || prop.EventConfidences["e2"] != 0.6 {
		t.Fatalf("event confidences not propagated: %v", prop.EventConfidences)
	}
	if prop.FrameConfidences["f1"] != 0.9 {
		t.Fatalf("frame confidences not propagated: %v", prop.FrameConfidences)
	}
	if len(prop.ConfidenceFactors) == 0 {
		t.Fatalf("expected confidence factors")
	}
}

func TestPropagationWeakFrameNeverRaisesConfidence(t *testing.T) {
	summary := Summary{ID: "s", SessionID: "sess-1", EventIDs: []string{"e1"}}
	session := testSession()
	strongOnly := []event.DetectedEvent{
		{ID: "e1", Confidence: 0.8, EvidenceFrames: []string{"f1"}},
	}
	withWeak := []event.DetectedEvent{
		{ID: "e1", Confidence: 0.8, EvidenceFrames: []string{"f1", "weak"}},
	}
	strongFrames := []FrameMeta{
		{ID: "f1", Timestamp: inWindow(time.Minute), AppIdentifier: "com.apple.mail", Confidence: 0.9},
	}
	weakFrames := append(strongFrames, FrameMeta{
		ID: "weak", Timestamp: inWindow(time.Minute), AppIdentifier: "com.apple.mail", Confidence: 0.3,
	})

	_, before := NewLinker().Link(summary, session, strongOnly, strongFrames)
	_, after := NewLinker().Link(summary, session, withWeak, weakFrames)
	if after.OverallConfidence > before.OverallConfidence {
		t.Fatalf("adding a weaker frame raised confidence: %v -> %v",
			before.OverallConfidence, after.OverallConfidence)
	}
}

func TestPropagationFirstFrameOnWeakEventNeverRaisesConfidence(t *testing.T) {
	session := testSession()
	summary := Summary{ID: "s", SessionID: "sess-1", EventIDs: []string{"e1", "e2"}}
	frames := []FrameMeta{
		{ID: "f1", Timestamp: inWindow(time.Minute), AppIdentifier: "com.apple.mail", Confidence: 0.9},
	}
	unevidenced := []event.DetectedEvent{
		{ID: "e1", Confidence: 0.9, EvidenceFrames: []string{"f1"}},
		{ID: "e2", Confidence: 0.6},
	}
	_, before := NewLinker().Link(summary, session, unevidenced, frames)

	// The second event gaining its first frame must not lift the summary,
	// whatever the frame's confidence.
	for _, frameConf := range []float64{0.05, 0.3, 0.55, 0.6, 0.9} {
		withFrame := []event.DetectedEvent{
			{ID: "e1", Confidence: 0.9, EvidenceFrames: []string{"f1"}},
			{ID: "e2", Confidence: 0.6, EvidenceFrames: []string{"f2"}},
		}
		framed := append(frames[:1:1], FrameMeta{
			ID: "f2", Timestamp: inWindow(2 * time.Minute), AppIdentifier: "com.apple.mail", Confidence: frameConf,
		})
		_, after := NewLinker().Link(summary, session, withFrame, framed)
		if after.OverallConfidence > before.OverallConfidence {
			t.Fatalf("frame conf %v raised overall confidence %v -> %v",
				frameConf, before.OverallConfidence, after.OverallConfidence)
		}
	}
}

func TestPropagationNoEvents(t *testing.T) {
	summary := Summary{ID: "empty", SessionID: "sess-1"}
	_, prop := NewLinker().Link(summary, testSession(), nil, testFrames())
	if prop.OverallConfidence != 0 {
		t.Fatalf("summary without events must have zero confidence, got %v", prop.OverallConfidence)
	}
}

func TestReferenceAndPropagationAccessors(t *testing.T) {
	l := NewLinker()
	if _, err := l.Reference("nope"); err == nil {
		t.Fatalf("expected error for unlinked summary")
	}
	l.Link(testSummary(), testSession(), testEvents(), testFrames())
	ref, err := l.Reference("sum-1")
	if err != nil {
		t.Fatalf("Reference() error = %v", err)
	}
	if ref.SummaryID != "sum-1" {
		t.Fatalf("unexpected reference: %+v", ref)
	}
	if _, err := l.Propagation("sum-1"); err != nil {
		t.Fatalf("Propagation() error = %v", err)
	}
}

func TestTraceEvidencePathIncomplete(t *testing.T) {
	l := NewLinker()
	l.Link(testSummary(), testSession(), testEvents(), testFrames())

	trace, err := l.TraceEvidencePath("sum-1")
	if err != nil {
		t.Fatalf("TraceEvidencePath() error = %v", err)
	}
	// e2 carries no frames, so the walk cannot complete.
	if trace.TraceComplete {
		t.Fatalf("trace must be incomplete when an event has no frames")
	}
	if len(trace.TracePath) != 5 {
		t.Fatalf("expected summary+2 events+2 frames, got %d steps", len(trace.TracePath))
	}
	if trace.TracePath[0].Level != LevelSummary || trace.TracePath[0].ID != "sum-1" {
		t.Fatalf("walk must start at the summary: %+v", trace.TracePath[0])
	}
	if trace.TracePath[1].Level != LevelEvent || trace.TracePath[2].Level != LevelEvent {
		t.Fatalf("events must precede frames: %+v", trace.TracePath)
	}
	if trace.TracePath[3].Level != LevelFrame || trace.TracePath[4].Level != LevelFrame {
		t.Fatalf("frames must form the last tier: %+v", trace.TracePath)
	}
}

func TestTraceEvidencePathComplete(t *testing.T) {
	summary := Summary{ID: "s", SessionID: "sess-1", EventIDs: []string{"e1", "e3"}}
	l := NewLinker()
	l.Link(summary, testSession(), testEvents(), testFrames())

	trace, err := l.TraceEvidencePath("s")
	if err != nil {
		t.Fatalf("TraceEvidencePath() error = %v", err)
	}
	if !trace.TraceComplete {
		t.Fatalf("every event has frames, trace must be complete: %+v", trace)
	}
	prop, _ := l.Propagation("s")
	if trace.TotalConfidence != prop.OverallConfidence {
		t.Fatalf("trace confidence %v != propagation %v", trace.TotalConfidence, prop.OverallConfidence)
	}
}

func TestTraceEvidencePathUnknownSummary(t *testing.T) {
	if _, err := NewLinker().TraceEvidencePath("ghost"); err == nil {
		t.Fatalf("expected error for unlinked summary")
	}
}

func TestTitleSimilarity(t *testing.T) {
	if got := titleSimilarity("Inbox - Mail", "Inbox - Mail"); got != 1 {
		t.Fatalf("identical titles must score 1, got %v", got)
	}
	if got := titleSimilarity("Inbox - Mail", "Settings"); got != 0 {
		t.Fatalf("disjoint titles must score 0, got %v", got)
	}
	mid := titleSimilarity("Inbox - Mail", "Archive - Mail")
	if mid <= 0 || mid >= 1 {
		t.Fatalf("partial overlap must score between 0 and 1, got %v", mid)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
