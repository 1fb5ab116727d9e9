package report

import (
	"strings"
	"testing"
	"time"

	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/evidence"
)

func sampleInput() Input {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return Input{
		Summary: evidence.Summary{
			ID: "sum-1", SessionID: "sess-1",
			Narrative: "Replied to the billing thread. Then archived it.",
			EventIDs:  []string{"e1", "e2"},
		},
		Session: evidence.Session{
			ID: "sess-1", Start: start, End: start.Add(5 * time.Minute),
			AppIdentifier: "com.apple.mail", WindowTitle: "Inbox",
		},
		Events: []event.DetectedEvent{
			{
				ID: "e1", Type: event.TypeFieldChange, Timestamp: start.Add(time.Minute),
				Target: "status", ValueBefore: "Draft", ValueAfter: "Sent", Confidence: 0.85,
				Classification: event.Classification{Category: "data_modification", Importance: event.ImportanceMedium},
			},
			{
				ID: "e2", Type: event.TypeContentAdded, Timestamp: start.Add(2 * time.Minute),
				ValueAfter: "Archived 1 message", Confidence: 0.7,
				Classification: event.Classification{Category: "data_creation", Importance: event.ImportanceMedium},
			},
		},
		Reference: evidence.Reference{
			SummaryID:        "sum-1",
			EventEvidenceMap: map[string][]string{"e1": {"f1", "f2"}, "e2": {"f2"}},
			CorrelatedFrames: []evidence.CorrelatedFrame{{FrameID: "f3", Score: 0.72}},
		},
		Propagation: evidence.Propagation{
			OverallConfidence: 0.68,
			SummaryConfidence: evidence.SummaryConfidence{AggregatedConfidence: 0.68, EvidencedEvents: 2, TotalEvents: 2},
			ConfidenceFactors: []evidence.Factor{
				{Name: "evidence_coverage", Value: 1, Detail: "2 of 2 events carry frame evidence"},
			},
		},
		Trace: evidence.Trace{TraceComplete: true, TotalConfidence: 0.68},
	}
}

func TestMarkdownContainsCoreSections(t *testing.T) {
	md := Markdown("Activity report", []Input{sampleInput()})

	for _, want := range []string{
		"# Activity report",
		"## Replied to the billing thread",
		"Overall confidence: 0.68",
		"2 of 2 events evidenced",
		"### Events",
		"| 09:01:00 | field_change | medium |",
		"status: Draft → Sent",
		"### Correlated frames",
		"`f3` (score 0.72)",
		"### Confidence factors",
		"evidence_coverage: 1.00",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "trace incomplete") {
		t.Fatalf("complete trace must not be flagged:\n%s", md)
	}
}

func TestMarkdownFlagsIncompleteTrace(t *testing.T) {
	in := sampleInput()
	in.Trace.TraceComplete = false
	md := Markdown("Activity report", []Input{in})
	if !strings.Contains(md, "evidence trace incomplete") {
		t.Fatalf("incomplete trace not surfaced:\n%s", md)
	}
}

func TestMarkdownEscapesTableCells(t *testing.T) {
	in := sampleInput()
	in.Events[0].ValueAfter = "a | b\nc"
	md := Markdown("Activity report", []Input{in})
	if strings.Contains(md, "a | b\nc") {
		t.Fatalf("raw pipe/newline leaked into table:\n%s", md)
	}
	if !strings.Contains(md, `a \| b c`) {
		t.Fatalf("cell not escaped:\n%s", md)
	}
}

func TestHeadlineFallsBackToID(t *testing.T) {
	in := sampleInput()
	in.Summary.Narrative = ""
	md := Markdown("Activity report", []Input{in})
	if !strings.Contains(md, "## sum-1") {
		t.Fatalf("expected id headline:\n%s", md)
	}
}

func TestHTMLRendering(t *testing.T) {
	out, err := HTML("Activity report", []Input{sampleInput()})
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "Activity report") {
		t.Fatalf("unexpected html:\n%s", html)
	}
	if !strings.Contains(html, "<h2") {
		t.Fatalf("summary heading missing:\n%s", html)
	}
}

func TestSortInputsBySessionStart(t *testing.T) {
	a := sampleInput()
	b := sampleInput()
	b.Session.Start = a.Session.Start.Add(-time.Hour)
	b.Summary.ID = "sum-0"
	inputs := []Input{a, b}
	SortInputs(inputs)
	if inputs[0].Summary.ID != "sum-0" {
		t.Fatalf("inputs not sorted by session start: %v, %v", inputs[0].Summary.ID, inputs[1].Summary.ID)
	}
}
