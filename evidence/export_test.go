package evidence

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExportBundlesLinkedSummary(t *testing.T) {
	l := NewLinker()
	l.Link(testSummary(), testSession(), testEvents(), testFrames())

	doc, err := l.Export("sum-1")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if doc.Summary.ID != "sum-1" || doc.Session.ID != "sess-1" {
		t.Fatalf("wrong summary/session: %q %q", doc.Summary.ID, doc.Session.ID)
	}
	if doc.Reference.SummaryID != "sum-1" {
		t.Fatalf("reference not included: %+v", doc.Reference)
	}
	if doc.Trace.TotalConfidence != doc.Propagation.OverallConfidence {
		t.Fatalf("trace confidence %v diverges from propagation %v",
			doc.Trace.TotalConfidence, doc.Propagation.OverallConfidence)
	}

	if _, err := l.Export("sum-unknown"); err == nil {
		t.Fatalf("expected error for unlinked summary")
	}
}

func TestExportJSONCanonicalKeys(t *testing.T) {
	l := NewLinker()
	l.Link(testSummary(), testSession(), testEvents(), testFrames())

	raw, err := l.ExportJSON("sum-1")
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	for _, key := range []string{
		`"evidenceReference"`, `"confidencePropagation"`, `"evidenceTrace"`,
		`"directEvidenceFrames"`, `"correlatedFrames"`, `"eventEvidenceMap"`,
		`"bidirectionalLinks"`, `"overallConfidence"`, `"frameConfidences"`,
		`"eventConfidences"`, `"confidenceFactors"`, `"traceComplete"`,
		`"tracePath"`,
	} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("export missing canonical key %s:\n%s", key, raw)
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if doc.Propagation.OverallConfidence <= 0 {
		t.Fatalf("confidence lost in roundtrip: %+v", doc.Propagation)
	}
}
