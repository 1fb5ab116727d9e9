// Package report renders evidence objects into a human-readable activity
// report, as markdown or as HTML via goldmark.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/evidence"
)

// Input is everything one summary's report section needs.
type Input struct {
	Summary     evidence.Summary
	Session     evidence.Session
	Events      []event.DetectedEvent
	Reference   evidence.Reference
	Propagation evidence.Propagation
	Trace       evidence.Trace
}

// Markdown renders one or more summary sections into a markdown
// document. Sections keep their input order.
func Markdown(title string, inputs []Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Generated %s.\n\n", time.Now().UTC().Format(time.RFC3339))
	for _, in := range inputs {
		writeSummary(&b, in)
	}
	return b.String()
}

// HTML renders the markdown report to HTML.
func HTML(title string, inputs []Input) ([]byte, error) {
	md := goldmark.New(goldmark.WithRendererOptions(ghtml.WithHardWraps()))
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(title, inputs)), &buf); err != nil {
		return nil, fmt.Errorf("report: render html: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "## %s\n\n", headline(in.Summary))
	if !in.Session.Start.IsZero() {
		fmt.Fprintf(b, "Session `%s` (%s), %s to %s.\n\n",
			in.Session.ID, in.Session.AppIdentifier,
			in.Session.Start.UTC().Format(time.RFC3339),
			in.Session.End.UTC().Format(time.RFC3339))
	}
	if in.Summary.Narrative != "" {
		fmt.Fprintf(b, "%s\n\n", in.Summary.Narrative)
	}

	fmt.Fprintf(b, "**Overall confidence: %.2f**", in.Propagation.OverallConfidence)
	sc := in.Propagation.SummaryConfidence
	fmt.Fprintf(b, " (%d of %d events evidenced", sc.EvidencedEvents, sc.TotalEvents)
	if !in.Trace.TraceComplete {
		b.WriteString("; evidence trace incomplete")
	}
	b.WriteString(")\n\n")

	if len(in.Events) > 0 {
		b.WriteString("### Events\n\n")
		b.WriteString("| Time | Type | Importance | Change | Confidence | Frames |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, ev := range in.Events {
			fmt.Fprintf(b, "| %s | %s | %s | %s | %.2f | %d |\n",
				ev.Timestamp.UTC().Format("15:04:05"),
				ev.Type, ev.Classification.Importance,
				changeText(ev), ev.Confidence,
				len(in.Reference.EventEvidenceMap[ev.ID]))
		}
		b.WriteString("\n")
	}

	if len(in.Reference.CorrelatedFrames) > 0 {
		b.WriteString("### Correlated frames\n\n")
		for _, cf := range in.Reference.CorrelatedFrames {
			fmt.Fprintf(b, "- `%s` (score %.2f)\n", cf.FrameID, cf.Score)
		}
		b.WriteString("\n")
	}

	if len(in.Propagation.ConfidenceFactors) > 0 {
		b.WriteString("### Confidence factors\n\n")
		for _, f := range in.Propagation.ConfidenceFactors {
			fmt.Fprintf(b, "- %s: %.2f", f.Name, f.Value)
			if f.Detail != "" {
				fmt.Fprintf(b, " (%s)", f.Detail)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

// headline picks a short title for a summary section: the first sentence
// of the narrative, or the summary id.
func headline(s evidence.Summary) string {
	n := strings.TrimSpace(s.Narrative)
	if n == "" {
		return s.ID
	}
	if idx := strings.IndexAny(n, ".!?\n"); idx > 0 {
		n = n[:idx]
	}
	if len(n) > 80 {
		n = n[:77] + "..."
	}
	return n
}

func changeText(ev event.DetectedEvent) string {
	target := ev.Target
	if target == "" {
		target = "(content)"
	}
	switch ev.Type {
	case event.TypeFieldChange:
		return fmt.Sprintf("%s: %s → %s", target, escapeCell(ev.ValueBefore), escapeCell(ev.ValueAfter))
	case event.TypeContentAdded:
		return fmt.Sprintf("added %s", escapeCell(ev.ValueAfter))
	case event.TypeContentRemoved:
		return fmt.Sprintf("removed %s", escapeCell(ev.ValueBefore))
	}
	return target
}

// escapeCell keeps table cells on one line and free of pipes.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

// SortInputs orders report sections by session start time.
func SortInputs(inputs []Input) {
	sort.SliceStable(inputs, func(i, j int) bool {
		return inputs[i].Session.Start.Before(inputs[j].Session.Start)
	})
}
