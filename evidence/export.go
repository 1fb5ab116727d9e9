package evidence

import (
	"encoding/json"
	"fmt"
)

// Document is the serialized evidence bundle for one summary: the
// reference graph, the propagated confidence, and the reconstructed
// trace, under their canonical keys.
type Document struct {
	Summary     Summary     `json:"summary"`
	Session     Session     `json:"session"`
	Reference   Reference   `json:"evidenceReference"`
	Propagation Propagation `json:"confidencePropagation"`
	Trace       Trace       `json:"evidenceTrace"`
}

// Export assembles the evidence document for a linked summary.
func (l *Linker) Export(summaryID string) (Document, error) {
	l.mu.RLock()
	ls, ok := l.linked[summaryID]
	l.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("summary %s has not been linked", summaryID)
	}
	trace, err := l.TraceEvidencePath(summaryID)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Summary:     ls.summary,
		Session:     ls.session,
		Reference:   ls.reference,
		Propagation: ls.propagation,
		Trace:       trace,
	}, nil
}

// ExportJSON renders the evidence document as indented JSON suitable for
// embedding in a generated report.
func (l *Linker) ExportJSON(summaryID string) ([]byte, error) {
	doc, err := l.Export(summaryID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}
