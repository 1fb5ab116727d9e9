package evidence

import "fmt"

// TraceEvidencePath walks breadth-first from the summary node down
// through its events to their frames, recording each visited node with
// its level and confidence in visit order. TraceComplete is true only if
// every event of the summary has at least one reachable frame; an
// incomplete trace signals a weakly-evidenced summary, not a failure.
func (l *Linker) TraceEvidencePath(summaryID string) (Trace, error) {
	l.mu.RLock()
	ls, ok := l.linked[summaryID]
	l.mu.RUnlock()
	if !ok {
		return Trace{}, fmt.Errorf("summary %s has not been linked", summaryID)
	}

	ref := ls.reference
	prop := ls.propagation
	trace := Trace{TraceComplete: true, TotalConfidence: prop.OverallConfidence}
	trace.TracePath = append(trace.TracePath, TraceStep{
		Level: LevelSummary, ID: summaryID, Confidence: prop.OverallConfidence,
	})

	visitedFrames := make(map[string]struct{})
	// Events visit in the summary's declared order; each event's frames
	// follow its evidence list order. Breadth-first: all events first,
	// then the frame tier.
	var frameTier []TraceStep
	for _, evID := range ls.eventOrder {
		evidence, known := ref.EventEvidenceMap[evID]
		if !known {
			// The summary names an event the linker never saw; the path
			// cannot reach frames through it.
			trace.TraceComplete = false
			continue
		}
		trace.TracePath = append(trace.TracePath, TraceStep{
			Level: LevelEvent, ID: evID, Confidence: prop.EventConfidences[evID],
		})
		reachable := 0
		for _, fid := range evidence {
			conf, haveFrame := prop.FrameConfidences[fid]
			if !haveFrame {
				continue
			}
			reachable++
			if _, seen := visitedFrames[fid]; seen {
				continue
			}
			visitedFrames[fid] = struct{}{}
			frameTier = append(frameTier, TraceStep{Level: LevelFrame, ID: fid, Confidence: conf})
		}
		if reachable == 0 {
			trace.TraceComplete = false
		}
	}
	trace.TracePath = append(trace.TracePath, frameTier...)
	return trace, nil
}
