// Package store persists pipeline outputs to SQLite so events, elements,
// and evidence objects survive the process and can be queried on demand.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/evidence"
)

// Store wraps a SQLite database holding frames, structured elements,
// detected events, summaries, and their evidence references.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveFrame records frame metadata. Saving the same frame id twice
// replaces the previous row.
func (s *Store) SaveFrame(ctx context.Context, f evidence.FrameMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO frames (id, captured_at, app_identifier, window_title, confidence)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, encodeTime(f.Timestamp), f.AppIdentifier, f.WindowTitle, f.Confidence)
	if err != nil {
		return fmt.Errorf("store: save frame %s: %w", f.ID, err)
	}
	return nil
}

// Frame returns the stored metadata for one frame.
func (s *Store) Frame(ctx context.Context, id string) (evidence.FrameMeta, error) {
	var f evidence.FrameMeta
	var capturedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, captured_at, app_identifier, window_title, confidence
		FROM frames WHERE id = ?`, id).
		Scan(&f.ID, &capturedAt, &f.AppIdentifier, &f.WindowTitle, &f.Confidence)
	if err == sql.ErrNoRows {
		return evidence.FrameMeta{}, fmt.Errorf("store: frame %s not found", id)
	}
	if err != nil {
		return evidence.FrameMeta{}, fmt.Errorf("store: load frame %s: %w", id, err)
	}
	if f.Timestamp, err = decodeTime(capturedAt); err != nil {
		return evidence.FrameMeta{}, fmt.Errorf("store: frame %s: %w", id, err)
	}
	return f, nil
}

// FramesBetween returns frame metadata captured inside [start, end] in
// ascending capture order.
func (s *Store) FramesBetween(ctx context.Context, start, end time.Time) ([]evidence.FrameMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, captured_at, app_identifier, window_title, confidence
		FROM frames WHERE captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at ASC`, encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, fmt.Errorf("store: query frames: %w", err)
	}
	defer rows.Close()
	var out []evidence.FrameMeta
	for rows.Next() {
		var f evidence.FrameMeta
		var capturedAt string
		if err := rows.Scan(&f.ID, &capturedAt, &f.AppIdentifier, &f.WindowTitle, &f.Confidence); err != nil {
			return nil, fmt.Errorf("store: scan frame: %w", err)
		}
		if f.Timestamp, err = decodeTime(capturedAt); err != nil {
			return nil, fmt.Errorf("store: frame %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveElements records structured elements extracted from one frame.
func (s *Store) SaveElements(ctx context.Context, frameID string, elements []enhance.StructuredElement) error {
	if len(elements) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO elements (id, frame_id, type, value, confidence, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare element insert: %w", err)
	}
	defer stmt.Close()
	for _, el := range elements {
		meta, err := json.Marshal(el.Metadata)
		if err != nil {
			return fmt.Errorf("store: encode element metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, el.ID, frameID, el.Type, el.Value, el.Confidence, string(meta)); err != nil {
			return fmt.Errorf("store: save element %s: %w", el.ID, err)
		}
	}
	return tx.Commit()
}

// ElementsByFrame returns the structured elements recorded for a frame.
func (s *Store) ElementsByFrame(ctx context.Context, frameID string) ([]enhance.StructuredElement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, value, confidence, metadata
		FROM elements WHERE frame_id = ? ORDER BY id ASC`, frameID)
	if err != nil {
		return nil, fmt.Errorf("store: query elements: %w", err)
	}
	defer rows.Close()
	var out []enhance.StructuredElement
	for rows.Next() {
		var el enhance.StructuredElement
		var meta string
		if err := rows.Scan(&el.ID, &el.Type, &el.Value, &el.Confidence, &meta); err != nil {
			return nil, fmt.Errorf("store: scan element: %w", err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &el.Metadata); err != nil {
				return nil, fmt.Errorf("store: decode element metadata: %w", err)
			}
		}
		out = append(out, el)
	}
	return out, rows.Err()
}

// SaveEvents records detected events. Events are append-mostly; replays
// of the same event id replace the earlier row.
func (s *Store) SaveEvents(ctx context.Context, events []event.DetectedEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO events
		(id, type, occurred_at, context_key, target, value_before, value_after, confidence, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare event insert: %w", err)
	}
	defer stmt.Close()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("store: encode event %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, string(ev.Type), encodeTime(ev.Timestamp), ev.ContextKey,
			ev.Target, ev.ValueBefore, ev.ValueAfter, ev.Confidence, string(payload)); err != nil {
			return fmt.Errorf("store: save event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// EventsByContext returns all events recorded for one context key in
// ascending time order.
func (s *Store) EventsByContext(ctx context.Context, contextKey string) ([]event.DetectedEvent, error) {
	return s.queryEvents(ctx, `
		SELECT payload FROM events WHERE context_key = ? ORDER BY occurred_at ASC, id ASC`, contextKey)
}

// EventsBetween returns all events inside [start, end] in ascending
// time order.
func (s *Store) EventsBetween(ctx context.Context, start, end time.Time) ([]event.DetectedEvent, error) {
	return s.queryEvents(ctx, `
		SELECT payload FROM events WHERE occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC`, encodeTime(start), encodeTime(end))
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.DetectedEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()
	var out []event.DetectedEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		var ev event.DetectedEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("store: decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveSummary records a summary together with its evidence reference and
// confidence propagation, all as one transactional write.
func (s *Store) SaveSummary(ctx context.Context, summary evidence.Summary, ref evidence.Reference, prop evidence.Propagation) error {
	refJSON, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("store: encode reference: %w", err)
	}
	propJSON, err := json.Marshal(prop)
	if err != nil {
		return fmt.Errorf("store: encode propagation: %w", err)
	}
	eventIDs, err := json.Marshal(summary.EventIDs)
	if err != nil {
		return fmt.Errorf("store: encode event ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries
		(id, session_id, narrative, event_ids, reference, propagation, overall_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.SessionID, summary.Narrative,
		string(eventIDs), string(refJSON), string(propJSON), prop.OverallConfidence)
	if err != nil {
		return fmt.Errorf("store: save summary %s: %w", summary.ID, err)
	}
	return nil
}

// Summary returns a stored summary with its evidence reference and
// propagation.
func (s *Store) Summary(ctx context.Context, id string) (evidence.Summary, evidence.Reference, evidence.Propagation, error) {
	var summary evidence.Summary
	var ref evidence.Reference
	var prop evidence.Propagation
	var eventIDs, refJSON, propJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, narrative, event_ids, reference, propagation
		FROM summaries WHERE id = ?`, id).
		Scan(&summary.ID, &summary.SessionID, &summary.Narrative, &eventIDs, &refJSON, &propJSON)
	if err == sql.ErrNoRows {
		return summary, ref, prop, fmt.Errorf("store: summary %s not found", id)
	}
	if err != nil {
		return summary, ref, prop, fmt.Errorf("store: load summary %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(eventIDs), &summary.EventIDs); err != nil {
		return summary, ref, prop, fmt.Errorf("store: decode event ids: %w", err)
	}
	if err := json.Unmarshal([]byte(refJSON), &ref); err != nil {
		return summary, ref, prop, fmt.Errorf("store: decode reference: %w", err)
	}
	if err := json.Unmarshal([]byte(propJSON), &prop); err != nil {
		return summary, ref, prop, fmt.Errorf("store: decode propagation: %w", err)
	}
	return summary, ref, prop, nil
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
