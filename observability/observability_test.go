package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestFieldConstructors(t *testing.T) {
	err := errors.New("boom")
	tests := []struct {
		field Field
		key   string
		value interface{}
	}{
		{String("engine", "tesseract"), "engine", "tesseract"},
		{Int("attempts", 3), "attempts", 3},
		{Int64("bytes", 1 << 20), "bytes", int64(1 << 20)},
		{Float64("confidence", 0.85), "confidence", 0.85},
		{Error("error", err), "error", err},
	}
	for _, tt := range tests {
		if tt.field.Key() != tt.key {
			t.Fatalf("key = %q, want %q", tt.field.Key(), tt.key)
		}
		if tt.field.Value() != tt.value {
			t.Fatalf("value for %q = %v, want %v", tt.key, tt.field.Value(), tt.value)
		}
	}
}

func TestNopLoggerWithReturnsNop(t *testing.T) {
	var logger Logger = NopLogger{}
	derived := logger.With(String("frame", "f1"))
	if _, ok := derived.(NopLogger); !ok {
		t.Fatalf("With() on NopLogger returned %T", derived)
	}
	// None of these may panic.
	derived.Debug("d")
	derived.Info("i")
	derived.Warn("w")
	derived.Error("e", Error("error", errors.New("boom")))
}

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "recognize")
	if ctx2 != ctx {
		t.Fatalf("nop tracer must return the caller's context")
	}
	span.SetTag("engine", "tesseract")
	span.SetError(nil)
	span.Finish()
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.IncCounter(MetricFallbackCount, map[string]string{"engine": "tesseract"})
	m.ObserveDuration(MetricRecognizeTime, nil, 10*time.Millisecond)
}

func TestLogrusLoggerCarriesFields(t *testing.T) {
	underlying := logrus.New()
	hook := &captureHook{}
	underlying.AddHook(hook)
	underlying.SetOutput(nopWriter{})

	logger := NewLogrusLogger(underlying).With(String("component", "coordinator"))
	logger.Info("fallback engaged", Int("attempts", 2))

	if len(hook.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(hook.entries))
	}
	entry := hook.entries[0]
	if entry.Message != "fallback engaged" {
		t.Fatalf("unexpected message %q", entry.Message)
	}
	if entry.Data["component"] != "coordinator" || entry.Data["attempts"] != 2 {
		t.Fatalf("fields not carried: %v", entry.Data)
	}
}

type captureHook struct{ entries []*logrus.Entry }

func (h *captureHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *captureHook) Fire(e *logrus.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
