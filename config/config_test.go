package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Recognition.MinimumPrimaryConfidence != 0.4 {
		t.Fatalf("unexpected default threshold %v", cfg.Recognition.MinimumPrimaryConfidence)
	}
	if cfg.Recognition.MaxRetryAttempts != 2 {
		t.Fatalf("unexpected default retries %d", cfg.Recognition.MaxRetryAttempts)
	}
	if cfg.Plugins.MaxExecutionTime.Std() != 30*time.Second {
		t.Fatalf("unexpected plugin budget %v", cfg.Plugins.MaxExecutionTime)
	}
	if cfg.Plugins.MaxMemoryBytes != 100<<20 {
		t.Fatalf("unexpected memory budget %d", cfg.Plugins.MaxMemoryBytes)
	}
	if cfg.Events.SnapshotTTL.Std() != 10*time.Minute {
		t.Fatalf("unexpected snapshot ttl %v", cfg.Events.SnapshotTTL)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
databasePath: /tmp/observe.db
logLevel: debug
recognition:
  mode: hybrid
  languages: [eng, deu]
  minimumPrimaryConfidence: 0.55
plugins:
  directory: ./plugins
  maxExecutionTime: 5s
events:
  snapshotTtl: 2m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/observe.db" || cfg.LogLevel != "debug" {
		t.Fatalf("top-level keys not applied: %+v", cfg)
	}
	if cfg.Recognition.Mode != "hybrid" || cfg.Recognition.MinimumPrimaryConfidence != 0.55 {
		t.Fatalf("recognition keys not applied: %+v", cfg.Recognition)
	}
	if len(cfg.Recognition.Languages) != 2 || cfg.Recognition.Languages[1] != "deu" {
		t.Fatalf("languages not applied: %v", cfg.Recognition.Languages)
	}
	if cfg.Plugins.MaxExecutionTime.Std() != 5*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.Plugins.MaxExecutionTime)
	}
	if cfg.Events.SnapshotTTL.Std() != 2*time.Minute {
		t.Fatalf("snapshot ttl not applied: %v", cfg.Events.SnapshotTTL)
	}
	// Untouched keys keep defaults.
	if cfg.Recognition.MaxRetryAttempts != 2 {
		t.Fatalf("absent key lost its default: %d", cfg.Recognition.MaxRetryAttempts)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, "recognition:\n  mode: sometimes\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	path := writeConfig(t, "recognition:\n  minimumPrimaryConfidence: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for out-of-range threshold")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
