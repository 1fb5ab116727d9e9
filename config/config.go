// Package config loads the YAML configuration used by the observe CLI.
// In-process embedders tune components through constructor options
// instead; this package only maps a file onto those options.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5s" parse. Plain
// integers are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Recognition configures the engine coordinator.
type Recognition struct {
	Mode                     string   `yaml:"mode"`
	Languages                []string `yaml:"languages"`
	MinimumPrimaryConfidence float64  `yaml:"minimumPrimaryConfidence"`
	MaxRetryAttempts         int      `yaml:"maxRetryAttempts"`
	AttemptTimeout           Duration `yaml:"attemptTimeout"`
	MaxImageDimension        int      `yaml:"maxImageDimension"`
	VisionEndpoint           string   `yaml:"visionEndpoint"`
	VisionModel              string   `yaml:"visionModel"`
	VisionAPIKeyEnv          string   `yaml:"visionApiKeyEnv"`
}

// Plugins configures the enhancement registry and script loader.
type Plugins struct {
	Directory        string   `yaml:"directory"`
	WatchForChanges  bool     `yaml:"watchForChanges"`
	MaxExecutionTime Duration `yaml:"maxExecutionTime"`
	MaxMemoryBytes   int64    `yaml:"maxMemoryBytes"`
	Sandbox          bool     `yaml:"sandbox"`
}

// Events configures the detector.
type Events struct {
	SnapshotTTL   Duration `yaml:"snapshotTtl"`
	SameRegionIoU float64  `yaml:"sameRegionIou"`
}

// Evidence configures the linker.
type Evidence struct {
	MinCorrelationScore float64  `yaml:"minCorrelationScore"`
	DecayHalfLife       Duration `yaml:"decayHalfLife"`
}

// Config is the full observe configuration document.
type Config struct {
	DatabasePath string      `yaml:"databasePath"`
	LogLevel     string      `yaml:"logLevel"`
	MetricsAddr  string      `yaml:"metricsAddr"`
	Recognition  Recognition `yaml:"recognition"`
	Plugins      Plugins     `yaml:"plugins"`
	Events       Events      `yaml:"events"`
	Evidence     Evidence    `yaml:"evidence"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		DatabasePath: "screenkit.db",
		LogLevel:     "info",
		Recognition: Recognition{
			Mode:                     "fallback",
			Languages:                []string{"eng"},
			MinimumPrimaryConfidence: 0.4,
			MaxRetryAttempts:         2,
			AttemptTimeout:           Duration(15 * time.Second),
			MaxImageDimension:        2048,
		},
		Plugins: Plugins{
			MaxExecutionTime: Duration(30 * time.Second),
			MaxMemoryBytes:   100 << 20,
			Sandbox:          true,
		},
		Events: Events{
			SnapshotTTL:   Duration(10 * time.Minute),
			SameRegionIoU: 0.6,
		},
		Evidence: Evidence{
			MinCorrelationScore: 0.3,
			DecayHalfLife:       Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Recognition.Mode {
	case "fallback", "hybrid":
	default:
		return fmt.Errorf("config: unknown recognition mode %q", c.Recognition.Mode)
	}
	if c.Recognition.MinimumPrimaryConfidence < 0 || c.Recognition.MinimumPrimaryConfidence > 1 {
		return fmt.Errorf("config: minimumPrimaryConfidence must be in [0,1]")
	}
	if c.Plugins.MaxExecutionTime <= 0 {
		return fmt.Errorf("config: maxExecutionTime must be positive")
	}
	return nil
}
