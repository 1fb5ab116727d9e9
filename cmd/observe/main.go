package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/config"
	"github.com/wudi/screenkit/coordinator"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/enhance/plugins"
	"github.com/wudi/screenkit/enhance/script"
	"github.com/wudi/screenkit/event"
	"github.com/wudi/screenkit/evidence"
	"github.com/wudi/screenkit/observability"
	"github.com/wudi/screenkit/pipeline"
	"github.com/wudi/screenkit/recognition"
	"github.com/wudi/screenkit/recognition/tesseract"
	"github.com/wudi/screenkit/recognition/visionllm"
	"github.com/wudi/screenkit/report"
	"github.com/wudi/screenkit/store"
)

type options struct {
	framesDir  string
	configPath string
	reportPath string
	htmlReport bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "observe: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "observe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/observe [flags] <frames-dir>\n")
		flag.PrintDefaults()
	}
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	reportPath := flag.String("report", "", "Write an activity report to this path")
	htmlReport := flag.Bool("html", false, "Render the report as HTML instead of markdown")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing frames directory")
	}
	opts.framesDir = flag.Arg(0)
	opts.configPath = *configPath
	opts.reportPath = *reportPath
	opts.htmlReport = *htmlReport
	return opts, nil
}

func run(opts options) error {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	metrics := observability.NopMetrics()
	if cfg.MetricsAddr != "" {
		metrics = observability.NewPromMetrics(nil)
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	coord := buildCoordinator(cfg, logger, metrics)
	registry, err := buildRegistry(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer registry.Cleanup()

	detector := event.NewDetector(
		event.WithSnapshotTTL(cfg.Events.SnapshotTTL.Std()),
		event.WithSameRegionIoU(cfg.Events.SameRegionIoU),
		event.WithLogger(logger),
		event.WithMetrics(metrics),
	)

	pipe := pipeline.New(coord, registry, detector,
		pipeline.WithStore(db),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	)

	frames, err := loadFrames(opts.framesDir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no frames found in %s", opts.framesDir)
	}
	logger.Info("replaying frames", observability.Int("count", len(frames)))

	var allEvents []event.DetectedEvent
	var frameMeta []evidence.FrameMeta
	for _, frame := range frames {
		res, err := pipe.Process(context.Background(), frame)
		if err != nil {
			logger.Warn("frame failed",
				observability.String("frame", frame.ID), observability.Error("error", err))
			continue
		}
		allEvents = append(allEvents, res.Events...)
		frameMeta = append(frameMeta, evidence.FrameMeta{
			ID:            frame.ID,
			Timestamp:     frame.CapturedAt,
			AppIdentifier: frame.Context.AppIdentifier,
			WindowTitle:   frame.Context.WindowTitle,
			Confidence:    res.Recognition.Confidence,
		})
	}
	printEvents(allEvents)

	if opts.reportPath != "" {
		if err := writeReport(opts, cfg, db, frames, allEvents, frameMeta, logger, metrics); err != nil {
			return err
		}
	}
	return nil
}

func buildLogger(level string) (observability.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(os.Stderr)
	return observability.NewLogrusLogger(l), nil
}

func buildCoordinator(cfg config.Config, logger observability.Logger, metrics observability.Metrics) *coordinator.Coordinator {
	primary := tesseract.New(tesseract.WithLanguages(cfg.Recognition.Languages...))

	var secondary recognition.Engine
	if cfg.Recognition.VisionEndpoint != "" {
		apiKey := os.Getenv(cfg.Recognition.VisionAPIKeyEnv)
		secondary = visionllm.New(cfg.Recognition.VisionEndpoint, apiKey, cfg.Recognition.VisionModel,
			visionllm.WithLanguages(cfg.Recognition.Languages...))
	} else {
		// No vision backend configured; a sparse-text tesseract profile
		// still gives the coordinator a second opinion to fall back on.
		secondary = tesseract.New(
			tesseract.WithLanguages(cfg.Recognition.Languages...),
			tesseract.WithVariable("tessedit_pageseg_mode", "11"),
		)
	}

	mode := coordinator.ModeFallback
	if cfg.Recognition.Mode == "hybrid" {
		mode = coordinator.ModeHybrid
	}
	return coordinator.New(primary, secondary,
		coordinator.WithMode(mode),
		coordinator.WithMinimumPrimaryConfidence(cfg.Recognition.MinimumPrimaryConfidence),
		coordinator.WithMaxRetryAttempts(cfg.Recognition.MaxRetryAttempts),
		coordinator.WithAttemptTimeout(cfg.Recognition.AttemptTimeout.Std()),
		coordinator.WithMaxImageDim(cfg.Recognition.MaxImageDimension),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(metrics),
	)
}

func buildRegistry(ctx context.Context, cfg config.Config, logger observability.Logger) (*enhance.Registry, error) {
	pluginCfg := enhance.DefaultConfig()
	pluginCfg.PluginDirectory = cfg.Plugins.Directory
	pluginCfg.SandboxEnabled = cfg.Plugins.Sandbox
	if cfg.Plugins.MaxExecutionTime > 0 {
		pluginCfg.MaxExecutionTime = cfg.Plugins.MaxExecutionTime.Std()
	}
	if cfg.Plugins.MaxMemoryBytes > 0 {
		pluginCfg.MaxMemoryUsage = cfg.Plugins.MaxMemoryBytes
	}

	registry := enhance.NewRegistry(
		enhance.WithDefaultConfig(pluginCfg),
		enhance.WithLogger(logger),
	)
	builtin := []enhance.Plugin{
		plugins.NewBrowser(),
		plugins.NewEditor(),
		plugins.NewTerminal(),
		plugins.NewMail(),
	}
	for _, p := range builtin {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	if cfg.Plugins.Directory != "" {
		scripts, err := script.LoadDir(cfg.Plugins.Directory, logger)
		if err != nil {
			return nil, err
		}
		for _, p := range scripts {
			if err := registry.Register(p); err != nil {
				return nil, err
			}
		}
		if cfg.Plugins.WatchForChanges && len(scripts) > 0 {
			if err := script.Watch(ctx, scripts, logger); err != nil {
				logger.Warn("plugin watch unavailable", observability.Error("error", err))
			}
		}
	}

	for _, err := range registry.Initialize() {
		logger.Warn("plugin initialization failed", observability.Error("error", err))
	}
	return registry, nil
}

// loadFrames reads every image in dir in name order. A sidecar
// <name>.json next to an image supplies its application context.
func loadFrames(dir string) ([]capture.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]capture.Frame, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat frame %s: %w", name, err)
		}
		frame := capture.Frame{
			ID:         strings.TrimSuffix(name, filepath.Ext(name)),
			Image:      data,
			Format:     formatFor(name),
			CapturedAt: info.ModTime(),
		}
		if err := loadContext(dir, name, &frame); err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func loadContext(dir, imageName string, frame *capture.Frame) error {
	sidecar := filepath.Join(dir, strings.TrimSuffix(imageName, filepath.Ext(imageName))+".json")
	data, err := os.ReadFile(sidecar)
	if os.IsNotExist(err) {
		frame.Context = capture.ApplicationContext{
			AppIdentifier: "unknown",
			Timestamp:     frame.CapturedAt,
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read context %s: %w", sidecar, err)
	}
	if err := json.Unmarshal(data, &frame.Context); err != nil {
		return fmt.Errorf("parse context %s: %w", sidecar, err)
	}
	if frame.Context.Timestamp.IsZero() {
		frame.Context.Timestamp = frame.CapturedAt
	}
	return nil
}

func formatFor(name string) capture.ImageFormat {
	if strings.ToLower(filepath.Ext(name)) == ".png" {
		return capture.ImageFormatPNG
	}
	return capture.ImageFormatJPEG
}

func printEvents(events []event.DetectedEvent) {
	if len(events) == 0 {
		fmt.Println("no events detected")
		return
	}
	for _, ev := range events {
		fmt.Printf("%s  %-16s %-8s %s\n",
			ev.Timestamp.Format("15:04:05"), ev.Type,
			ev.Classification.Importance, describe(ev))
	}
}

func describe(ev event.DetectedEvent) string {
	switch ev.Type {
	case event.TypeFieldChange:
		return fmt.Sprintf("%s: %q -> %q", ev.Target, ev.ValueBefore, ev.ValueAfter)
	case event.TypeContentAdded:
		return fmt.Sprintf("added %q", ev.ValueAfter)
	case event.TypeContentRemoved:
		return fmt.Sprintf("removed %q", ev.ValueBefore)
	}
	return ev.Target
}

// writeReport links all detected events under a single replay session
// and renders the evidence report.
func writeReport(opts options, cfg config.Config, db *store.Store, frames []capture.Frame, events []event.DetectedEvent, meta []evidence.FrameMeta, logger observability.Logger, metrics observability.Metrics) error {
	if len(events) == 0 {
		return fmt.Errorf("nothing to report: no events detected")
	}

	session := evidence.Session{
		ID:            uuid.NewString(),
		Start:         frames[0].CapturedAt,
		End:           frames[len(frames)-1].CapturedAt,
		AppIdentifier: frames[0].Context.AppIdentifier,
		WindowTitle:   frames[0].Context.WindowTitle,
	}
	summary := evidence.Summary{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Narrative: fmt.Sprintf("Replay of %d frames from %s.", len(frames), opts.framesDir),
	}
	for _, ev := range events {
		summary.EventIDs = append(summary.EventIDs, ev.ID)
	}

	linker := evidence.NewLinker(
		evidence.WithMinCorrelationScore(cfg.Evidence.MinCorrelationScore),
		evidence.WithDecayHalfLife(cfg.Evidence.DecayHalfLife.Std()),
		evidence.WithLogger(logger),
		evidence.WithMetrics(metrics),
	)
	ref, prop := linker.Link(summary, session, events, meta)
	trace, err := linker.TraceEvidencePath(summary.ID)
	if err != nil {
		return err
	}
	if err := db.SaveSummary(context.Background(), summary, ref, prop); err != nil {
		return err
	}

	inputs := []report.Input{{
		Summary:     summary,
		Session:     session,
		Events:      events,
		Reference:   ref,
		Propagation: prop,
		Trace:       trace,
	}}
	var out []byte
	if opts.htmlReport {
		out, err = report.HTML("Activity report", inputs)
		if err != nil {
			return err
		}
	} else {
		out = []byte(report.Markdown("Activity report", inputs))
	}
	if err := os.WriteFile(opts.reportPath, out, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written", observability.String("path", opts.reportPath))
	return nil
}

func serveMetrics(addr string, logger observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", observability.Error("error", err))
	}
}
