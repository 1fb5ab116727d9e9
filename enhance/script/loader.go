package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/wudi/screenkit/observability"
)

// LoadDir compiles every .js file in the plugin directory. A script that
// fails to compile is skipped with a log line; one broken plugin must not
// block the rest.
func LoadDir(dir string, logger observability.Logger) ([]*Plugin, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}
	var plugins []*Plugin
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		p, err := Load(path)
		if err != nil {
			logger.Warn("skipping script plugin",
				observability.String("path", path), observability.Error("error", err))
			continue
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Watch hot-reloads script plugins when their files change on disk.
// Reload failures keep the previous compiled program so a bad edit never
// takes a working plugin offline.
func Watch(ctx context.Context, plugins []*Plugin, logger observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	byPath := make(map[string]*Plugin, len(plugins))
	for _, p := range plugins {
		byPath[p.Path()] = p
		if err := watcher.Add(p.Path()); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", p.Path(), err)
		}
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				p, ok := byPath[ev.Name]
				if !ok {
					continue
				}
				if err := p.Reload(); err != nil {
					logger.Warn("plugin reload failed, keeping previous version",
						observability.String("path", ev.Name), observability.Error("error", err))
					continue
				}
				logger.Info("plugin reloaded", observability.String("path", ev.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("plugin watcher error", observability.Error("error", err))
			}
		}
	}()
	return nil
}
