package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-parses CUE configuration when source files change. Each
// successful reload hands the fresh host configuration to the callback,
// which typically re-registers remotes with a running host.
type Watcher struct {
	parser  *CUEParser
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a configuration watcher around parser.
func NewWatcher(parser *CUEParser, logger zerolog.Logger) *Watcher {
	return &Watcher{
		parser: parser,
		logger: logger.With().Str("component", "config-watcher").Logger(),
	}
}

// Watch starts watching sources for changes. Reloads are debounced;
// parse failures keep the previous configuration in effect.
func (w *Watcher) Watch(ctx context.Context, sources []string, onReload func(*HostConfig) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.watcher = watcher

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("failed to stat source for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(source); err != nil {
				w.logger.Warn().Err(err).Str("path", source).Msg("failed to watch directory")
			}
		} else {
			if err := watcher.Add(source); err != nil {
				w.logger.Warn().Err(err).Str("path", source).Msg("failed to watch file")
			}
		}
	}

	go w.processEvents(ctx, sources, onReload)

	w.logger.Info().Int("sources", len(sources)).Msg("watching configuration sources")

	return nil
}

func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return w.watcher.Add(path)
		}

		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context, sources []string, onReload func(*HostConfig) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if w.watcher != nil {
				_ = w.watcher.Close()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				if strings.HasSuffix(event.Name, ".cue") {
					w.logger.Debug().
						Str("file", event.Name).
						Str("op", event.Op.String()).
						Msg("configuration file changed")

					if reloadTimer != nil {
						reloadTimer.Stop()
					}
					reloadTimer = time.AfterFunc(reloadDelay, func() {
						if err := w.triggerReload(ctx, sources, onReload); err != nil {
							w.logger.Error().Err(err).Msg("failed to reload configuration")
						}
					})
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) triggerReload(ctx context.Context, sources []string, onReload func(*HostConfig) error) error {
	cfg, err := w.parser.Evaluate(ctx, sources)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	if err := onReload(cfg); err != nil {
		return fmt.Errorf("failed to apply reloaded configuration: %w", err)
	}

	w.logger.Info().
		Int("remotes", len(cfg.Remotes)).
		Msg("configuration reloaded")

	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
