package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gonkalabs/shardguard/internal/sanitize"
)

// WatchRules reloads the configured rules file whenever it changes and hands
// the rebuilt sanitizer to onChange. A file that fails to load is logged and
// ignored; the previous sanitizer stays in effect. The directory is watched
// rather than the file so that editors that replace the file on save are
// followed. Watching stops when ctx is done.
func (c *Cfg) WatchRules(ctx context.Context, onChange func(*sanitize.Sanitizer)) error {
	path := c.Sanitize.RulesFile
	if path == "" {
		return fmt.Errorf("rules: no rules file configured")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("rules: watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				san, err := c.NewSanitizer()
				if err != nil {
					slog.Warn("rules: reload failed, keeping previous rules", "file", abs, "err", err)
					continue
				}
				slog.Info("rules: reloaded", "file", abs, "detectors", len(san.Detectors()))
				onChange(san)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("rules: watcher error", "err", err)
			}
		}
	}()
	return nil
}
