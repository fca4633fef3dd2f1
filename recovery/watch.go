package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFile hot-reloads strategy overrides whenever the file changes,
// until the context is canceled. The watch is on the parent directory
// because editors and config mounts replace files instead of writing them
// in place. Reload failures are logged and the previous table stays
// active.
func WatchFile(ctx context.Context, table *Table, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()

		// Coalesce bursts: editors fire several events per save.
		var reload <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reload = time.After(250 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("strategy watcher error", "error", err)
			case <-reload:
				reload = nil
				if err := table.LoadFile(path); err != nil {
					logger.Warn("strategy reload failed, keeping previous table",
						"path", path,
						"error", err)
					continue
				}
				logger.Info("recovery strategies reloaded", "path", path)
			}
		}
	}()

	return nil
}
