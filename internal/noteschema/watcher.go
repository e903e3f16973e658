package noteschema

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of filesystem events an editor save
// produces into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the registry whenever the user schema file changes on disk.
// It blocks until ctx is cancelled. Registries without a user path have
// nothing to watch and return immediately.
//
// The parent directory is watched rather than the file itself: most editors
// save by writing a temp file and renaming it over the original, which would
// drop a watch on the file. A reload that fails to parse keeps the previous
// schema set active.
func (r *Registry) Watch(ctx context.Context, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if r.userPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create schema watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(r.userPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	base := filepath.Base(r.userPath)

	log.Debug("watching schema registry", zap.String("path", r.userPath))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := r.Reload(); err != nil {
					log.Warn("schema reload failed, keeping previous set",
						zap.String("path", r.userPath),
						zap.Error(err))
					return
				}
				log.Info("note schemas reloaded", zap.String("path", r.userPath))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("schema watcher error", zap.Error(err))
		}
	}
}
