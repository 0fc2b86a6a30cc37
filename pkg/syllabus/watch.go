package syllabus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jajabor-ai/tutor/pkg/logging"
)

// Watch reloads the policy at path whenever the file changes, until ctx is done.
// The directory is watched rather than the file so editors that replace the
// file on save are still picked up. A policy that fails to load is logged and
// the previous one stays active.
func (f *Filter) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				p, err := LoadPolicy(path)
				if err != nil {
					logger.Warn("syllabus policy reload failed", "path", path, "err", err)
					continue
				}
				f.SetPolicy(p)
				logger.Info("syllabus policy reloaded", "path", path, "allow", len(p.Allow), "block", len(p.Block))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("syllabus policy watcher error", "err", err)
			}
		}
	}()
	return nil
}
