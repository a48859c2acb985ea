package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the Store whenever another process replaces or rewrites the
// document. It returns once the watch is established; the watch stops when
// ctx is cancelled. Events caused by the Store's own commits are ignored.
//
// onReload, when non-nil, is called after each reload attempt with the
// result of Reload.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onReload func(changed bool, err error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	// Watch the directory so atomic replacements (rename over the file)
	// keep being observed.
	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go s.watchLoop(ctx, fsw, debounce, onReload)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, debounce time.Duration, onReload func(bool, error)) {
	defer fsw.Close() //nolint:errcheck // Nothing useful to do on close error

	base := filepath.Base(s.path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			changed, err := s.Reload()
			if err != nil {
				s.logger.Warn("registry reload failed", "path", s.path, "error", err)
			}
			if onReload != nil {
				onReload(changed, err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn("registry watcher error", "path", s.path, "error", err)
		}
	}
}
