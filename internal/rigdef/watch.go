package rigdef

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls fn with the changed files each time one or more of paths is
// written, created, renamed or removed. Events within debounce of each other
// are coalesced into one call. Parent directories are watched rather than the
// files, so editors that save by rename are seen. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, paths []string, debounce time.Duration, log *zap.Logger, fn func(changed []string)) error {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		wanted[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	pending := make(map[string]bool)
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !wanted[name] || event.Op&interesting == 0 {
				continue
			}
			log.Debug("file changed", zap.String("path", name), zap.Stringer("op", event.Op))
			pending[name] = true
			fire = time.After(debounce)

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			fn(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
