package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and reports each on-disk change on
// the returned channel. The agent reads configuration once at startup and
// never swaps it in place, so a change is only logged: as a warning telling
// the operator to restart, or as an error when the pending file does not
// parse. The watcher goroutine runs until ctx is cancelled.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	slog.Info("config: watching for changes", "path", path)

	changes := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Editors often save via rename, which surfaces as Create
				// once the watch is re-added below.
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if _, err := Load(path); err != nil {
					slog.Error("config: file changed but does not parse", "path", path, "err", err)
				} else {
					slog.Warn("config: file changed, restart to apply", "path", path)
				}
				select {
				case changes <- struct{}{}:
				default:
				}

				// Re-add the file in case an atomic save replaced the inode.
				_ = watcher.Add(path)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config: watcher error", "err", err)
			}
		}
	}()

	return changes, nil
}
