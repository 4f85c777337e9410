package policy

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchForReload watches the directory containing the engine's policy
// document and calls Reload on every write event, logging (but not
// propagating) reload failures — a bad edit must not crash the process,
// it simply leaves the prior configuration in place until the document is
// fixed. The returned watcher should be closed by the caller at shutdown.
func (e *Engine) WatchForReload(logger *slog.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(e.configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(e.configPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := e.Reload(); err != nil {
					logger.Error("policy reload failed, keeping prior configuration", "error", err)
					continue
				}
				logger.Info("policy configuration reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("policy watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
