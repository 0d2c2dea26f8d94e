package prefs

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
)

// Watch reloads the store whenever the preferences file changes. The
// settings UI runs in a separate process and writes the file; watching the
// parent directory survives editors that replace rather than rewrite.
// Returns a stop function.
func Watch(s *Store, log *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.Load(); err != nil {
					// Mid-write reads fail transiently; the next event wins.
					log.Debug("preferences reload failed", zap.Error(err))
					continue
				}
				log.Info("preferences reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("preferences watcher error", zap.Error(err))
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
