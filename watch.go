package quietfocus

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of fsnotify events an editor's
// save produces into a single reload.
const watchDebounce = 500 * time.Millisecond

// ConfigWatcher reloads the persisted configuration into a Store when
// the file changes on disk, so edits made outside the daemon take
// effect without a restart.
type ConfigWatcher struct {
	path    string
	store   *Store
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  chan struct{}
}

// WatchConfig starts watching path and applying changes to store.
// The containing directory is watched rather than the file itself, so
// atomic rename-replace saves are seen too.
func WatchConfig(path string, store *Store, logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &ConfigWatcher{
		path:    path,
		store:   store,
		logger:  logger,
		watcher: fw,
		cancel:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *ConfigWatcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(ev) {
				continue
			}
			// Debounce: editors fire several events per save.
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "err", err)
		case <-w.cancel:
			return
		}
	}
}

func (w *ConfigWatcher) matches(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.EqualFold(filepath.Clean(ev.Name), filepath.Clean(w.path))
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "err", err)
		return
	}
	if err := w.store.Replace(cfg); err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "err", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
}

// Close stops watching. Pending debounced reloads are dropped.
func (w *ConfigWatcher) Close() error {
	close(w.cancel)
	return w.watcher.Close()
}
