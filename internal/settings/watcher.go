package settings

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads the manager when the profile file changes on disk, so
// hand edits take effect without a restart. It watches the containing
// directory because editors typically replace the file via rename.
type Watcher struct {
	mgr  *Manager
	file string
	log  zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events from one save.
	debounceMu sync.Mutex
	timer      *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the manager's profile file.
func NewWatcher(mgr *Manager, log zerolog.Logger) *Watcher {
	return &Watcher{
		mgr:  mgr,
		file: filepath.Base(mgr.path),
		log:  log.With().Str("component", "settings-watcher").Logger(),
		stop: make(chan struct{}),
	}
}

// Start begins watching. The profile's directory must exist.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.mgr.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	w.log.Info().Str("path", w.mgr.path).Msg("watching settings file")
	go w.loop()
	return nil
}

// Stop ends watching and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != w.file {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleReload debounces reloads by 500ms. This coalesces the event burst
// from one save and ensures the file is fully written before reading.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.timer != nil {
		w.timer.Reset(debounceDelay)
		return
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		w.timer = nil
		w.debounceMu.Unlock()

		if err := w.mgr.Reload(); err != nil {
			w.log.Warn().Err(err).Msg("failed to reload settings after file change")
		}
	})
}
