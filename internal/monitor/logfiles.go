//go:build !darwin

// internal/monitor/logfiles.go
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LogWatcher reports activity on a fixed set of log files by watching their
// directories with inotify/kqueue.
type LogWatcher struct {
	files   fileSet
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewLogWatcher creates a watcher for paths.
func NewLogWatcher(paths []string, logger *slog.Logger) (*LogWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWatcher{files: newFileSet(paths), logger: logger}, nil
}

// Start adds the directory watches and delivers events from a background
// goroutine until ctx is done or Stop is called. Directories that do not
// exist are skipped with a warning.
func (w *LogWatcher) Start(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("log watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	watched := 0
	for _, dir := range w.files.dirs() {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch log directory", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 && len(w.files) > 0 {
		watcher.Close()
		return fmt.Errorf("none of the log directories could be watched")
	}

	w.watcher = watcher
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, watcher, events, w.done)

	w.logger.Info("log watcher started", "files", len(w.files))
	return nil
}

func (w *LogWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, events chan<- Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, events)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("log watcher error", "error", err)
		}
	}
}

func (w *LogWatcher) handleEvent(ev fsnotify.Event, events chan<- Event) {
	var eventType string
	switch {
	case ev.Op&fsnotify.Create != 0:
		eventType = EventCreated
	case ev.Op&fsnotify.Write != 0:
		eventType = EventModified
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		eventType = EventRemoved
	default:
		return
	}
	if !w.files.contains(ev.Name) {
		return
	}
	send(events, Event{Type: eventType, Path: Clean(ev.Name), Timestamp: time.Now()})
}

// Stop closes the watcher and waits for the delivery goroutine.
func (w *LogWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	err := w.watcher.Close()
	<-w.done
	return err
}
