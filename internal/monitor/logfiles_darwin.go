//go:build darwin

// internal/monitor/logfiles_darwin.go
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsevents"
)

// LogWatcher reports activity on a fixed set of log files using macOS
// FSEvents. FSEvents watches path strings, so directories that do not exist
// yet are picked up when they appear.
type LogWatcher struct {
	files   fileSet
	logger  *slog.Logger
	stream  *fsevents.EventStream
	mu      sync.Mutex
	running bool
	done    chan struct{}
	stop    chan struct{}
}

// NewLogWatcher creates a watcher for paths.
func NewLogWatcher(paths []string, logger *slog.Logger) (*LogWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWatcher{files: newFileSet(paths), logger: logger}, nil
}

// Start opens the event stream and delivers events from a background
// goroutine until ctx is done or Stop is called.
func (w *LogWatcher) Start(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("log watcher already running")
	}

	stream := &fsevents.EventStream{
		Paths:   w.files.dirs(),
		Latency: 0,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.NoDefer,
	}
	stream.Start()

	w.stream = stream
	w.running = true
	w.done = make(chan struct{})
	w.stop = make(chan struct{})
	go w.loop(ctx, stream, events)

	w.logger.Info("fsevents stream started", "paths", stream.Paths)
	return nil
}

func (w *LogWatcher) loop(ctx context.Context, stream *fsevents.EventStream, events chan<- Event) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case batch, ok := <-stream.Events:
			if !ok {
				return
			}
			for _, ev := range batch {
				w.handleFSEvent(ev, events)
			}
		}
	}
}

func (w *LogWatcher) handleFSEvent(ev fsevents.Event, events chan<- Event) {
	// These flags mean the kernel or userspace dropped events.
	if ev.Flags&fsevents.MustScanSubDirs != 0 ||
		ev.Flags&fsevents.KernelDropped != 0 ||
		ev.Flags&fsevents.UserDropped != 0 {
		w.logger.Warn("fsevents queue overflow, events may have been lost", "path", ev.Path, "flags", ev.Flags)
		return
	}
	if ev.Flags&fsevents.ItemIsDir != 0 {
		return
	}

	var eventType string
	switch {
	case ev.Flags&fsevents.ItemRemoved != 0:
		eventType = EventRemoved
	case ev.Flags&fsevents.ItemCreated != 0:
		// Includes rename destinations (typically ItemCreated | ItemRenamed).
		eventType = EventCreated
	case ev.Flags&fsevents.ItemModified != 0:
		eventType = EventModified
	case ev.Flags&fsevents.ItemRenamed != 0:
		// Bare ItemRenamed is the source side of a rename.
		eventType = EventRemoved
	default:
		return
	}

	if !w.files.contains(ev.Path) {
		return
	}
	send(events, Event{Type: eventType, Path: Clean(ev.Path), Timestamp: time.Now()})
}

// Stop closes the stream and waits for the delivery goroutine.
func (w *LogWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stop)
	<-w.done
	w.stream.Stop()
	return nil
}
