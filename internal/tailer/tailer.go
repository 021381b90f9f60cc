// internal/tailer/tailer.go
package tailer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

var (
	// ErrRunning is returned by Start on a tailer that is already running.
	ErrRunning = errors.New("tailer already running")
	// ErrRotationAmbiguous means the previous file could not be located by
	// signature after a rotation; its unread tail is lost.
	ErrRotationAmbiguous = errors.New("rotated file not found by signature")
)

// Options configures a Tailer. Zero values take the defaults noted.
type Options struct {
	Interval         time.Duration // 100ms
	SignatureBytes   int           // 32
	Store            CheckpointStore
	RotationSuffixes []string // [".1"]
	ScanRotated      bool
	LockTimeout      time.Duration // Interval
	Logger           *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 100 * time.Millisecond
	}
	if o.SignatureBytes <= 0 {
		o.SignatureBytes = DefaultSignatureBytes
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if len(o.RotationSuffixes) == 0 {
		o.RotationSuffixes = []string{".1"}
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = o.Interval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Tailer follows one file and delivers each complete appended line once,
// across truncation and rename-and-recreate rotation.
type Tailer struct {
	path   string
	opts   Options
	logger *slog.Logger

	pollMu  sync.Mutex
	onLine  func(string)
	watched bool
	id      FileID
	// skipExisting makes the first watch start at end of file.
	skipExisting bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a tailer for path. Nothing is read until Start.
func New(path string, opts Options) *Tailer {
	opts.applyDefaults()
	return &Tailer{
		path:   path,
		opts:   opts,
		logger: logging.WithFile(opts.Logger, path),
	}
}

// Path returns the followed path.
func (t *Tailer) Path() string { return t.path }

// Start watches the file from its current end and calls onLine from a single
// background goroutine for every line appended afterwards.
func (t *Tailer) Start(ctx context.Context, onLine func(string)) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.done != nil {
		return ErrRunning
	}

	t.open(onLine)

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)

	t.logger.Info("tailing started", "interval", t.opts.Interval)
	return nil
}

// Stop ends the session and waits for the poll goroutine to exit. No line
// is delivered after Stop returns.
func (t *Tailer) Stop() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.done == nil {
		return nil
	}
	t.cancel()
	<-t.done
	t.done = nil

	t.pollMu.Lock()
	t.onLine = nil
	t.pollMu.Unlock()

	t.logger.Info("tailing stopped")
	return nil
}

func (t *Tailer) open(onLine func(string)) {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	t.onLine = onLine
	t.skipExisting = true
	t.update()
}

// Offset returns the checkpointed read offset.
func (t *Tailer) Offset() int64 {
	cp, _, _ := t.opts.Store.Load(t.path)
	return cp.Offset
}

// Poll runs one identify-and-read cycle and returns the number of lines
// delivered.
func (t *Tailer) Poll() int {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	if t.onLine == nil {
		return 0
	}
	n := t.update()
	if t.watched {
		n += t.read()
	}
	return n
}

func (t *Tailer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	wake := t.watchDir(ctx)
	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		if ctx.Err() != nil {
			return
		}
		t.Poll()
	}
}

// watchDir wakes the poll loop when the directory changes, so a recreated
// file is picked up without waiting for the next tick. A nil channel is
// returned when notifications are unavailable.
func (t *Tailer) watchDir(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Debug("directory notifications unavailable, polling only", "error", err)
		return nil
	}
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		t.logger.Debug("could not watch log directory, polling only", "error", err)
		return nil
	}

	base := filepath.Base(t.path)
	wake := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.Debug("directory watcher error", "error", err)
			}
		}
	}()
	return wake
}

// update reconciles the watched identity with what is on disk. Lines
// recovered from a rotated file are delivered here.
func (t *Tailer) update() int {
	fi, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.skipExisting = false
			if t.watched {
				t.logger.Info("file removed, unwatching")
				return t.unwatch()
			}
			return 0
		}
		t.logger.Warn("could not stat file", "error", err)
		return 0
	}
	if !fi.Mode().IsRegular() {
		return 0
	}

	if !t.watched {
		t.watch(fi)
		return 0
	}

	id, err := fileID(t.path, fi, t.opts.SignatureBytes)
	if err != nil {
		t.logger.Warn("could not identify file, unwatching", "error", err)
		return t.unwatch()
	}
	if id != t.id {
		t.logger.Info("reloading file due to rotation", "old_id", t.id.String(), "new_id", id.String())
		n := t.unwatch()
		t.watch(fi)
		return n
	}
	return 0
}

func (t *Tailer) watch(fi os.FileInfo) {
	id, err := fileID(t.path, fi, t.opts.SignatureBytes)
	if err != nil {
		if errors.Is(err, ErrFileTooSmall) {
			t.logger.Debug("file too small to identify yet", "size", fi.Size())
		} else {
			t.logger.Warn("could not identify file", "error", err)
		}
		return
	}

	sig, full, err := Signature(t.path, t.opts.SignatureBytes)
	if err != nil {
		t.logger.Warn("could not read file signature", "error", err)
		return
	}
	if !full {
		sig = ""
	}

	cp := Checkpoint{Signature: sig, ModTime: fi.ModTime().Unix()}
	resumed := false
	if t.opts.Store.Persistent() {
		stored, ok, err := t.opts.Store.Load(t.path)
		if err != nil {
			t.logger.Warn("could not load checkpoint", "error", err)
		} else if ok && sig != "" && stored.Signature == sig && stored.Offset <= fi.Size() {
			cp = stored
			resumed = true
		}
	}
	if !resumed && t.skipExisting {
		cp.Offset = fi.Size()
	}
	t.skipExisting = false

	if err := t.opts.Store.Save(t.path, cp); err != nil {
		t.logger.Warn("could not save checkpoint", "error", err)
	}
	t.watched = true
	t.id = id
	t.logger.Debug("watching file", "id", id.String(), "offset", cp.Offset, "resumed", resumed)
}

// unwatch drains the rotated predecessor, if it can be found, and drops the
// checkpoint.
func (t *Tailer) unwatch() int {
	n := 0
	cp, ok, err := t.opts.Store.Load(t.path)
	if err != nil {
		t.logger.Warn("could not load checkpoint", "error", err)
	} else if ok {
		n = t.backfill(cp)
	}
	if err := t.opts.Store.Delete(t.path); err != nil {
		t.logger.Warn("could not delete checkpoint", "error", err)
	}
	t.watched = false
	t.id = FileID{}
	return n
}

func (t *Tailer) backfill(cp Checkpoint) int {
	if cp.Signature == "" {
		t.logger.Warn("no signature recorded, skipping rotated tail", "error", ErrRotationAmbiguous)
		return 0
	}
	for _, cand := range t.rotatedCandidates() {
		sig, full, err := Signature(cand, t.opts.SignatureBytes)
		if err != nil || !full || sig != cp.Signature {
			continue
		}
		n, _, err := t.emitFrom(cand, cp.Offset, true)
		if err != nil {
			t.logger.Warn("reading rotated file failed", "rotated", cand, "error", err)
		}
		t.logger.Info("read tail of rotated file", "rotated", cand, "lines", n)
		return n
	}
	t.logger.Warn("rotated file not found", "error", ErrRotationAmbiguous, "suffixes", t.opts.RotationSuffixes)
	return 0
}

func (t *Tailer) rotatedCandidates() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, sfx := range t.opts.RotationSuffixes {
		add(t.path + sfx)
	}
	if t.opts.ScanRotated {
		base := filepath.Base(t.path)
		entries, err := os.ReadDir(filepath.Dir(t.path))
		if err != nil {
			t.logger.Warn("could not scan for rotated files", "error", err)
			return out
		}
		for _, e := range entries {
			if e.IsDir() || e.Name() == base || !strings.Contains(e.Name(), base) {
				continue
			}
			add(filepath.Join(filepath.Dir(t.path), e.Name()))
		}
	}
	return out
}

// read delivers complete lines past the checkpoint under a shared lock.
func (t *Tailer) read() int {
	cp, ok, err := t.opts.Store.Load(t.path)
	if err != nil {
		t.logger.Warn("could not load checkpoint", "error", err)
		return 0
	}
	if !ok {
		return 0
	}

	fi, err := os.Stat(t.path)
	if err != nil {
		return 0
	}
	truncated := false
	if cp.Offset > fi.Size() {
		t.logger.Warn("file smaller than checkpoint, possible data loss", "offset", cp.Offset, "size", fi.Size())
		if t.opts.Store.Persistent() {
			return t.unwatch()
		}
		cp.Offset = 0
		truncated = true
	}

	lock := flock.New(t.path, flock.SetFlag(os.O_RDONLY))
	lctx, cancel := context.WithTimeout(context.Background(), t.opts.LockTimeout)
	locked, err := lock.TryRLockContext(lctx, 5*time.Millisecond)
	cancel()
	if err != nil || !locked {
		t.logger.Debug("shared lock not acquired, retrying next poll", "error", err)
		return 0
	}
	defer lock.Unlock()

	n, consumed, err := t.emitFrom(t.path, cp.Offset, false)
	if err != nil {
		t.logger.Warn("read failed", "error", err)
	}

	changed := consumed > 0 || truncated
	if cp.Signature == "" && fi.Size() >= int64(t.opts.SignatureBytes) {
		if sig, full, err := Signature(t.path, t.opts.SignatureBytes); err == nil && full {
			cp.Signature = sig
			changed = true
		}
	}
	if changed {
		cp.Offset += consumed
		cp.ModTime = fi.ModTime().Unix()
		if err := t.opts.Store.Save(t.path, cp); err != nil {
			t.logger.Warn("could not save checkpoint", "error", err)
		}
	}
	return n
}

// emitFrom delivers lines of path starting at offset. A trailing fragment
// without a newline is left unread unless final is set.
func (t *Tailer) emitFrom(path string, offset int64, final bool) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, err
	}

	r := bufio.NewReader(f)
	lines := 0
	var consumed int64
	for {
		b, err := r.ReadBytes('\n')
		complete := len(b) > 0 && b[len(b)-1] == '\n'
		if complete || (final && len(b) > 0) {
			consumed += int64(len(b))
			if t.deliver(b) {
				lines++
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, consumed, nil
			}
			return lines, consumed, err
		}
	}
}

func (t *Tailer) deliver(b []byte) bool {
	line := strings.ToValidUTF8(strings.TrimRight(string(b), "\r\n"), "�")
	if strings.TrimSpace(line) == "" {
		return false
	}
	t.onLine(line)
	return true
}
