// internal/daemon/daemon.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/effects"
	"github.com/colebrumley/logtrigger/internal/engine"
	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/colebrumley/logtrigger/internal/monitor"
	"github.com/colebrumley/logtrigger/internal/security"
	"github.com/colebrumley/logtrigger/internal/state"
	"github.com/colebrumley/logtrigger/internal/tailer"
	"github.com/fsnotify/fsnotify"
)

// ErrUnknownProfile is returned when switching to a profile that is not
// configured.
var ErrUnknownProfile = errors.New("unknown profile")

// Daemon wires the tailer, the trigger engine and the effect sinks together
// and serves the HTTP API.
type Daemon struct {
	configPath   string
	triggersPath string
	config       *config.Global
	triggers     *config.TriggerFile
	logger       *slog.Logger
	logWriter    *logging.RotatingWriter

	engine   *engine.Engine
	overlays *effects.Overlays
	speaker  *effects.Speaker
	player   *effects.Player
	webhooks *effects.WebhookSender

	stateDB     *state.DB
	checkpoints tailer.CheckpointStore
	scheduler   *monitor.Scheduler
	profiles    *monitor.LogWatcher
	httpServer  *http.Server
	startTime   time.Time

	// runCtx outlives any single request; tailers started from the API
	// run under it.
	runCtx context.Context

	mu   sync.RWMutex
	tail *tailer.Tailer
}

// New creates a new daemon instance. An empty triggersPath means the
// triggers_file from the config.
func New(configPath, triggersPath string) *Daemon {
	return &Daemon{
		configPath:   configPath,
		triggersPath: triggersPath,
	}
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()
	d.runCtx = ctx

	if err := d.loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logWriter, err := d.initLogWriter()
	if err != nil {
		d.logger = logging.NewLogger(d.config.Logging.Format, d.config.Daemon.LogLevel, os.Stdout)
		d.logger.Warn("failed to initialize rotating log writer, using stdout", "error", err)
	} else {
		d.logWriter = logWriter
		d.logger = logging.NewLogger(d.config.Logging.Format, d.config.Daemon.LogLevel, logWriter)
	}

	d.logger.Info("starting daemon", "config", d.configPath, "triggers", d.triggersPath)

	// Webhook credentials live in the config file.
	if err := security.ValidateSecretFile(d.configPath); err != nil {
		d.logger.Warn("config file has unsafe permissions", "error", err, "path", d.configPath)
	}
	if err := os.MkdirAll(d.config.Daemon.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := security.ValidateDirectoryPermissions(d.config.Daemon.DataDir); err != nil {
		d.logger.Warn("data directory has unsafe permissions", "error", err, "path", d.config.Daemon.DataDir)
	}

	if err := d.initStateDB(); err != nil {
		d.logger.Warn("failed to initialize state database, history will not be recorded", "error", err)
	}
	if err := d.initCheckpoints(); err != nil {
		d.logger.Warn("failed to initialize checkpoint store, tailing from end of file", "error", err)
		d.checkpoints = tailer.NewMemoryStore()
	}

	if err := d.loadTriggers(); err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}

	d.initEngine(ctx)

	if name := d.config.ActiveProfile; name != "" {
		if err := d.switchProfile(name); err != nil {
			d.logger.Error("could not activate profile", "profile", name, "error", err)
		}
	} else {
		d.logger.Warn("no active profile configured, waiting for a profile switch")
	}

	go engine.NewClock(d.engine).Run(ctx)

	if err := d.initScheduler(); err != nil {
		d.logger.Warn("scheduled jobs disabled", "error", err)
	}

	go d.startHTTPServer(ctx)
	go d.startHotReload(ctx)
	if d.config.AutoActivate {
		d.startProfileMonitor(ctx)
	}

	d.logger.Info("daemon started",
		"triggers_loaded", len(d.engine.Triggers()),
		"profile", d.engine.Profile())

	<-ctx.Done()
	d.logger.Info("daemon stopping")
	return d.shutdown()
}

func (d *Daemon) loadConfig() error {
	cfg, err := config.LoadGlobal(d.configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateGlobal(cfg); err != nil {
		return err
	}
	d.config = cfg
	if d.triggersPath == "" {
		d.triggersPath = cfg.Daemon.TriggersFile
	}
	return nil
}

// initLogWriter creates a rotating log writer.
func (d *Daemon) initLogWriter() (*logging.RotatingWriter, error) {
	logPath := d.config.Daemon.LogPath
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return logging.NewRotatingWriter(logPath, 50*1024*1024) // 50MB
}

// initStateDB opens the history database when history is enabled or
// checkpoints are kept in SQLite.
func (d *Daemon) initStateDB() error {
	if !d.config.History.Enabled && d.config.Tailer.CheckpointMode != config.CheckpointSQLite {
		return nil
	}
	db, err := state.Open(d.config.History.Path)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	d.stateDB = db

	go d.cleanupHistory()
	return nil
}

func (d *Daemon) cleanupHistory() {
	if d.stateDB == nil {
		return
	}
	deleted, err := d.stateDB.Cleanup(d.config.History.RetentionDays)
	if err != nil {
		d.logger.Warn("history cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old trigger log records", "deleted", deleted)
	}
}

func (d *Daemon) initCheckpoints() error {
	switch d.config.Tailer.CheckpointMode {
	case config.CheckpointFile:
		store, err := tailer.NewFileStore(d.config.Tailer.CheckpointDir)
		if err != nil {
			return err
		}
		d.checkpoints = store
	case config.CheckpointSQLite:
		if d.stateDB == nil {
			return errors.New("sqlite checkpoints need the state database")
		}
		d.checkpoints = d.stateDB.Checkpoints()
	default:
		d.checkpoints = tailer.NewMemoryStore()
	}
	return nil
}

// loadTriggers reads and validates the trigger tree. A missing file starts
// the daemon with no triggers; invalid triggers are reported and loaded
// anyway, since each one fails independently at match time.
func (d *Daemon) loadTriggers() error {
	tf, err := config.LoadTriggers(d.triggersPath)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("triggers file not found, starting with no triggers", "path", d.triggersPath)
		tf = &config.TriggerFile{}
	} else if err != nil {
		return err
	}
	if err := config.Validate(d.config, tf); err != nil {
		d.logger.Warn("trigger validation reported problems", "error", err)
	}
	d.triggers = tf
	return nil
}

func (d *Daemon) initEngine(ctx context.Context) {
	d.overlays = effects.NewOverlays(d.config.Overlays, nil)
	d.speaker = effects.NewSpeaker(ctx, d.config.Speech, d.logger)
	d.player = effects.NewPlayer(ctx, d.config.Sound, d.logger)
	d.webhooks = effects.NewWebhookSender(ctx, d.config.Webhooks, d.logger)

	opts := engine.Options{
		Effects: &effects.Dispatcher{
			Overlays: d.overlays,
			Speaker:  d.speaker,
			Player:   d.player,
			Webhooks: d.webhooks,
			Logger:   d.logger,
		},
		Categories: d.config.Categories,
		Logger:     d.logger,
	}
	if d.stateDB != nil && d.config.History.Enabled {
		opts.History = d.stateDB
	}
	d.engine = engine.New(opts)
	d.engine.Load(d.triggers)
}

func (d *Daemon) initScheduler() error {
	d.scheduler = monitor.NewScheduler(d.logger)
	if d.stateDB != nil {
		if err := d.scheduler.Add("history-cleanup", d.config.History.CleanupSchedule, d.cleanupHistory); err != nil {
			return err
		}
	}
	d.scheduler.Start()
	return nil
}

func (d *Daemon) tailerOptions() tailer.Options {
	return tailer.Options{
		Interval:         time.Duration(d.config.Tailer.IntervalMS) * time.Millisecond,
		SignatureBytes:   d.config.Tailer.SignatureBytes,
		Store:            d.checkpoints,
		RotationSuffixes: d.config.Tailer.RotationSuffixes,
		ScanRotated:      d.config.Tailer.ScanRotated,
		Logger:           d.logger,
	}
}

// switchProfile activates the named profile: the engine's tree and {c}
// name follow it and the tailer moves to its log file. The previous tailer
// is stopped before the next one starts.
func (d *Daemon) switchProfile(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.config.Profile(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}

	if d.tail != nil {
		if err := d.tail.Stop(); err != nil {
			d.logger.Warn("stopping tailer failed", "path", d.tail.Path(), "error", err)
		}
		d.tail = nil
	}

	d.engine.SetProfile(*p)

	t := tailer.New(p.LogFile, d.tailerOptions())
	if err := t.Start(d.runCtx, d.engine.OnLine); err != nil {
		return fmt.Errorf("starting tailer: %w", err)
	}
	d.tail = t
	return nil
}

// startProfileMonitor watches every profile's log file and switches to the
// profile whose log was created or written, which is the character that
// just logged in.
func (d *Daemon) startProfileMonitor(ctx context.Context) {
	byPath := make(map[string]string, len(d.config.Profiles))
	paths := make([]string, 0, len(d.config.Profiles))
	for _, p := range d.config.Profiles {
		byPath[monitor.Clean(p.LogFile)] = p.Name
		paths = append(paths, p.LogFile)
	}

	w, err := monitor.NewLogWatcher(paths, d.logger)
	if err != nil {
		d.logger.Error("could not create profile monitor", "error", err)
		return
	}
	events := make(chan monitor.Event, 100)
	if err := w.Start(ctx, events); err != nil {
		d.logger.Error("could not start profile monitor", "error", err)
		return
	}
	d.profiles = w
	d.logger.Info("profile auto-activation enabled", "profiles", len(paths))

	go func() {
		for {
			select {
			case ev := <-events:
				if ev.Type == monitor.EventRemoved {
					continue
				}
				name, ok := byPath[ev.Path]
				if !ok || name == d.engine.Profile() {
					continue
				}
				d.logger.Info("log activity detected, switching profile", "profile", name, "event", ev.Type)
				if err := d.switchProfile(name); err != nil {
					d.logger.Error("profile switch failed", "profile", name, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// startHotReload watches the triggers file and reloads the tree when it
// changes. Live timers of triggers that survive the reload keep running.
func (d *Daemon) startHotReload(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Error("could not create triggers watcher", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(d.triggersPath)
	if err := watcher.Add(dir); err != nil {
		d.logger.Error("could not watch triggers directory", "error", err, "dir", dir)
		return
	}

	d.logger.Info("hot-reload watcher started", "file", d.triggersPath)

	// Debounce: wait 1 second after last event before reloading
	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)
	target := filepath.Clean(d.triggersPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(1*time.Second, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case <-debounceCh:
			d.logger.Info("reloading triggers (hot-reload)")
			d.reloadTriggers()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("triggers watcher error", "error", err)

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// reloadTriggers replaces the engine's tree with the file's current
// content. A file that fails to parse leaves the running tree in place.
func (d *Daemon) reloadTriggers() {
	tf, err := config.LoadTriggers(d.triggersPath)
	if err != nil {
		d.logger.Error("failed to reload triggers, keeping current set", "error", err)
		return
	}
	if err := config.Validate(d.config, tf); err != nil {
		d.logger.Warn("trigger validation reported problems", "error", err)
	}

	d.mu.Lock()
	d.triggers = tf
	d.mu.Unlock()

	d.engine.Load(tf)
}

func (d *Daemon) shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tail != nil {
		d.tail.Stop()
		d.tail = nil
	}
	if d.profiles != nil {
		d.profiles.Stop()
	}
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.speaker != nil {
		d.speaker.Stop()
	}
	if d.webhooks != nil {
		d.webhooks.Wait()
	}
	if d.player != nil {
		d.player.Wait()
	}

	if d.stateDB != nil {
		d.stateDB.Close()
	}
	if d.logWriter != nil {
		d.logWriter.Close()
	}
	return nil
}
