// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultCategory is used by triggers whose category is unset or unknown.
const DefaultCategory = "Default"

// idNamespace seeds the stable IDs given to groups and triggers that have none.
var idNamespace = uuid.MustParse("6f1c1a4e-3f4b-4d8e-9a57-0c2b1e7d5a10")

// LoadGlobal loads the global configuration from a YAML file
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyGlobalDefaults(&cfg)
	return &cfg, nil
}

// DefaultGlobal returns a configuration with every default applied.
func DefaultGlobal() *Global {
	var cfg Global
	applyGlobalDefaults(&cfg)
	return &cfg
}

// SaveGlobal writes cfg to path as YAML, readable only by the owner since
// it may hold webhook credentials.
func SaveGlobal(path string, cfg *Global) error {
	return writeYAML(path, cfg, 0600)
}

// LoadTriggers loads the trigger tree. Groups and triggers without an ID
// get one derived from their position by name, so IDs stay stable across
// reloads of an unchanged file.
func LoadTriggers(path string) (*TriggerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading triggers file: %w", err)
	}

	var tf TriggerFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing triggers file: %w", err)
	}

	seen := make(map[string]int)
	for i := range tf.Groups {
		prepareGroup(&tf.Groups[i], "", seen)
	}
	return &tf, nil
}

// SaveTriggers writes the trigger tree to path as YAML.
func SaveTriggers(path string, tf *TriggerFile) error {
	return writeYAML(path, tf, 0644)
}

func writeYAML(path string, v any, perm os.FileMode) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func prepareGroup(g *Group, parent string, seen map[string]int) {
	key := stableKey(parent+"/"+g.Name, seen)
	if g.ID == "" {
		g.ID = uuid.NewSHA1(idNamespace, []byte(key)).String()
	}
	for i := range g.Groups {
		prepareGroup(&g.Groups[i], key, seen)
	}
	for i := range g.Triggers {
		t := &g.Triggers[i]
		if t.ID == "" {
			t.ID = uuid.NewSHA1(idNamespace, []byte(stableKey(key+"/"+t.Name, seen))).String()
		}
		applyTriggerDefaults(t)
	}
}

func stableKey(key string, seen map[string]int) string {
	n := seen[key]
	seen[key] = n + 1
	if n == 0 {
		return key
	}
	return fmt.Sprintf("%s#%d", key, n)
}

func applyTriggerDefaults(t *Trigger) {
	if t.TimerType == "" {
		t.TimerType = TimerNone
	}
	if t.StartBehavior == "" {
		t.StartBehavior = StartNew
	}
}

func applyGlobalDefaults(cfg *Global) {
	if cfg.Daemon.LogLevel == "" {
		cfg.Daemon.LogLevel = "info"
	}
	if cfg.Daemon.ListenPort == 0 {
		cfg.Daemon.ListenPort = 9877
	}
	if cfg.Daemon.ListenAddress == "" {
		cfg.Daemon.ListenAddress = "127.0.0.1"
	}
	if cfg.Daemon.DataDir == "" {
		cfg.Daemon.DataDir = "~/.logtrigger"
	}
	cfg.Daemon.DataDir = ExpandHome(cfg.Daemon.DataDir)
	if cfg.Daemon.LogPath == "" {
		cfg.Daemon.LogPath = filepath.Join(cfg.Daemon.DataDir, "logtriggerd.log")
	}
	if cfg.Daemon.TriggersFile == "" {
		cfg.Daemon.TriggersFile = filepath.Join(cfg.Daemon.DataDir, "triggers.yaml")
	}
	cfg.Daemon.LogPath = ExpandHome(cfg.Daemon.LogPath)
	cfg.Daemon.TriggersFile = ExpandHome(cfg.Daemon.TriggersFile)

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Debug {
		cfg.Daemon.LogLevel = "debug"
	}

	if cfg.Tailer.IntervalMS <= 0 {
		cfg.Tailer.IntervalMS = 100
	}
	if cfg.Tailer.SignatureBytes <= 0 {
		cfg.Tailer.SignatureBytes = 32
	}
	if cfg.Tailer.CheckpointMode == "" {
		cfg.Tailer.CheckpointMode = CheckpointMemory
	}
	if cfg.Tailer.CheckpointDir == "" {
		cfg.Tailer.CheckpointDir = filepath.Join(cfg.Daemon.DataDir, "checkpoints")
	}
	cfg.Tailer.CheckpointDir = ExpandHome(cfg.Tailer.CheckpointDir)
	if len(cfg.Tailer.RotationSuffixes) == 0 {
		cfg.Tailer.RotationSuffixes = []string{".1"}
	}

	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Daemon.DataDir, "history.db")
	}
	cfg.History.Path = ExpandHome(cfg.History.Path)
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupSchedule == "" {
		cfg.History.CleanupSchedule = "0 0 4 * * *"
	}

	if cfg.Speech.Command == "" {
		if runtime.GOOS == "darwin" {
			cfg.Speech.Command = "say"
		} else {
			cfg.Speech.Command = "espeak"
		}
	}
	if cfg.Sound.Command == "" {
		if runtime.GOOS == "darwin" {
			cfg.Sound.Command = "afplay"
		} else {
			cfg.Sound.Command = "paplay"
		}
	}

	for i := range cfg.Profiles {
		cfg.Profiles[i].LogFile = ExpandHome(cfg.Profiles[i].LogFile)
	}

	if cfg.Category(DefaultCategory) == nil {
		cfg.Categories = append(cfg.Categories, Category{Name: DefaultCategory})
	}
	for i := range cfg.Categories {
		c := &cfg.Categories[i]
		if c.TimerOverlay == "" {
			c.TimerOverlay = DefaultCategory
		}
		if c.TextOverlay == "" {
			c.TextOverlay = DefaultCategory
		}
	}
	if cfg.Overlay(DefaultCategory, OverlayTimer) == nil {
		cfg.Overlays = append(cfg.Overlays, Overlay{Name: DefaultCategory, Kind: OverlayTimer})
	}
	if cfg.Overlay(DefaultCategory, OverlayText) == nil {
		cfg.Overlays = append(cfg.Overlays, Overlay{Name: DefaultCategory, Kind: OverlayText})
	}
	for i := range cfg.Overlays {
		o := &cfg.Overlays[i]
		if o.Kind == "" {
			o.Kind = OverlayTimer
		}
		if o.SortMethod == "" {
			if o.Kind == OverlayText {
				o.SortMethod = SortOrder
			} else {
				o.SortMethod = SortTimeRemaining
			}
		}
	}

	for i := range cfg.Webhooks {
		wh := &cfg.Webhooks[i]
		if wh.Method == "" {
			wh.Method = "POST"
		}
		wh.Method = strings.ToUpper(wh.Method)
		if wh.ContentType == "" {
			wh.ContentType = "application/json"
		}
		if wh.AuthType == "" {
			wh.AuthType = AuthNone
		}
	}
}

// Profile returns the named profile, or nil.
func (g *Global) Profile(name string) *Profile {
	for i := range g.Profiles {
		if g.Profiles[i].Name == name {
			return &g.Profiles[i]
		}
	}
	return nil
}

// Category returns the named category, or nil.
func (g *Global) Category(name string) *Category {
	for i := range g.Categories {
		if g.Categories[i].Name == name {
			return &g.Categories[i]
		}
	}
	return nil
}

// Overlay returns the overlay with the given name and kind, or nil.
func (g *Global) Overlay(name, kind string) *Overlay {
	for i := range g.Overlays {
		if g.Overlays[i].Name == name && g.Overlays[i].Kind == kind {
			return &g.Overlays[i]
		}
	}
	return nil
}

// Webhook returns the webhook with the given ID, or nil.
func (g *Global) Webhook(id string) *Webhook {
	for i := range g.Webhooks {
		if g.Webhooks[i].ID == id {
			return &g.Webhooks[i]
		}
	}
	return nil
}

// Walk calls fn for every trigger in the tree, depth first, with the chain
// of enclosing groups.
func (tf *TriggerFile) Walk(fn func(path []*Group, t *Trigger)) {
	var walk func(path []*Group, g *Group)
	walk = func(path []*Group, g *Group) {
		path = append(path, g)
		for i := range g.Groups {
			walk(path, &g.Groups[i])
		}
		for i := range g.Triggers {
			fn(path, &g.Triggers[i])
		}
	}
	for i := range tf.Groups {
		walk(nil, &tf.Groups[i])
	}
}

// ExpandHome resolves a leading ~/ against the current user's home.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path[2:])
	}
	return path
}
