// internal/config/types.go
package config

// Global configuration loaded from config.yaml
type Global struct {
	Daemon        DaemonConfig  `yaml:"daemon"`
	Logging       LoggingConfig `yaml:"logging"`
	Tailer        TailerConfig  `yaml:"tailer"`
	History       HistoryConfig `yaml:"history"`
	Speech        CommandConfig `yaml:"speech"`
	Sound         CommandConfig `yaml:"sound"`
	Profiles      []Profile     `yaml:"profiles"`
	ActiveProfile string        `yaml:"active_profile"`
	AutoActivate  bool          `yaml:"auto_activate_profiles"`
	Categories    []Category    `yaml:"categories"`
	Overlays      []Overlay     `yaml:"overlays"`
	Webhooks      []Webhook     `yaml:"webhooks"`
}

type DaemonConfig struct {
	LogLevel      string `yaml:"log_level"`
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
	LogPath       string `yaml:"log_path"`
	DataDir       string `yaml:"data_dir"`
	TriggersFile  string `yaml:"triggers_file"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// Checkpoint modes for TailerConfig.CheckpointMode.
const (
	CheckpointMemory = "memory"
	CheckpointFile   = "file"
	CheckpointSQLite = "sqlite"
)

type TailerConfig struct {
	IntervalMS       int      `yaml:"interval_ms"`
	SignatureBytes   int      `yaml:"signature_bytes"`
	CheckpointMode   string   `yaml:"checkpoint_mode"`
	CheckpointDir    string   `yaml:"checkpoint_dir"`
	RotationSuffixes []string `yaml:"rotation_suffixes"`
	ScanRotated      bool     `yaml:"scan_rotated"`
}

type HistoryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"`
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"` // cron, with seconds field
}

// CommandConfig names an external program; the text or file path is
// appended after Args.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Profile binds a character name to its log file and the trigger groups
// enabled while it is active.
type Profile struct {
	Name            string   `yaml:"name"`
	LogFile         string   `yaml:"log_file"`
	TriggerGroupIDs []string `yaml:"trigger_group_ids"`
}

// Category routes a trigger's timers and texts to overlays.
type Category struct {
	Name           string `yaml:"name"`
	TimerOverlay   string `yaml:"timer_overlay"`
	TextOverlay    string `yaml:"text_overlay"`
	TimerFontColor string `yaml:"timer_font_color,omitempty"`
	TimerBarColor  string `yaml:"timer_bar_color,omitempty"`
	TextFontColor  string `yaml:"text_font_color,omitempty"`
}

// Overlay kinds.
const (
	OverlayTimer = "timer"
	OverlayText  = "text"
)

// Overlay sort methods.
const (
	SortTimeRemaining = "time_remaining"
	SortLabel         = "label"
	SortOrder         = "order"
)

type Overlay struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	SortMethod string `yaml:"sort_method"`
}

// Webhook auth types.
const (
	AuthNone         = "none"
	AuthBearer       = "bearer"
	AuthAPIKey       = "api_key"
	AuthCustomHeader = "custom_header"
)

type Webhook struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	URL           string            `yaml:"url"`
	Method        string            `yaml:"method"`
	ContentType   string            `yaml:"content_type"`
	AuthType      string            `yaml:"auth_type"`
	AuthHeader    string            `yaml:"auth_header,omitempty"`
	AuthValue     string            `yaml:"auth_value,omitempty"`
	CustomHeaders map[string]string `yaml:"custom_headers,omitempty"`
}

// TriggerFile is the trigger tree loaded from triggers.yaml.
type TriggerFile struct {
	Groups []Group `yaml:"groups"`
}

// Group is a folder of triggers and nested groups.
type Group struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Comments string    `yaml:"comments,omitempty"`
	Enabled  bool      `yaml:"enabled"`
	Groups   []Group   `yaml:"groups,omitempty"`
	Triggers []Trigger `yaml:"triggers,omitempty"`
}

// Timer types.
const (
	TimerNone      = "none"
	TimerCountdown = "countdown"
	TimerCountUp   = "countup"
	TimerRepeating = "repeating"
)

// Timer start behaviors.
const (
	StartNew       = "start_new"
	RestartCurrent = "restart_current"
	DoNothing      = "do_nothing"
)

// Trigger is one pattern and the reactions it drives.
type Trigger struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Comments   string `yaml:"comments,omitempty"`
	Enabled    bool   `yaml:"enabled"`
	SearchText string `yaml:"search_text"`
	UseRegex   bool   `yaml:"use_regex"`
	Category   string `yaml:"category,omitempty"`

	TimerType             string `yaml:"timer_type"`
	TimerName             string `yaml:"timer_name,omitempty"`
	Duration              int    `yaml:"duration"` // seconds
	StartBehavior         string `yaml:"timer_start_behavior"`
	RestartOnMatchingName bool   `yaml:"restart_on_matching_name,omitempty"`
	RestartRegardless     bool   `yaml:"restart_regardless,omitempty"`

	CounterDuration int `yaml:"counter_duration"` // seconds without a match before the counter resets

	Actions Actions      `yaml:"actions"`
	Ending  Notification `yaml:"ending"`
	Ended   Notification `yaml:"ended"`

	EndEarly  []Ender     `yaml:"end_early,omitempty"`
	Variables []Variable  `yaml:"variables,omitempty"`
	Webhook   WebhookCall `yaml:"webhook,omitempty"`
}

// Actions run when a trigger matches, or at a timer's ending/ended point.
type Actions struct {
	UseText         bool   `yaml:"use_text"`
	DisplayText     string `yaml:"display_text,omitempty"`
	Speak           bool   `yaml:"speak"`
	SpeechText      string `yaml:"speech_text,omitempty"`
	InterruptSpeech bool   `yaml:"interrupt_speech"`
	PlaySound       bool   `yaml:"play_sound"`
	SoundFile       string `yaml:"sound_file,omitempty"`
}

// Notification configures a timer's ending or ended reaction. Threshold is
// only used for ending.
type Notification struct {
	Notify    bool    `yaml:"notify"`
	Threshold int     `yaml:"threshold,omitempty"` // seconds remaining
	Actions   Actions `yaml:"actions"`
}

// Ender force-ends a trigger's timers when it matches.
type Ender struct {
	SearchText string `yaml:"search_text"`
	UseRegex   bool   `yaml:"use_regex"`
}

// Variable captures a value from a matching line for later {var:name}
// substitution.
type Variable struct {
	Name   string `yaml:"name"`
	Search string `yaml:"search"`
	Value  string `yaml:"value"`
}

// WebhookCall references a configured webhook by ID.
type WebhookCall struct {
	ID      string `yaml:"id,omitempty"`
	Message string `yaml:"message,omitempty"`
}
