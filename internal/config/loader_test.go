// internal/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGlobal(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
daemon:
  log_level: debug
  listen_port: 9999
  data_dir: ` + dir + `
logging:
  format: text
tailer:
  interval_ms: 250
  checkpoint_mode: file
profiles:
  - name: Caster
    log_file: /logs/eqlog_Caster_P1999.txt
    trigger_group_ids: [healing]
active_profile: Caster
categories:
  - name: Raid
    timer_overlay: Raid Timers
overlays:
  - name: Raid Timers
    sort_method: label
webhooks:
  - id: discord
    url: https://discord.example/api/webhooks/1
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal(configPath)
	if err != nil {
		t.Fatalf("LoadGlobal failed: %v", err)
	}

	if cfg.Daemon.LogLevel != "debug" {
		t.Errorf("expected log_level debug, got %s", cfg.Daemon.LogLevel)
	}
	if cfg.Daemon.ListenPort != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Daemon.ListenPort)
	}
	if cfg.Tailer.IntervalMS != 250 || cfg.Tailer.SignatureBytes != 32 {
		t.Errorf("unexpected tailer config: %+v", cfg.Tailer)
	}
	if cfg.Tailer.CheckpointDir != filepath.Join(dir, "checkpoints") {
		t.Errorf("checkpoint dir = %s", cfg.Tailer.CheckpointDir)
	}
	if cfg.Daemon.TriggersFile != filepath.Join(dir, "triggers.yaml") {
		t.Errorf("triggers file = %s", cfg.Daemon.TriggersFile)
	}
	if p := cfg.Profile("Caster"); p == nil || p.TriggerGroupIDs[0] != "healing" {
		t.Errorf("profile not loaded: %+v", p)
	}

	raid := cfg.Category("Raid")
	if raid == nil || raid.TimerOverlay != "Raid Timers" || raid.TextOverlay != DefaultCategory {
		t.Errorf("unexpected Raid category: %+v", raid)
	}
	if cfg.Category(DefaultCategory) == nil {
		t.Error("expected default category to be added")
	}
	if o := cfg.Overlay("Raid Timers", OverlayTimer); o == nil || o.SortMethod != SortLabel {
		t.Errorf("unexpected overlay: %+v", o)
	}
	if o := cfg.Overlay(DefaultCategory, OverlayText); o == nil || o.SortMethod != SortOrder {
		t.Errorf("expected default text overlay, got %+v", o)
	}

	wh := cfg.Webhook("discord")
	if wh == nil || wh.Method != "POST" || wh.ContentType != "application/json" || wh.AuthType != AuthNone {
		t.Errorf("unexpected webhook defaults: %+v", wh)
	}

	if err := ValidateGlobal(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadGlobal_Missing(t *testing.T) {
	_, err := LoadGlobal(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestDefaultGlobal(t *testing.T) {
	cfg := DefaultGlobal()
	if cfg.Tailer.CheckpointMode != CheckpointMemory {
		t.Errorf("checkpoint mode = %s", cfg.Tailer.CheckpointMode)
	}
	if cfg.History.RetentionDays != 30 || cfg.History.CleanupSchedule == "" {
		t.Errorf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.Speech.Command == "" || cfg.Sound.Command == "" {
		t.Error("expected speech and sound commands")
	}
	if err := ValidateGlobal(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

const triggersYAML = `
groups:
  - id: healing
    name: Healing
    enabled: true
    triggers:
      - name: Complete Heal
        search_text: "{S} begins to cast Complete Heal"
        timer_type: countdown
        timer_name: "CH {S}"
        duration: 10
        ending:
          notify: true
          threshold: 3
      - name: Complete Heal
        search_text: "You begin casting Complete Heal"
    groups:
      - name: Nested
        triggers:
          - id: fixed
            name: Mez
            search_text: "{S} has been mesmerized"
            timer_type: repeating
            duration: 24
            timer_start_behavior: restart_current
            restart_on_matching_name: true
`

func TestLoadTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	if err := os.WriteFile(path, []byte(triggersYAML), 0644); err != nil {
		t.Fatal(err)
	}

	tf, err := LoadTriggers(path)
	if err != nil {
		t.Fatalf("LoadTriggers failed: %v", err)
	}

	var names, ids []string
	var depth []int
	tf.Walk(func(path []*Group, tr *Trigger) {
		names = append(names, tr.Name)
		ids = append(ids, tr.ID)
		depth = append(depth, len(path))
	})

	if strings.Join(names, ",") != "Mez,Complete Heal,Complete Heal" {
		t.Errorf("walk order = %v", names)
	}
	if depth[0] != 2 || depth[1] != 1 {
		t.Errorf("depths = %v", depth)
	}
	if ids[0] != "fixed" {
		t.Errorf("explicit id overwritten: %s", ids[0])
	}
	if ids[1] == "" || ids[1] == ids[2] {
		t.Errorf("expected distinct generated ids, got %q and %q", ids[1], ids[2])
	}
	if tf.Groups[0].Groups[0].ID == "" {
		t.Error("expected generated group id")
	}

	ch := tf.Groups[0].Triggers[0]
	if ch.StartBehavior != StartNew || ch.Ending.Threshold != 3 {
		t.Errorf("unexpected trigger: %+v", ch)
	}
	if tf.Groups[0].Triggers[1].TimerType != TimerNone {
		t.Errorf("timer type default = %s", tf.Groups[0].Triggers[1].TimerType)
	}

	again, err := LoadTriggers(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Groups[0].Triggers[1].ID != ids[1] {
		t.Error("generated ids should be stable across loads")
	}
}

func TestSaveTriggers_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "triggers.yaml")
	if err := os.WriteFile(src, []byte(triggersYAML), 0644); err != nil {
		t.Fatal(err)
	}
	tf, err := LoadTriggers(src)
	if err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "out", "triggers.yaml")
	if err := SaveTriggers(dst, tf); err != nil {
		t.Fatalf("SaveTriggers failed: %v", err)
	}
	back, err := LoadTriggers(dst)
	if err != nil {
		t.Fatal(err)
	}
	if back.Groups[0].Triggers[0].ID != tf.Groups[0].Triggers[0].ID {
		t.Error("ids should survive a save")
	}
}

func validTrigger() Trigger {
	return Trigger{
		ID:         "t1",
		Name:       "Complete Heal",
		SearchText: "{S} begins to cast Complete Heal",
		TimerType:  TimerCountdown,
	}
}

func TestValidateTrigger_Valid(t *testing.T) {
	tr := validTrigger()
	if err := ValidateTrigger(&tr); err != nil {
		t.Fatalf("expected valid trigger, got error: %v", err)
	}
}

func TestValidateTrigger_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Trigger)
		want   string
	}{
		{"missing name", func(tr *Trigger) { tr.Name = "" }, "trigger name is required"},
		{"missing search", func(tr *Trigger) { tr.SearchText = "" }, "search_text is required"},
		{"bad timer type", func(tr *Trigger) { tr.TimerType = "hourglass" }, "invalid timer_type"},
		{"bad start behavior", func(tr *Trigger) { tr.StartBehavior = "maybe" }, "invalid timer_start_behavior"},
		{"empty ender", func(tr *Trigger) { tr.EndEarly = []Ender{{}} }, "end_early[0]"},
		{"empty variable", func(tr *Trigger) { tr.Variables = []Variable{{Name: "x"}} }, "variables[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrigger()
			tt.modify(&tr)
			err := ValidateTrigger(&tr)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateTriggerWithGlobal_References(t *testing.T) {
	cfg := DefaultGlobal()

	tr := validTrigger()
	tr.Category = "Nope"
	if err := ValidateTriggerWithGlobal(&tr, cfg); err == nil || !strings.Contains(err.Error(), "unknown category") {
		t.Errorf("expected unknown category error, got %v", err)
	}

	tr = validTrigger()
	tr.Webhook.ID = "missing"
	if err := ValidateTriggerWithGlobal(&tr, cfg); err == nil || !strings.Contains(err.Error(), "unknown webhook") {
		t.Errorf("expected unknown webhook error, got %v", err)
	}
}

func TestValidateGlobal_Errors(t *testing.T) {
	cfg := DefaultGlobal()
	cfg.Tailer.CheckpointMode = "tape"
	cfg.Webhooks = []Webhook{
		{ID: "a", URL: "not a url", AuthType: AuthNone},
		{ID: "a", URL: "https://x.example", AuthType: AuthCustomHeader},
	}
	cfg.Profiles = []Profile{{Name: "Caster"}}
	cfg.ActiveProfile = "Warrior"
	cfg.Categories = append(cfg.Categories, Category{Name: "Raid", TimerOverlay: "Ghost", TextOverlay: DefaultCategory})

	err := ValidateGlobal(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{
		"checkpoint_mode",
		"invalid url",
		"duplicate webhook id",
		"auth_header is required",
		"log_file is required",
		"active_profile",
		"unknown timer overlay",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("errors missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_TreeAndProfiles(t *testing.T) {
	tf := &TriggerFile{Groups: []Group{{
		ID:   "g1",
		Name: "Group",
		Triggers: []Trigger{
			validTrigger(),
			validTrigger(),
		},
	}}}
	cfg := DefaultGlobal()
	cfg.Profiles = []Profile{{Name: "Caster", LogFile: "/logs/x.txt", TriggerGroupIDs: []string{"g1", "g9"}}}

	err := Validate(cfg, tf)
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), `duplicate id "t1"`) {
		t.Errorf("expected duplicate id error, got %v", err)
	}
	if !strings.Contains(err.Error(), `unknown trigger group "g9"`) {
		t.Errorf("expected unknown group error, got %v", err)
	}
	if strings.Contains(err.Error(), `"g1"`) {
		t.Errorf("g1 exists and should not be reported: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/logs/eqlog.txt"); got != filepath.Join(home, "logs", "eqlog.txt") {
		t.Errorf("ExpandHome = %s", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
}
