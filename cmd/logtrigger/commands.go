// cmd/logtrigger/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/colebrumley/logtrigger/internal/pattern"
	"github.com/colebrumley/logtrigger/internal/state"
	"github.com/colebrumley/logtrigger/internal/tailer"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Global, error) {
	cfg, err := config.LoadGlobal(configPath)
	if err != nil {
		return nil, err
	}
	if triggersPath == "" {
		triggersPath = cfg.Daemon.TriggersFile
	}
	return cfg, nil
}

func starterTriggers() *config.TriggerFile {
	return &config.TriggerFile{Groups: []config.Group{{
		ID:      "examples",
		Name:    "Examples",
		Enabled: true,
		Triggers: []config.Trigger{
			{
				ID: "mez", Name: "Mesmerize", Enabled: true,
				SearchText: "{S} has been mesmerized",
				TimerType:  config.TimerCountdown, TimerName: "Mez {S}", Duration: 24,
				StartBehavior: config.StartNew,
				Ending:        config.Notification{Notify: true, Threshold: 5, Actions: config.Actions{Speak: true, SpeechText: "mez {S} breaking"}},
				EndEarly:      []config.Ender{{SearchText: "{S} has been awakened"}},
			},
			{
				ID: "tell", Name: "Tell", Enabled: true,
				SearchText: "{S} tells you, '{N}'",
				TimerType:  config.TimerNone, StartBehavior: config.StartNew,
				Actions: config.Actions{UseText: true, DisplayText: "Tell from {S}"},
			},
		},
	}}}
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and triggers file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := config.DefaultGlobal()

			if err := os.MkdirAll(cfg.Daemon.DataDir, 0700); err != nil {
				return fmt.Errorf("creating directory %s: %w", cfg.Daemon.DataDir, err)
			}
			fmt.Fprintf(out, "Created %s\n", cfg.Daemon.DataDir)

			if _, err := os.Stat(configPath); err == nil && !force {
				fmt.Fprintf(out, "Keeping existing %s\n", configPath)
			} else {
				cfg.History.Enabled = true
				if err := config.SaveGlobal(configPath, cfg); err != nil {
					return err
				}
				fmt.Fprintf(out, "Created %s\n", configPath)
			}

			if triggersPath == "" {
				triggersPath = cfg.Daemon.TriggersFile
			}
			if _, err := os.Stat(triggersPath); err == nil && !force {
				fmt.Fprintf(out, "Keeping existing %s\n", triggersPath)
			} else {
				if err := config.SaveTriggers(triggersPath, starterTriggers()); err != nil {
					return err
				}
				fmt.Fprintf(out, "Created %s\n", triggersPath)
			}

			fmt.Fprintln(out, "\nInitialization complete. Add a profile with your log file to", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config and triggers files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tf, err := config.LoadTriggers(triggersPath)
			if err != nil {
				return err
			}

			count := 0
			tf.Walk(func(_ []*config.Group, t *config.Trigger) {
				count++
				if _, err := pattern.Compile(t.SearchText, pattern.Options{UseRegex: t.UseRegex}); err != nil {
					fmt.Fprintf(out, "warning: trigger %q matches literally: %v\n", t.Name, err)
				}
				for _, e := range t.EndEarly {
					if _, err := pattern.Compile(e.SearchText, pattern.Options{UseRegex: e.UseRegex}); err != nil {
						fmt.Fprintf(out, "warning: trigger %q end-early text matches literally: %v\n", t.Name, err)
					}
				}
			})

			if err := config.Validate(cfg, tf); err != nil {
				return fmt.Errorf("validation failed:\n%w", err)
			}
			fmt.Fprintf(out, "Validated %d triggers\n", count)
			return nil
		},
	}
}

func newTestPatternCmd() *cobra.Command {
	var (
		useRegex  bool
		tmpl      string
		character string
	)
	cmd := &cobra.Command{
		Use:   "test-pattern <search-text> <line>",
		Short: "Test a trigger search text against a log line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p, err := pattern.Compile(args[0], pattern.Options{UseRegex: useRegex})
			if err != nil {
				fmt.Fprintf(out, "warning: %v (matching literally)\n", err)
			}
			fmt.Fprintf(out, "expression: %s\n", p.String())

			m := p.Match(args[1])
			if !m.Matched() {
				fmt.Fprintln(out, "no match")
				return nil
			}
			fmt.Fprintf(out, "matched:    %q\n", m.Text())
			for _, name := range p.Names() {
				v, _ := m.Named(name)
				fmt.Fprintf(out, "  {%s} = %q\n", name, v)
			}
			if v, ok := m.Named(pattern.TimestampGroup); ok {
				if secs, ok := pattern.ParseDuration(v); ok {
					fmt.Fprintf(out, "  {TS} = %q (%s)\n", v, time.Duration(secs)*time.Second)
				}
			}
			if tmpl != "" {
				fmt.Fprintf(out, "rendered:   %s\n", p.Execute(tmpl, m, character))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useRegex, "regex", false, "treat the search text as a regular expression")
	cmd.Flags().StringVar(&tmpl, "template", "", "display text to fill from the captures")
	cmd.Flags().StringVar(&character, "character", "", "character name for {C}")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		trigger string
		profile string
		limit   int
		since   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent trigger matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.History.Path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no history database at %s (is history.enabled set?)", cfg.History.Path)
			}
			db, err := state.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			filter := state.HistoryFilter{Trigger: trigger, Profile: profile, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := db.GetHistory(filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No matches found")
				return nil
			}

			fmt.Fprintf(out, "%-16s %-20s %-6s %s\n", "WHEN", "TRIGGER", "KIND", "LABEL")
			fmt.Fprintln(out, strings.Repeat("-", 70))
			for _, r := range records {
				name := r.Trigger
				if len(name) > 20 {
					name = name[:17] + "..."
				}
				fmt.Fprintf(out, "%-16s %-20s %-6s %s\n", humanize.Time(r.MatchedAt), name, r.Kind, r.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "filter by trigger name or ID")
	cmd.Flags().StringVar(&profile, "profile", "", "filter by profile")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this (e.g. 1h)")
	return cmd
}

func newTailCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "tail <file>",
		Short: "Follow a log file across rotations and print new lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := logging.NewLogger("text", "warn", cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			t := tailer.New(args[0], tailer.Options{Interval: interval, Logger: logger})
			if err := t.Start(ctx, func(line string) { fmt.Fprintln(out, line) }); err != nil {
				return err
			}
			<-ctx.Done()
			if err := t.Stop(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "stopped at offset %s\n", humanize.Bytes(uint64(max(t.Offset(), 0))))
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "poll interval")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url := fmt.Sprintf("http://%s:%d/health", cfg.Daemon.ListenAddress, cfg.Daemon.ListenPort)
			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var health map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("decoding health: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Daemon is running")
			for _, k := range []string{"uptime", "profile", "tailing", "offset", "triggers_loaded", "triggers_enabled", "live_timers"} {
				if v, ok := health[k]; ok {
					fmt.Fprintf(out, "  %-17s %v\n", k+":", v)
				}
			}
			return nil
		},
	}
}
