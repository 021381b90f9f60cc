// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	validTimerTypes     = []string{TimerNone, TimerCountdown, TimerCountUp, TimerRepeating}
	validStartBehaviors = []string{StartNew, RestartCurrent, DoNothing}
	validCheckpoints    = []string{CheckpointMemory, CheckpointFile, CheckpointSQLite}
	validSortMethods    = []string{SortTimeRemaining, SortLabel, SortOrder}
	validAuthTypes      = []string{AuthNone, AuthBearer, AuthAPIKey, AuthCustomHeader}
)

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateTrigger checks a single trigger on its own.
func ValidateTrigger(t *Trigger) error {
	if t.Name == "" {
		return errors.New("trigger name is required")
	}
	if t.SearchText == "" {
		return fmt.Errorf("trigger %q: search_text is required", t.Name)
	}
	if t.TimerType != "" && !oneOf(t.TimerType, validTimerTypes) {
		return fmt.Errorf("trigger %q: invalid timer_type %q (valid: %v)", t.Name, t.TimerType, validTimerTypes)
	}
	if t.StartBehavior != "" && !oneOf(t.StartBehavior, validStartBehaviors) {
		return fmt.Errorf("trigger %q: invalid timer_start_behavior %q (valid: %v)", t.Name, t.StartBehavior, validStartBehaviors)
	}
	for i, e := range t.EndEarly {
		if e.SearchText == "" {
			return fmt.Errorf("trigger %q: end_early[%d] search_text is required", t.Name, i)
		}
	}
	for i, v := range t.Variables {
		if v.Name == "" || v.Search == "" {
			return fmt.Errorf("trigger %q: variables[%d] needs name and search", t.Name, i)
		}
	}
	return nil
}

// ValidateTriggerWithGlobal also checks the trigger's references into the
// global configuration.
func ValidateTriggerWithGlobal(t *Trigger, cfg *Global) error {
	if err := ValidateTrigger(t); err != nil {
		return err
	}
	if t.Category != "" && cfg.Category(t.Category) == nil {
		return fmt.Errorf("trigger %q: unknown category %q", t.Name, t.Category)
	}
	if t.Webhook.ID != "" && cfg.Webhook(t.Webhook.ID) == nil {
		return fmt.Errorf("trigger %q: unknown webhook %q", t.Name, t.Webhook.ID)
	}
	return nil
}

// ValidateGlobal checks the global configuration on its own.
func ValidateGlobal(cfg *Global) error {
	var errs []error

	if !oneOf(cfg.Tailer.CheckpointMode, validCheckpoints) {
		errs = append(errs, fmt.Errorf("invalid tailer.checkpoint_mode %q (valid: %v)", cfg.Tailer.CheckpointMode, validCheckpoints))
	}

	for _, o := range cfg.Overlays {
		if o.Kind != OverlayTimer && o.Kind != OverlayText {
			errs = append(errs, fmt.Errorf("overlay %q: invalid kind %q", o.Name, o.Kind))
		}
		if !oneOf(o.SortMethod, validSortMethods) {
			errs = append(errs, fmt.Errorf("overlay %q: invalid sort_method %q (valid: %v)", o.Name, o.SortMethod, validSortMethods))
		}
	}

	for _, c := range cfg.Categories {
		if cfg.Overlay(c.TimerOverlay, OverlayTimer) == nil {
			errs = append(errs, fmt.Errorf("category %q: unknown timer overlay %q", c.Name, c.TimerOverlay))
		}
		if cfg.Overlay(c.TextOverlay, OverlayText) == nil {
			errs = append(errs, fmt.Errorf("category %q: unknown text overlay %q", c.Name, c.TextOverlay))
		}
	}

	webhookIDs := make(map[string]bool)
	for _, wh := range cfg.Webhooks {
		if wh.ID == "" {
			errs = append(errs, fmt.Errorf("webhook %q: id is required", wh.Name))
			continue
		}
		if webhookIDs[wh.ID] {
			errs = append(errs, fmt.Errorf("duplicate webhook id %q", wh.ID))
		}
		webhookIDs[wh.ID] = true
		if u, err := url.Parse(wh.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook %q: invalid url", wh.ID))
		}
		if !oneOf(wh.AuthType, validAuthTypes) {
			errs = append(errs, fmt.Errorf("webhook %q: invalid auth_type %q (valid: %v)", wh.ID, wh.AuthType, validAuthTypes))
		}
		if wh.AuthType == AuthCustomHeader && wh.AuthHeader == "" {
			errs = append(errs, fmt.Errorf("webhook %q: auth_header is required for custom_header auth", wh.ID))
		}
	}

	profiles := make(map[string]bool)
	for _, p := range cfg.Profiles {
		if p.Name == "" {
			errs = append(errs, errors.New("profile name is required"))
			continue
		}
		if profiles[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate profile %q", p.Name))
		}
		profiles[p.Name] = true
		if p.LogFile == "" {
			errs = append(errs, fmt.Errorf("profile %q: log_file is required", p.Name))
		}
	}
	if cfg.ActiveProfile != "" && !profiles[cfg.ActiveProfile] {
		errs = append(errs, fmt.Errorf("active_profile %q is not a configured profile", cfg.ActiveProfile))
	}

	return errors.Join(errs...)
}

// Validate checks the global configuration, the trigger tree, and the
// references between them. Every problem found is reported.
func Validate(cfg *Global, tf *TriggerFile) error {
	errs := []error{ValidateGlobal(cfg)}

	ids := make(map[string]bool)
	var walkGroups func(groups []Group)
	walkGroups = func(groups []Group) {
		for i := range groups {
			g := &groups[i]
			if ids[g.ID] {
				errs = append(errs, fmt.Errorf("duplicate id %q (group %q)", g.ID, g.Name))
			}
			ids[g.ID] = true
			walkGroups(g.Groups)
		}
	}
	walkGroups(tf.Groups)

	tf.Walk(func(_ []*Group, t *Trigger) {
		if ids[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate id %q (trigger %q)", t.ID, t.Name))
		}
		ids[t.ID] = true
		errs = append(errs, ValidateTriggerWithGlobal(t, cfg))
	})

	for _, p := range cfg.Profiles {
		for _, id := range p.TriggerGroupIDs {
			if !ids[id] {
				errs = append(errs, fmt.Errorf("profile %q: unknown trigger group %q", p.Name, id))
			}
		}
	}

	return errors.Join(errs...)
}
