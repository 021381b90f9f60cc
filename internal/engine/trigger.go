// internal/engine/trigger.go
package engine

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/colebrumley/logtrigger/internal/pattern"
)

type variable struct {
	name    string
	value   string
	pattern *pattern.Pattern
}

// trigger is the runtime form of a config.Trigger: compiled patterns plus
// the state that survives across lines.
type trigger struct {
	cfg       config.Trigger
	pattern   *pattern.Pattern
	enders    []*pattern.Pattern
	variables []variable
	mode      Mode
	hasTimer  bool

	counter       int
	lastMatchedAt time.Time
	timers        []*Timer
	values        map[string]string
}

func newTrigger(cfg config.Trigger, logger *slog.Logger) *trigger {
	logger = logging.WithTrigger(logger, cfg.ID, cfg.Name)
	t := &trigger{
		cfg:     cfg,
		pattern: compile(cfg.SearchText, cfg.UseRegex, logger),
		values:  make(map[string]string),
	}
	t.mode, t.hasTimer = ParseMode(cfg.TimerType)

	for _, e := range cfg.EndEarly {
		if e.SearchText == "" {
			continue
		}
		t.enders = append(t.enders, compile(e.SearchText, e.UseRegex, logger))
	}
	for _, v := range cfg.Variables {
		if v.Search == "" {
			continue
		}
		// Variable searches always treat * as a word wildcard.
		search := strings.ReplaceAll(v.Search, "*", `\w+`)
		t.variables = append(t.variables, variable{
			name:    v.Name,
			value:   v.Value,
			pattern: compile(search, true, logger),
		})
	}
	return t
}

func compile(template string, useRegex bool, logger *slog.Logger) *pattern.Pattern {
	p, err := pattern.Compile(template, pattern.Options{UseRegex: useRegex})
	var cerr *pattern.CompileError
	if errors.As(err, &cerr) {
		logger.Warn("pattern failed to compile, matching literally", "template", template, "error", cerr.Err)
	}
	return p
}

// adopt carries runtime state over from the trigger this one replaces.
func (t *trigger) adopt(old *trigger) {
	t.counter = old.counter
	t.lastMatchedAt = old.lastMatchedAt
	t.timers = old.timers
	t.values = old.values
}

func (t *trigger) removeTimer(timer *Timer) {
	for i, tm := range t.timers {
		if tm == timer {
			t.timers = append(t.timers[:i], t.timers[i+1:]...)
			return
		}
	}
}

// TriggerView summarizes a trigger for presentation.
type TriggerView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Path       []string          `json:"path"`
	State      string            `json:"state"`
	SearchText string            `json:"search_text"`
	Expression string            `json:"expression"`
	Literal    bool              `json:"literal,omitempty"`
	TimerType  string            `json:"timer_type"`
	Category   string            `json:"category,omitempty"`
	Counter    int               `json:"counter"`
	LastMatch  time.Time         `json:"last_matched_at,omitzero"`
	LiveTimers int               `json:"live_timers"`
	Variables  map[string]string `json:"variables,omitempty"`
}
