// internal/engine/engine.go
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/colebrumley/logtrigger/internal/pattern"
	"github.com/colebrumley/logtrigger/internal/state"
	"github.com/colebrumley/logtrigger/internal/template"
	"github.com/google/uuid"
)

var leadingTimestamp = regexp.MustCompile(`^\[.*?\] `)

// History records trigger log entries. *state.DB satisfies it.
type History interface {
	RecordMatch(rec state.MatchRecord) (int64, error)
}

// Options configures an Engine.
type Options struct {
	Effects    Effects
	History    History
	Categories []config.Category
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine evaluates log lines against the trigger tree and owns every live
// timer. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	effects    Effects
	history    History
	logger     *slog.Logger
	now        func() time.Time
	categories map[string]config.Category

	tree     *Tree
	triggers map[string]*trigger
	order    []string
	profile  string
	// profileGroups is non-nil once a profile has been applied.
	profileGroups []string
}

// New creates an engine with an empty tree.
func New(opts Options) *Engine {
	if opts.Effects == nil {
		opts.Effects = NopEffects{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		effects:  opts.Effects,
		history:  opts.History,
		logger:   opts.Logger,
		now:      opts.Now,
		tree:     NewTree(&config.TriggerFile{}),
		triggers: make(map[string]*trigger),
	}
	e.setCategories(opts.Categories)
	return e
}

func (e *Engine) setCategories(cats []config.Category) {
	e.categories = make(map[string]config.Category, len(cats))
	for _, c := range cats {
		e.categories[c.Name] = c
	}
}

func (e *Engine) category(name string) config.Category {
	if c, ok := e.categories[name]; ok {
		return c
	}
	if c, ok := e.categories[config.DefaultCategory]; ok {
		return c
	}
	return config.Category{Name: config.DefaultCategory, TimerOverlay: config.DefaultCategory, TextOverlay: config.DefaultCategory}
}

// Load replaces the trigger tree. Triggers whose ID survives keep their
// counter, variable values, and live timers. Only the first trigger with a
// given ID is loaded.
func (e *Engine) Load(tf *config.TriggerFile) {
	e.mu.Lock()
	defer e.mu.Unlock()

	triggers := make(map[string]*trigger)
	var order []string
	tf.Walk(func(_ []*config.Group, cfg *config.Trigger) {
		if _, ok := triggers[cfg.ID]; ok {
			e.logger.Warn("skipping trigger with duplicate id", "id", cfg.ID, "name", cfg.Name)
			return
		}
		t := newTrigger(*cfg, e.logger)
		if old, ok := e.triggers[cfg.ID]; ok {
			t.adopt(old)
		}
		triggers[cfg.ID] = t
		order = append(order, cfg.ID)
	})

	for id, old := range e.triggers {
		if _, ok := triggers[id]; ok {
			continue
		}
		for _, tm := range append([]*Timer(nil), old.timers...) {
			e.forceEnd(old, tm)
		}
	}

	e.tree = NewTree(tf)
	if e.profileGroups != nil {
		e.tree.ApplyGroups(e.profileGroups)
	}
	e.triggers = triggers
	e.order = order
	e.logger.Info("triggers loaded", "triggers", len(order), "nodes", e.tree.Len())
}

// UpdateTrigger recompiles one trigger from cfg, keeping its runtime state.
func (e *Engine) UpdateTrigger(cfg config.Trigger) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.triggers[cfg.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, cfg.ID)
	}
	t := newTrigger(cfg, e.logger)
	t.adopt(old)
	e.triggers[cfg.ID] = t
	return nil
}

// SetProfile makes p the active profile: its name fills {c} and exactly its
// trigger groups are enabled.
func (e *Engine) SetProfile(p config.Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.profile = p.Name
	e.profileGroups = append([]string{}, p.TriggerGroupIDs...)
	if unknown := e.tree.ApplyGroups(p.TriggerGroupIDs); len(unknown) > 0 {
		e.logger.Warn("profile references unknown trigger groups", "profile", p.Name, "ids", unknown)
	}
	logging.WithProfile(e.logger, p.Name).Info("profile activated", "groups", len(p.TriggerGroupIDs))
}

// Profile returns the active profile name.
func (e *Engine) Profile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// SetChecked enables or disables a group or trigger and its descendants.
func (e *Engine) SetChecked(id string, checked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.SetChecked(id, checked)
}

// OnLine evaluates one log line against every checked trigger.
func (e *Engine) OnLine(raw string) {
	line := strings.TrimSpace(leadingTimestamp.ReplaceAllString(raw, ""))
	if line == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, id := range e.order {
		if !e.tree.Checked(id) {
			continue
		}
		e.evaluate(e.triggers[id], line, now)
	}
}

func (e *Engine) evaluate(t *trigger, line string, now time.Time) {
	for _, v := range t.variables {
		if m := v.pattern.Match(line); m != nil {
			if val := v.pattern.Execute(v.value, m, e.profile); val != "" {
				t.values[v.name] = val
			}
		}
	}

	if len(t.timers) > 0 {
		for _, ender := range t.enders {
			if ender.MatchString(line) {
				for _, tm := range append([]*Timer(nil), t.timers...) {
					e.forceEnd(t, tm)
				}
				break
			}
		}
	}

	if !t.lastMatchedAt.IsZero() && now.Unix() > t.lastMatchedAt.Unix()+int64(t.cfg.CounterDuration) {
		t.counter = 0
	}

	m := t.pattern.Match(line)
	if m == nil {
		return
	}
	t.lastMatchedAt = now
	t.counter++

	logger := logging.WithTrigger(e.logger, t.cfg.ID, t.cfg.Name)
	logger.Debug("trigger matched", "line", line, "counter", t.counter)

	name := e.substitute(t, t.cfg.TimerName, m)
	e.act(t, t.cfg.Actions, m, false)

	if t.cfg.Webhook.ID != "" {
		msg := line
		if t.cfg.Webhook.Message != "" {
			msg = e.substitute(t, t.cfg.Webhook.Message, m)
		}
		e.effects.CallWebhook(t.cfg.Webhook.ID, msg)
	}

	cat := e.category(t.cfg.Category)

	if t.hasTimer && name != "" {
		e.spawnOrRestart(t, name, cat, m, line, now)
	}

	if t.cfg.Actions.UseText {
		text := e.substitute(t, t.cfg.Actions.DisplayText, m)
		e.effects.ShowText(cat.TextOverlay, text)
		e.record(t, state.KindText, text, line, now)
	}
}

// substitute fills captures, the profile name, the counter, and variables.
func (e *Engine) substitute(t *trigger, tmpl string, m *pattern.Match) string {
	if tmpl == "" {
		return ""
	}
	return template.Expand(t.pattern.Execute(tmpl, m, e.profile), t.counter, t.values)
}

// act runs the speech and sound parts of a. Text is handled by the caller
// when includeText is false.
func (e *Engine) act(t *trigger, a config.Actions, m *pattern.Match, includeText bool) {
	if a.InterruptSpeech {
		e.effects.StopSpeech()
	}
	if a.Speak && a.SpeechText != "" {
		e.effects.Speak(e.substitute(t, a.SpeechText, m))
	}
	if a.PlaySound && a.SoundFile != "" {
		e.effects.PlaySound(a.SoundFile)
	}
	if includeText && a.UseText && a.DisplayText != "" {
		e.effects.ShowText(e.category(t.cfg.Category).TextOverlay, e.substitute(t, a.DisplayText, m))
	}
}

func (e *Engine) spawnOrRestart(t *trigger, name string, cat config.Category, m *pattern.Match, line string, now time.Time) {
	if len(t.timers) > 0 {
		switch t.cfg.StartBehavior {
		case config.DoNothing:
			return
		case config.RestartCurrent:
			if t.cfg.RestartOnMatchingName && !t.cfg.RestartRegardless {
				restarted := false
				for _, tm := range t.timers {
					if tm.Label == name {
						e.restart(t, tm, now)
						restarted = true
					}
				}
				if restarted {
					return
				}
			} else {
				tm := t.timers[len(t.timers)-1]
				tm.Label = name
				e.restart(t, tm, now)
				return
			}
		}
	}

	duration := time.Duration(t.cfg.Duration) * time.Second
	if ts, ok := m.Named(pattern.TimestampGroup); ok {
		if secs, ok := pattern.ParseDuration(ts); ok {
			duration = time.Duration(secs) * time.Second
		}
	}

	tm := e.spawn(t, name, duration, cat, m, now)
	e.record(t, state.KindTimer, tm.Label, line, now)
}

func (e *Engine) spawn(t *trigger, label string, duration time.Duration, cat config.Category, m *pattern.Match, now time.Time) *Timer {
	tm := &Timer{
		ID:              uuid.NewString(),
		Label:           label,
		Duration:        duration,
		Mode:            t.mode,
		StartedAt:       now,
		EndingThreshold: time.Duration(t.cfg.Ending.Threshold) * time.Second,
		TriggerID:       t.cfg.ID,
		Category:        cat.Name,
		Overlay:         cat.TimerOverlay,
		match:           m,
		nextTick:        now,
	}
	t.timers = append(t.timers, tm)
	e.effects.SpawnTimer(tm.view(now, t.cfg.Name))
	return tm
}

func (e *Engine) restart(t *trigger, tm *Timer, now time.Time) {
	tm.restart(now)
	e.effects.OnTimerRestarted(tm.view(now, t.cfg.Name))
}

func (e *Engine) forceEnd(t *trigger, tm *Timer) {
	tm.State = ForcedEnd
	t.removeTimer(tm)
	e.effects.OnTimerForcedEnd(tm.view(e.now(), t.cfg.Name))
}

func (e *Engine) record(t *trigger, kind, label, line string, now time.Time) {
	if e.history == nil {
		return
	}
	_, err := e.history.RecordMatch(state.MatchRecord{
		MatchedAt: now,
		TriggerID: t.cfg.ID,
		Trigger:   t.cfg.Name,
		Kind:      kind,
		Label:     label,
		Profile:   e.profile,
		Line:      line,
	})
	if err != nil {
		e.logger.Warn("could not record trigger log entry", "error", err)
	}
}

// Tick advances every timer whose cadence is due at now.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.order {
		t := e.triggers[id]
		for _, tm := range append([]*Timer(nil), t.timers...) {
			if now.Before(tm.nextTick) {
				continue
			}
			tm.nextTick = now.Add(tm.Cadence())
			e.advance(t, tm, now)
		}
	}
}

func (e *Engine) advance(t *trigger, tm *Timer, now time.Time) {
	ending, done := tm.advance(now)
	if ending {
		e.effects.OnTimerEnding(tm.view(now, t.cfg.Name))
		if t.cfg.Ending.Notify {
			e.act(t, t.cfg.Ending.Actions, tm.match, true)
		}
	}
	if !done {
		return
	}

	tm.State = Completed
	e.effects.OnTimerEnded(tm.view(now, t.cfg.Name))
	if t.cfg.Ended.Notify {
		e.act(t, t.cfg.Ended.Actions, tm.match, true)
	}
	if tm.Mode == Repeating && tm.Duration > 0 {
		cat := e.category(tm.Category)
		cat.TimerOverlay = tm.Overlay
		e.spawn(t, tm.Label, tm.Duration, cat, tm.match, now)
	}
	t.removeTimer(tm)
}

// EndTimer force-ends a live timer by ID.
func (e *Engine) EndTimer(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.triggers {
		for _, tm := range t.timers {
			if tm.ID == id {
				e.forceEnd(t, tm)
				return true
			}
		}
	}
	return false
}

// Timers returns every live timer, ordered by start time.
func (e *Engine) Timers() []TimerView {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var out []TimerView
	for _, id := range e.order {
		t := e.triggers[id]
		for _, tm := range t.timers {
			out = append(out, tm.view(now, t.cfg.Name))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Triggers returns a summary of every trigger in tree order.
func (e *Engine) Triggers() []TriggerView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]TriggerView, 0, len(e.order))
	for _, id := range e.order {
		t := e.triggers[id]
		n, _ := e.tree.Node(id)
		v := TriggerView{
			ID:         id,
			Name:       t.cfg.Name,
			Path:       e.tree.Path(id),
			SearchText: t.cfg.SearchText,
			Expression: t.pattern.String(),
			Literal:    t.pattern.Literal(),
			TimerType:  t.cfg.TimerType,
			Category:   t.cfg.Category,
			Counter:    t.counter,
			LastMatch:  t.lastMatchedAt,
			LiveTimers: len(t.timers),
		}
		if n != nil {
			v.State = n.State.String()
		}
		if len(t.values) > 0 {
			v.Variables = make(map[string]string, len(t.values))
			for k, val := range t.values {
				v.Variables[k] = val
			}
		}
		out = append(out, v)
	}
	return out
}

// NodeView is a tree node for presentation.
type NodeView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
	Depth int    `json:"depth"`
}

// Nodes returns the tree in depth-first order.
func (e *Engine) Nodes() []NodeView {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []NodeView
	e.tree.Walk(func(n *Node, depth int) {
		kind := "group"
		if n.Kind == TriggerNode {
			kind = "trigger"
		}
		out = append(out, NodeView{ID: n.ID, Name: n.Name, Kind: kind, State: n.State.String(), Depth: depth})
	})
	return out
}
