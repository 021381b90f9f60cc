// internal/effects/overlays.go
package effects

import (
	"sort"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/engine"
)

// TextLifetime is how long a text event stays on its overlay.
const TextLifetime = 5 * time.Second

type bar struct {
	view   engine.TimerView
	ending bool
	seq    uint64
}

type textEvent struct {
	overlay string
	text    string
	shownAt time.Time
	seq     uint64
}

// Overlays is the in-memory state of every timer and text overlay: the
// live timer bars and the unexpired text events routed to each.
type Overlays struct {
	mu      sync.Mutex
	now     func() time.Time
	configs []config.Overlay
	bars    map[string]*bar
	texts   []textEvent
	seq     uint64
}

// NewOverlays creates a registry for the configured overlays. now may be
// nil.
func NewOverlays(cfgs []config.Overlay, now func() time.Time) *Overlays {
	if now == nil {
		now = time.Now
	}
	return &Overlays{
		now:     now,
		configs: append([]config.Overlay(nil), cfgs...),
		bars:    make(map[string]*bar),
	}
}

// Configure replaces the overlay definitions. Live bars and texts are kept.
func (o *Overlays) Configure(cfgs []config.Overlay) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = append([]config.Overlay(nil), cfgs...)
}

// AddTimer puts a new bar on the timer's overlay.
func (o *Overlays) AddTimer(v engine.TimerView) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.bars[v.ID] = &bar{view: v, seq: o.seq}
}

// MarkEnding flags a bar as inside its ending window.
func (o *Overlays) MarkEnding(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.bars[id]; ok {
		b.ending = true
	}
}

// RestartTimer resets a bar to the restarted snapshot.
func (o *Overlays) RestartTimer(v engine.TimerView) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.bars[v.ID]
	if !ok {
		o.seq++
		o.bars[v.ID] = &bar{view: v, seq: o.seq}
		return
	}
	b.view = v
	b.ending = false
}

// RemoveTimer drops a bar.
func (o *Overlays) RemoveTimer(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.bars, id)
}

// AddText shows text on a text overlay for TextLifetime.
func (o *Overlays) AddText(overlay, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.texts = append(o.texts, textEvent{overlay: overlay, text: text, shownAt: o.now(), seq: o.seq})
}

// BarView is one timer bar as drawn.
type BarView struct {
	engine.TimerView
	Ending bool `json:"ending"`
}

// TextView is one text event as drawn.
type TextView struct {
	Text      string    `json:"text"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OverlayView is the content of one overlay at a point in time.
type OverlayView struct {
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	SortMethod string     `json:"sort_method"`
	Timers     []BarView  `json:"timers,omitempty"`
	Texts      []TextView `json:"texts,omitempty"`
}

// Snapshot drops expired text events and returns every overlay with its
// content sorted by the overlay's sort method. Bars and texts routed to an
// overlay that is not configured are listed under an ad-hoc entry.
func (o *Overlays) Snapshot() []OverlayView {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.expire(now)

	type key struct{ name, kind string }
	index := make(map[key]int)
	var out []OverlayView
	for _, c := range o.configs {
		index[key{c.Name, c.Kind}] = len(out)
		out = append(out, OverlayView{Name: c.Name, Kind: c.Kind, SortMethod: c.SortMethod})
	}
	lookup := func(name, kind, sortMethod string) *OverlayView {
		k := key{name, kind}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, OverlayView{Name: name, Kind: kind, SortMethod: sortMethod})
		}
		return &out[i]
	}

	bars := make([]*bar, 0, len(o.bars))
	for _, b := range o.bars {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].seq < bars[j].seq })
	for _, b := range bars {
		ov := lookup(b.view.Overlay, config.OverlayTimer, config.SortTimeRemaining)
		ov.Timers = append(ov.Timers, BarView{TimerView: b.view.Project(now), Ending: b.ending})
	}

	for _, t := range o.texts {
		ov := lookup(t.overlay, config.OverlayText, config.SortOrder)
		ov.Texts = append(ov.Texts, TextView{Text: t.text, ShownAt: t.shownAt, ExpiresAt: t.shownAt.Add(TextLifetime)})
	}

	for i := range out {
		sortOverlay(&out[i])
	}
	return out
}

func (o *Overlays) expire(now time.Time) {
	kept := o.texts[:0]
	for _, t := range o.texts {
		if now.Sub(t.shownAt) < TextLifetime {
			kept = append(kept, t)
		}
	}
	o.texts = kept
}

// sortOverlay orders content in place. Input is already in insertion order,
// so stable sorts keep ties in the order they were shown.
func sortOverlay(ov *OverlayView) {
	switch ov.SortMethod {
	case config.SortLabel:
		sort.SliceStable(ov.Timers, func(i, j int) bool { return naturalLess(ov.Timers[i].Label, ov.Timers[j].Label) })
		sort.SliceStable(ov.Texts, func(i, j int) bool { return naturalLess(ov.Texts[i].Text, ov.Texts[j].Text) })
	case config.SortTimeRemaining:
		sort.SliceStable(ov.Timers, func(i, j int) bool {
			a, b := ov.Timers[i], ov.Timers[j]
			if a.OpenEnded() != b.OpenEnded() {
				return b.OpenEnded()
			}
			return a.Remaining < b.Remaining
		})
	}
}
