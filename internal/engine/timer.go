// internal/engine/timer.go
package engine

import (
	"fmt"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/pattern"
)

// Mode is how a timer runs.
type Mode int

const (
	Countdown Mode = iota
	CountUp
	Repeating
)

func (m Mode) String() string {
	switch m {
	case CountUp:
		return "countup"
	case Repeating:
		return "repeating"
	default:
		return "countdown"
	}
}

// ParseMode maps a configured timer type to a Mode. ok is false for
// "none" and unknown types: such triggers never spawn timers.
func ParseMode(timerType string) (Mode, bool) {
	switch timerType {
	case config.TimerCountdown:
		return Countdown, true
	case config.TimerCountUp:
		return CountUp, true
	case config.TimerRepeating:
		return Repeating, true
	}
	return 0, false
}

// TimerState is a timer's position in its lifecycle.
type TimerState int

const (
	Running TimerState = iota
	Ending
	Completed
	ForcedEnd
)

func (s TimerState) String() string {
	switch s {
	case Ending:
		return "ending"
	case Completed:
		return "completed"
	case ForcedEnd:
		return "forced_end"
	default:
		return "running"
	}
}

const (
	resolution = 200
	minCadence = 50 * time.Millisecond
	maxCadence = time.Second
)

// Timer is a live countdown, stopwatch, or repeating timer spawned by a
// trigger match.
type Timer struct {
	ID              string
	Label           string
	Duration        time.Duration
	Mode            Mode
	StartedAt       time.Time
	EndingThreshold time.Duration
	EndingNotified  bool
	State           TimerState
	TriggerID       string
	Category        string
	Overlay         string

	match    *pattern.Match
	nextTick time.Time
}

// Cadence is how often the timer wants to be advanced: duration/200,
// clamped to [50ms, 1s].
func (t *Timer) Cadence() time.Duration {
	c := t.Duration / resolution
	if c < minCadence {
		return minCadence
	}
	if c > maxCadence {
		return maxCadence
	}
	return c
}

// Elapsed returns the time since the timer (re)started.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	if now.Before(t.StartedAt) {
		return 0
	}
	return now.Sub(t.StartedAt)
}

// Remaining returns the time left before completion. ok is false for an
// open-ended stopwatch.
func (t *Timer) Remaining(now time.Time) (time.Duration, bool) {
	if t.Mode == CountUp && t.Duration <= 0 {
		return 0, false
	}
	r := t.Duration - t.Elapsed(now)
	if r < 0 {
		r = 0
	}
	return r, true
}

// Ratio is the bar fill in [0,1]: falling for countdowns, rising for
// stopwatches, and always full for an open-ended stopwatch.
func (t *Timer) Ratio(now time.Time) float64 {
	if t.Duration <= 0 {
		if t.Mode == CountUp {
			return 1
		}
		return 0
	}
	r := float64(t.Elapsed(now)) / float64(t.Duration)
	if t.Mode != CountUp {
		r = 1 - r
	}
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Clock returns the MM:SS the timer shows: time remaining, or time elapsed
// for stopwatches.
func (t *Timer) Clock(now time.Time) string {
	if t.Mode == CountUp {
		return FormatClock(t.Elapsed(now))
	}
	r, _ := t.Remaining(now)
	return FormatClock(r)
}

// FormatClock renders d as MM:SS, with hours folded into minutes.
func FormatClock(d time.Duration) string {
	s := int64(d / time.Second)
	s %= 24 * 3600
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func (t *Timer) restart(now time.Time) {
	t.StartedAt = now
	t.EndingNotified = false
	t.State = Running
	t.nextTick = now
}

// advance reports whether the ending threshold was crossed on this call
// and whether the timer has completed.
func (t *Timer) advance(now time.Time) (ending, done bool) {
	elapsed := t.Elapsed(now)

	switch {
	case t.Mode == CountUp && t.Duration <= 0:
		return false, false
	case t.Mode == CountUp:
		done = elapsed > t.Duration
	default:
		done = elapsed >= t.Duration
	}

	if !t.EndingNotified {
		if r, ok := t.Remaining(now); ok && r <= t.EndingThreshold {
			t.EndingNotified = true
			t.State = Ending
			ending = true
		}
	}
	return ending, done
}

// TimerView is a point-in-time copy of a timer for presentation.
type TimerView struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	TriggerID string    `json:"trigger_id"`
	Trigger   string    `json:"trigger"`
	Category  string    `json:"category"`
	Overlay   string    `json:"overlay"`
	Mode      string    `json:"mode"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration"`            // seconds
	Remaining float64   `json:"remaining,omitempty"` // seconds
	Elapsed   float64   `json:"elapsed"`             // seconds
	Ratio     float64   `json:"ratio"`
	Clock     string    `json:"clock"`
}

func (t *Timer) view(now time.Time, triggerName string) TimerView {
	v := TimerView{
		ID:        t.ID,
		Label:     t.Label,
		TriggerID: t.TriggerID,
		Trigger:   triggerName,
		Category:  t.Category,
		Overlay:   t.Overlay,
		Mode:      t.Mode.String(),
		State:     t.State.String(),
		StartedAt: t.StartedAt,
		Duration:  t.Duration.Seconds(),
		Elapsed:   t.Elapsed(now).Seconds(),
		Ratio:     t.Ratio(now),
		Clock:     t.Clock(now),
	}
	if r, ok := t.Remaining(now); ok {
		v.Remaining = r.Seconds()
	}
	return v
}

// Project recomputes the time-dependent fields of a snapshot at now.
func (v TimerView) Project(now time.Time) TimerView {
	tm := &Timer{
		Duration:  time.Duration(v.Duration * float64(time.Second)),
		Mode:      modeNamed(v.Mode),
		StartedAt: v.StartedAt,
	}
	v.Elapsed = tm.Elapsed(now).Seconds()
	v.Ratio = tm.Ratio(now)
	v.Clock = tm.Clock(now)
	v.Remaining = 0
	if r, ok := tm.Remaining(now); ok {
		v.Remaining = r.Seconds()
	}
	return v
}

// OpenEnded reports whether the snapshot is a stopwatch with no duration.
func (v TimerView) OpenEnded() bool {
	return v.Mode == CountUp.String() && v.Duration <= 0
}

func modeNamed(name string) Mode {
	for _, m := range []Mode{Countdown, CountUp, Repeating} {
		if m.String() == name {
			return m
		}
	}
	return Countdown
}
