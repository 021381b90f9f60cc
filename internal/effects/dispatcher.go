// internal/effects/dispatcher.go
package effects

import (
	"log/slog"

	"github.com/colebrumley/logtrigger/internal/engine"
	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/colebrumley/logtrigger/internal/security"
)

// Dispatcher routes engine intents to the overlay registry, the speech and
// sound commands, and webhooks. Any component may be nil, in which case its
// intents are dropped.
type Dispatcher struct {
	Overlays *Overlays
	Speaker  *Speaker
	Player   *Player
	Webhooks *WebhookSender
	Logger   *slog.Logger
}

var _ engine.Effects = (*Dispatcher)(nil)

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dispatcher) timerLogger(t engine.TimerView) *slog.Logger {
	return logging.WithTrigger(d.logger(), t.TriggerID, t.Trigger).With("timer", t.Label)
}

func (d *Dispatcher) SpawnTimer(t engine.TimerView) {
	d.timerLogger(t).Debug("timer started", "overlay", t.Overlay, "duration", t.Duration, "mode", t.Mode)
	if d.Overlays != nil {
		d.Overlays.AddTimer(t)
	}
}

func (d *Dispatcher) ShowText(overlay, text string) {
	text = security.SanitizeText(text)
	d.logger().Debug("text shown", "overlay", overlay, "text", text)
	if d.Overlays != nil {
		d.Overlays.AddText(overlay, text)
	}
}

func (d *Dispatcher) Speak(text string) {
	if d.Speaker != nil {
		d.Speaker.Speak(security.SanitizeText(text))
	}
}

func (d *Dispatcher) StopSpeech() {
	if d.Speaker != nil {
		d.Speaker.Stop()
	}
}

func (d *Dispatcher) PlaySound(path string) {
	if d.Player != nil {
		d.Player.Play(path)
	}
}

func (d *Dispatcher) CallWebhook(id, message string) {
	if d.Webhooks != nil {
		d.Webhooks.Call(id, message)
	}
}

func (d *Dispatcher) OnTimerEnding(t engine.TimerView) {
	d.timerLogger(t).Debug("timer ending", "remaining", t.Remaining)
	if d.Overlays != nil {
		d.Overlays.MarkEnding(t.ID)
	}
}

func (d *Dispatcher) OnTimerEnded(t engine.TimerView) {
	d.timerLogger(t).Debug("timer ended")
	if d.Overlays != nil {
		d.Overlays.RemoveTimer(t.ID)
	}
}

func (d *Dispatcher) OnTimerForcedEnd(t engine.TimerView) {
	d.timerLogger(t).Debug("timer ended early")
	if d.Overlays != nil {
		d.Overlays.RemoveTimer(t.ID)
	}
}

func (d *Dispatcher) OnTimerRestarted(t engine.TimerView) {
	d.timerLogger(t).Debug("timer restarted")
	if d.Overlays != nil {
		d.Overlays.RestartTimer(t)
	}
}
