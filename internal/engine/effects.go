// internal/engine/effects.go
package engine

// Effects receives the engine's side-effect intents. Methods are called
// with the engine lock held and must not block.
type Effects interface {
	SpawnTimer(t TimerView)
	ShowText(overlay, text string)
	Speak(text string)
	StopSpeech()
	PlaySound(path string)
	CallWebhook(id, message string)

	OnTimerEnding(t TimerView)
	OnTimerEnded(t TimerView)
	OnTimerForcedEnd(t TimerView)
	OnTimerRestarted(t TimerView)
}

// NopEffects discards every intent.
type NopEffects struct{}

func (NopEffects) SpawnTimer(TimerView)       {}
func (NopEffects) ShowText(string, string)    {}
func (NopEffects) Speak(string)               {}
func (NopEffects) StopSpeech()                {}
func (NopEffects) PlaySound(string)           {}
func (NopEffects) CallWebhook(string, string) {}
func (NopEffects) OnTimerEnding(TimerView)    {}
func (NopEffects) OnTimerEnded(TimerView)     {}
func (NopEffects) OnTimerForcedEnd(TimerView) {}
func (NopEffects) OnTimerRestarted(TimerView) {}
