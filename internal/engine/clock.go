// internal/engine/clock.go
package engine

import (
	"context"
	"time"
)

// BaseTick is the shared scheduler's resolution. Each timer is advanced at
// its own cadence, never more often than this.
const BaseTick = 50 * time.Millisecond

// Clock drives Engine.Tick from a single goroutine.
type Clock struct {
	engine   *Engine
	interval time.Duration
}

// NewClock returns a clock ticking e every BaseTick.
func NewClock(e *Engine) *Clock {
	return &Clock{engine: e, interval: BaseTick}
}

// Run ticks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.engine.Tick(now)
		}
	}
}
