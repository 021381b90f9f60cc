// internal/engine/clock_test.go
package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colebrumley/logtrigger/internal/config"
)

func TestClock_EndsTimersInRealTime(t *testing.T) {
	rec := &recorder{}
	e := New(Options{Effects: rec, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	e.Load(&config.TriggerFile{Groups: []config.Group{{
		ID: "g", Name: "Group", Enabled: true,
		Triggers: []config.Trigger{{
			ID: "short", Name: "Short", Enabled: true, SearchText: "go",
			TimerType: config.TimerCountdown, TimerName: "Short", Duration: 1,
			StartBehavior: config.StartNew,
		}},
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewClock(e).Run(ctx)
		close(done)
	}()

	e.OnLine("go")
	require.Len(t, e.Timers(), 1)

	require.Eventually(t, func() bool { return len(e.Timers()) == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Len(t, rec.of("ended"), 1)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock did not stop after cancel")
	}
}
