// internal/effects/command.go
package effects

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/colebrumley/logtrigger/internal/config"
)

func command(ctx context.Context, cfg config.CommandConfig, arg string) *exec.Cmd {
	args := append(append([]string(nil), cfg.Args...), arg)
	return exec.CommandContext(ctx, cfg.Command, args...)
}

// Speaker reads text aloud through an external command. Only one utterance
// runs at a time: a new one interrupts the previous.
type Speaker struct {
	ctx    context.Context
	cfg    config.CommandConfig
	logger *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
	done    chan struct{}
}

// NewSpeaker creates a speaker. Utterances are killed when ctx is done.
func NewSpeaker(ctx context.Context, cfg config.CommandConfig, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{ctx: ctx, cfg: cfg, logger: logger}
}

// Speak interrupts any utterance in progress and starts a new one.
func (s *Speaker) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if s.cfg.Command == "" || text == "" {
		return
	}

	cmd := command(s.ctx, s.cfg, text)
	if err := cmd.Start(); err != nil {
		s.logger.Warn("speech command failed to start", "command", s.cfg.Command, "error", err)
		return
	}
	done := make(chan struct{})
	s.current, s.done = cmd, done

	go func() {
		err := cmd.Wait()
		close(done)
		s.mu.Lock()
		if s.current == cmd {
			s.current, s.done = nil, nil
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("speech command exited", "error", err)
		}
	}()
}

// Stop kills the utterance in progress, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.current == nil {
		return
	}
	_ = s.current.Process.Kill()
	<-s.done
	s.current, s.done = nil, nil
}

// Speaking reports whether an utterance is in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Player plays sound files through an external command. Sounds overlap.
type Player struct {
	ctx    context.Context
	cfg    config.CommandConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewPlayer creates a sound player. Playback is killed when ctx is done.
func NewPlayer(ctx context.Context, cfg config.CommandConfig, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{ctx: ctx, cfg: cfg, logger: logger}
}

// Play starts playing path in the background.
func (p *Player) Play(path string) {
	if p.cfg.Command == "" || path == "" {
		return
	}
	cmd := command(p.ctx, p.cfg, config.ExpandHome(path))
	if err := cmd.Start(); err != nil {
		p.logger.Warn("sound command failed to start", "command", p.cfg.Command, "file", path, "error", err)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := cmd.Wait(); err != nil {
			p.logger.Debug("sound command exited", "file", path, "error", err)
		}
	}()
}

// Wait blocks until every sound started so far has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}
