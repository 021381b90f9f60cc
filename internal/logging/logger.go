// internal/logging/logger.go
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger writing json or text to w.
func NewLogger(format string, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTrigger returns a logger with the trigger id and name attached
func WithTrigger(logger *slog.Logger, id, name string) *slog.Logger {
	return logger.With("trigger_id", id, "trigger", name)
}

// WithFile returns a logger with the followed file attached
func WithFile(logger *slog.Logger, path string) *slog.Logger {
	return logger.With("file", path)
}

// WithProfile returns a logger with the active profile attached
func WithProfile(logger *slog.Logger, profile string) *slog.Logger {
	return logger.With("profile", profile)
}
