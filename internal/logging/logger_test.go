// internal/logging/logger_test.go
package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ===== Rotating writer =====

func TestRotatingWriter_Writes(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	w, err := NewRotatingWriter(logPath, 1024*1024)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	msg := "Hello, log rotation!\n"
	n, err := w.Write([]byte(msg))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(msg) {
		t.Errorf("Write() = %d, want %d", n, len(msg))
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != msg {
		t.Errorf("log content = %q, want %q", string(content), msg)
	}
}

func TestRotatingWriter_CompressedRotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 110)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("x", 50) + "\n"
	for i := 0; i < 3; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	f, err := os.Open(logPath + ".1.gz")
	if err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("rotated file is not valid gzip: %v", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("reading gzip content: %v", err)
	}
	if string(data) != line+line {
		t.Errorf("rotated content = %q, want two lines", data)
	}
}

func TestRotatingWriter_PlainRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "eqlog.txt")

	w, err := NewRotatingWriter(logPath, 1<<20, WithCompression(false))
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	w.Write([]byte("before\n"))
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	w.Write([]byte("after\n"))

	old, err := os.ReadFile(logPath + ".1")
	if err != nil {
		t.Fatalf("reading rotated file: %v", err)
	}
	if string(old) != "before\n" {
		t.Errorf("rotated content = %q", old)
	}
	cur, _ := os.ReadFile(logPath)
	if string(cur) != "after\n" {
		t.Errorf("current content = %q", cur)
	}
}

func TestRotatingWriter_MaxBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 30, WithMaxBackups(3))
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("z", 40) + "\n"
	for i := 0; i < 20; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	all, _ := filepath.Glob(filepath.Join(dir, "test.log.*"))
	if len(all) > 3 {
		t.Errorf("expected at most 3 rotated files, got %d: %v", len(all), all)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), 1024)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Write([]byte(strings.Repeat("x", 10) + "\n"))
			}
		}()
	}
	wg.Wait()
}

// ===== Logger =====

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("json", "info", &buf).Info("test message")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	NewLogger("text", "info", &buf).Info("test message")
	if !strings.Contains(buf.String(), "msg=\"test message\"") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("text", "warn", &buf)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn should be written at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("text", "info", &buf)
	WithFile(WithTrigger(WithProfile(logger, "Caster"), "t1", "Complete Heal"), "/logs/eqlog.txt").Info("matched")

	out := buf.String()
	for _, want := range []string{"profile=Caster", "trigger_id=t1", "trigger=\"Complete Heal\"", "file=/logs/eqlog.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
