// internal/logging/rotating.go
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultMaxBackups is how many rotated files a RotatingWriter keeps.
const DefaultMaxBackups = 5

// RotatingWriter implements io.Writer with size-based rotation. Rotated
// files are named path.1, path.2, ... (with a .gz suffix when compressed),
// path.1 being the newest.
type RotatingWriter struct {
	path       string
	maxSize    int64
	maxBackups int
	compress   bool
	file       *os.File
	size       int64
	mu         sync.Mutex
}

// RotatingOption customizes a RotatingWriter.
type RotatingOption func(*RotatingWriter)

// WithMaxBackups sets how many rotated files are kept.
func WithMaxBackups(n int) RotatingOption {
	return func(w *RotatingWriter) {
		if n > 0 {
			w.maxBackups = n
		}
	}
}

// WithCompression toggles gzip compression of rotated files.
func WithCompression(on bool) RotatingOption {
	return func(w *RotatingWriter) { w.compress = on }
}

// NewRotatingWriter opens path for appending. Rotated files are compressed
// unless WithCompression(false) is given.
func NewRotatingWriter(path string, maxSize int64, opts ...RotatingOption) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	w := &RotatingWriter{
		path:       path,
		maxSize:    maxSize,
		maxBackups: DefaultMaxBackups,
		compress:   true,
		file:       f,
		size:       info.Size(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation regardless of size.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

// Close closes the writer.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *RotatingWriter) backup(i int) string {
	name := fmt.Sprintf("%s.%d", w.path, i)
	if w.compress {
		name += ".gz"
	}
	return name
}

func (w *RotatingWriter) rotate() error {
	w.file.Close()

	os.Remove(w.backup(w.maxBackups))
	for i := w.maxBackups - 1; i >= 1; i-- {
		os.Rename(w.backup(i), w.backup(i+1))
	}

	if w.compress {
		if err := compressFile(w.path, w.backup(1)); err != nil {
			os.Rename(w.path, fmt.Sprintf("%s.1", w.path))
		} else {
			os.Remove(w.path)
		}
	} else if err := os.Rename(w.path, w.backup(1)); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
