// internal/tailer/checkpoint.go
package tailer

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Checkpoint records how far a file has been read.
type Checkpoint struct {
	Signature string `yaml:"signature"`
	ModTime   int64  `yaml:"mod_time"`
	Offset    int64  `yaml:"offset"`
}

// CheckpointStore keeps one checkpoint per watched path.
type CheckpointStore interface {
	Load(path string) (Checkpoint, bool, error)
	Save(path string, cp Checkpoint) error
	Delete(path string) error
	// Persistent reports whether checkpoints survive a restart. A persistent
	// store lets a new session resume where the last one stopped.
	Persistent() bool
}

// MemoryStore holds checkpoints for the lifetime of the process.
type MemoryStore struct {
	mu  sync.Mutex
	cps map[string]Checkpoint
}

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Load(path string) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[Slug(path)]
	return cp, ok, nil
}

func (s *MemoryStore) Save(path string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[Slug(path)] = cp
	return nil
}

func (s *MemoryStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cps, Slug(path))
	return nil
}

func (s *MemoryStore) Persistent() bool { return false }

// FileStore writes each checkpoint to <dir>/<slug>.checkpoint as YAML.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(watched string) string {
	return filepath.Join(s.dir, Slug(watched)+".checkpoint")
}

func (s *FileStore) Load(path string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path(path))
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return cp, true, nil
}

func (s *FileStore) Save(path string, cp Checkpoint) error {
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	tmp := s.path(path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return os.Rename(tmp, s.path(path))
}

func (s *FileStore) Delete(path string) error {
	err := os.Remove(s.path(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Persistent() bool { return true }

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugDash  = regexp.MustCompile(`[-\s]+`)
)

// Slug turns a path into a file-name-safe key: punctuation dropped,
// lowercased, runs of spaces and dashes collapsed to one dash, then the
// CRC-32 of the trimmed path appended so distinct paths get distinct keys.
func Slug(value string) string {
	value = strings.TrimSpace(value)
	readable := strings.ToLower(strings.TrimSpace(slugStrip.ReplaceAllString(value, "")))
	readable = slugDash.ReplaceAllString(readable, "-")
	return fmt.Sprintf("%s-%08x", readable, crc32.ChecksumIEEE([]byte(value)))
}
