// internal/monitor/monitor.go
package monitor

import (
	"path/filepath"
	"sort"
	"time"
)

// Event types
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventRemoved  = "removed"
)

// Event is a change to one of the watched log files.
type Event struct {
	Type      string
	Path      string
	Timestamp time.Time
}

// fileSet is the authoritative list of log files. Files may not exist yet;
// their directories are watched so creation is noticed.
type fileSet map[string]bool

func newFileSet(paths []string) fileSet {
	s := make(fileSet, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		s[Clean(p)] = true
	}
	return s
}

// Clean returns the absolute path of p with its directory's symlinks
// resolved, the form in which event paths are reported.
func Clean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		p = filepath.Join(resolved, filepath.Base(p))
	}
	return filepath.Clean(p)
}

func (s fileSet) contains(path string) bool {
	return s[Clean(path)]
}

// dirs returns the distinct parent directories, sorted.
func (s fileSet) dirs() []string {
	seen := make(map[string]bool)
	var out []string
	for p := range s {
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func send(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	default:
		// channel full, drop event
	}
}
