// internal/tailer/tailer_test.go
package tailer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/colebrumley/logtrigger/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "[Mon Oct 19 10:00:00 2026] Welcome to the log!\n"

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func newTestTailer(t *testing.T, path string, opts Options) (*Tailer, *collector) {
	t.Helper()
	c := &collector{}
	tl := New(path, opts)
	tl.open(c.add)
	return tl, c
}

// ===== Appends =====

func TestTailer_SkipsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header+"old line\n")

	tl, c := newTestTailer(t, path, Options{})
	assert.Equal(t, 0, tl.Poll())

	appendFile(t, path, "new line\n")
	assert.Equal(t, 1, tl.Poll())
	assert.Equal(t, []string{"new line"}, c.get())
}

func TestTailer_DefersPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{})

	appendFile(t, path, "You begin cast")
	assert.Equal(t, 0, tl.Poll())

	appendFile(t, path, "ing Complete Heal.\n")
	assert.Equal(t, 1, tl.Poll())
	assert.Equal(t, []string{"You begin casting Complete Heal."}, c.get())
}

func TestTailer_TrimsCRLFAndSkipsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{})
	appendFile(t, path, "first\r\n\n   \nsecond\n")
	tl.Poll()

	assert.Equal(t, []string{"first", "second"}, c.get())
}

func TestTailer_MissingFileReadFromStartOnceCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")

	tl, c := newTestTailer(t, path, Options{})
	assert.Equal(t, 0, tl.Poll())

	writeFile(t, path, header)
	tl.Poll()
	assert.Equal(t, []string{"[Mon Oct 19 10:00:00 2026] Welcome to the log!"}, c.get())
}

// ===== Rotation and truncation =====

func TestTailer_RenameRotationDeliversEveryLineOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{})

	appendFile(t, path, "line 1\n")
	tl.Poll()

	// Lines written after the last poll but before the rename must be
	// recovered from the rotated file before the new file is read.
	appendFile(t, path, "line 2\nline 3\n")
	require.NoError(t, os.Rename(path, path+".1"))
	writeFile(t, path, "fresh file line 4 with enough bytes for a signature\n")

	tl.Poll()
	appendFile(t, path, "line 5\n")
	tl.Poll()

	assert.Equal(t, []string{
		"line 1",
		"line 2",
		"line 3",
		"fresh file line 4 with enough bytes for a signature",
		"line 5",
	}, c.get())
}

func TestTailer_FollowsRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	w, err := logging.NewRotatingWriter(path, 1<<20, logging.WithCompression(false))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte(header))
	require.NoError(t, err)

	tl, c := newTestTailer(t, path, Options{})
	w.Write([]byte("one\n"))
	require.NoError(t, w.Rotate())
	w.Write([]byte("two, written to the freshly rotated log\n"))
	tl.Poll()

	assert.Equal(t, []string{"one", "two, written to the freshly rotated log"}, c.get())
}

func TestTailer_RotationScanFindsOtherNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{ScanRotated: true})

	appendFile(t, path, "before\n")
	require.NoError(t, os.Rename(path, filepath.Join(dir, "eqlog.txt-20261019")))
	writeFile(t, path, "after rotation, a brand new log file\n")
	tl.Poll()

	assert.Equal(t, []string{"before", "after rotation, a brand new log file"}, c.get())
}

func TestTailer_RotationWithoutPredecessorStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{})

	appendFile(t, path, "lost\n")
	require.NoError(t, os.Remove(path))
	writeFile(t, path, "replacement content long enough to sign\n")
	tl.Poll()

	assert.Equal(t, []string{"replacement content long enough to sign"}, c.get())
}

func TestTailer_TruncationResetsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header)

	tl, c := newTestTailer(t, path, Options{})
	appendFile(t, path, "before truncate\n")
	tl.Poll()

	require.NoError(t, os.Truncate(path, 0))
	appendFile(t, path, "short\n")
	tl.Poll()

	assert.Equal(t, []string{"before truncate", "short"}, c.get())
}

// ===== Checkpoint persistence =====

func TestTailer_PersistentStoreResumes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eqlog.txt")
	writeFile(t, path, header)

	store, err := NewFileStore(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)

	first, c1 := newTestTailer(t, path, Options{Store: store})
	appendFile(t, path, "seen by first\n")
	first.Poll()
	assert.Equal(t, []string{"seen by first"}, c1.get())

	appendFile(t, path, "written while down\n")

	second, c2 := newTestTailer(t, path, Options{Store: store})
	second.Poll()
	assert.Equal(t, []string{"written while down"}, c2.get())
}

func TestTailer_PersistentStoreIgnoresForeignCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eqlog.txt")
	writeFile(t, path, header+"existing\n")

	store := &FileStore{dir: dir}
	require.NoError(t, store.Save(path, Checkpoint{Signature: "deadbeef", Offset: 3}))

	tl, c := newTestTailer(t, path, Options{Store: store})
	tl.Poll()
	assert.Empty(t, c.get())

	cp, ok, err := store.Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, "deadbeef", cp.Signature)
}

// ===== Background session =====

func TestTailer_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header)

	c := &collector{}
	tl := New(path, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, tl.Start(context.Background(), c.add))
	assert.ErrorIs(t, tl.Start(context.Background(), c.add), ErrRunning)

	appendFile(t, path, "live line\n")
	require.Eventually(t, func() bool { return len(c.get()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tl.Stop())
	appendFile(t, path, "after stop\n")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"live line"}, c.get())
	assert.Equal(t, 0, tl.Poll())

	// Stop is idempotent.
	require.NoError(t, tl.Stop())
}

func TestTailer_OffsetTracksReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqlog.txt")
	writeFile(t, path, header)

	tl, _ := newTestTailer(t, path, Options{})
	assert.Equal(t, int64(len(header)), tl.Offset())

	appendFile(t, path, "abc\n")
	tl.Poll()
	assert.Equal(t, int64(len(header)+4), tl.Offset())
}
