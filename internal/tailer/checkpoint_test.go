// internal/tailer/checkpoint_test.go
package tailer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in     string
		prefix string
	}{
		{"/home/me/Logs/eqlog_Caster_P1999.txt", "homemelogseqlog_caster_p1999txt-"},
		{"  C:\\EQ\\Logs\\eqlog.txt ", "ceqlogseqlogtxt-"},
		{"my  log -- file", "my-log-file-"},
	}
	for _, tt := range tests {
		got := Slug(tt.in)
		assert.True(t, strings.HasPrefix(got, tt.prefix), "Slug(%q) = %q", tt.in, got)
		assert.Len(t, got, len(tt.prefix)+8, tt.in)
	}

	assert.Equal(t, Slug("/logs/a.txt"), Slug(" /logs/a.txt "))
}

func TestSlug_DistinctPaths(t *testing.T) {
	pairs := [][2]string{
		{"/logs/a.b", "/logs/ab"},
		{"/logs/A.txt", "/logs/a.txt"},
		{"/logs/a-b", "/logs/a.b"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, Slug(p[0]), Slug(p[1]), "%s vs %s", p[0], p[1])
	}

	store := NewMemoryStore()
	require.NoError(t, store.Save("/logs/a.b", Checkpoint{Signature: "one", Offset: 10}))
	require.NoError(t, store.Save("/logs/ab", Checkpoint{Signature: "two", Offset: 20}))
	cp, ok, err := store.Load("/logs/a.b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", cp.Signature)
}

func TestStores(t *testing.T) {
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "cp"))
	require.NoError(t, err)

	stores := map[string]CheckpointStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Load("/logs/a.txt")
			require.NoError(t, err)
			assert.False(t, ok)

			cp := Checkpoint{Signature: "0badf00d", ModTime: 1700000000, Offset: 42}
			require.NoError(t, store.Save("/logs/a.txt", cp))

			got, ok, err := store.Load("/logs/a.txt")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, cp, got)

			require.NoError(t, store.Delete("/logs/a.txt"))
			require.NoError(t, store.Delete("/logs/a.txt"))
			_, ok, _ = store.Load("/logs/a.txt")
			assert.False(t, ok)
		})
	}

	assert.False(t, NewMemoryStore().Persistent())
	assert.True(t, fileStore.Persistent())
}

func TestFileStore_FileName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("/logs/My Log.txt", Checkpoint{Offset: 1}))
	matches, err := filepath.Glob(filepath.Join(dir, "logsmy-logtxt-*.checkpoint"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	short, full, err := Signature(path, 32)
	require.NoError(t, err)
	assert.False(t, full)

	sig, full, err := Signature(path, 4)
	require.NoError(t, err)
	assert.True(t, full)
	assert.NotEqual(t, short, sig)

	again, _, _ := Signature(path, 4)
	assert.Equal(t, sig, again)
}
