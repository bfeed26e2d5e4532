package storagenode

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicThenReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path := store.Path("dataset.txt")
	require.NoError(t, store.WriteAtomic(path, strings.NewReader("line1\nline2\nline3\n")))

	n, err := store.LineCount(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)

	lines, err := store.ReadLineRange(path, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line2", "line3"}, lines)
}

func TestAppendLockedAccumulates(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path := store.Path("out.txt")
	require.NoError(t, store.AppendLocked(path, []byte("a\n")))
	require.NoError(t, store.AppendLocked(path, []byte("b\n")))

	lines, err := store.ReadLineRange(path, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(store.Path("ghost")))
}

func TestPurgeRecreatesSkeleton(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileStore(base)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(store.Path("dataset.txt"), strings.NewReader("x\n")))

	require.NoError(t, store.Purge())

	_, err = store.Size(store.Path("dataset.txt"))
	assert.Error(t, err)

	info, err := filepath.Glob(filepath.Join(base, "mr*"))
	require.NoError(t, err)
	assert.Len(t, info, 2)
}
