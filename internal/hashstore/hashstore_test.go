package hashstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_OpenTakesExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "codebase")
	require.NoError(t, os.MkdirAll(root, 0o755))

	s1, err := Open(dir, root)
	require.NoError(t, err)
	defer func() { _ = s1.Close() }()

	_, err = Open(dir, root)
	require.Error(t, err)
}

func TestStore_UpsertGetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, filepath.Join(dir, "codebase"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	s.Upsert("main.go", "abc123", 1000)
	h, ok := s.Get("main.go")
	require.True(t, ok)
	require.Equal(t, "abc123", h)

	m, ok := s.Mtime("main.go")
	require.True(t, ok)
	require.Equal(t, int64(1000), m)

	require.Equal(t, 1, s.Len())

	s.Remove("main.go")
	_, ok = s.Get("main.go")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStore_SaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "codebase")
	s, err := Open(dir, root)
	require.NoError(t, err)

	s.Upsert("a.go", "hash-a", 111)
	s.Upsert("b.go", "hash-b", 222)
	s.SetLastFullScan(999)
	require.NoError(t, s.Save())
	require.NoError(t, s.Close())

	s2, err := Open(dir, root)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	require.NoError(t, s2.Initialize())

	require.Equal(t, 2, s2.Len())
	h, ok := s2.Get("a.go")
	require.True(t, ok)
	require.Equal(t, "hash-a", h)
	require.Equal(t, int64(999), s2.LastFullScan())
}

func TestStore_InitializeOnMissingSnapshotIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, filepath.Join(dir, "codebase"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Initialize())
	require.Equal(t, 0, s.Len())
}

func TestStore_MerkleRootStableUnderInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, filepath.Join(dir, "a"))
	require.NoError(t, err)
	defer func() { _ = s1.Close() }()
	s1.Upsert("x.go", "h1", 1)
	s1.Upsert("y.go", "h2", 2)

	s2, err := Open(dir, filepath.Join(dir, "b"))
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	s2.Upsert("y.go", "h2", 2)
	s2.Upsert("x.go", "h1", 1)

	require.Equal(t, s1.MerkleRoot(), s2.MerkleRoot())
}

func TestStore_MerkleRootChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, filepath.Join(dir, "codebase"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	before := s.MerkleRoot()
	s.Upsert("x.go", "h1", 1)
	after := s.MerkleRoot()
	require.NotEqual(t, before, after)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	require.Len(t, h, 64)

	h2, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, h, h2)
}

func TestHashFile_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := HashFile(dir)
	require.Error(t, err)
}

func TestDelete_MissingSnapshotIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Delete(dir, filepath.Join(dir, "nope")))
}

func TestPathFor_DeterministicPerRoot(t *testing.T) {
	dir := t.TempDir()
	a := PathFor(dir, "/codebase/a")
	b := PathFor(dir, "/codebase/a")
	c := PathFor(dir, "/codebase/b")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
