package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
)

func newDetector(t *testing.T, root string) (*ChangeDetector, *hashstore.Store) {
	t.Helper()
	store, err := hashstore.Open(t.TempDir(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(root, store, ignore.New(), nil), store
}

func applyResult(store *hashstore.Store, res Result) {
	for _, c := range res.Added {
		store.Upsert(c.Path, c.Hash, hashstore.NowMillis())
	}
	for _, c := range res.Modified {
		store.Upsert(c.Path, c.Hash, hashstore.NowMillis())
	}
	for _, p := range res.Removed {
		store.Remove(p)
	}
}

// TestFullScan_SoundAndComplete checks Testable Properties 2-3: every
// reported change corresponds to a real filesystem difference, and every
// real difference is reported.
func TestFullScan_SoundAndComplete(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.go"), []byte("package b"), 0o644))

	d, store := newDetector(t, root)
	res, err := d.FullScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.Empty(t, res.Modified)
	assert.Empty(t, res.Removed)
	applyResult(store, res)

	// Nothing changed: second scan reports no changes.
	res2, err := d.FullScan(context.Background())
	require.NoError(t, err)
	assert.True(t, res2.Empty())

	// Modify one file.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a // changed"), 0o644))
	res3, err := d.FullScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res3.Modified, 1)
	assert.Equal(t, "a.go", res3.Modified[0].Path)
	applyResult(store, res3)

	// Remove one file.
	require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.go")))
	res4, err := d.FullScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/b.go"}, res4.Removed)
}

func TestFullScan_RespectsIgnore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.go"), []byte("package a"), 0o644))

	d, _ := newDetector(t, root)
	res, err := d.FullScan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "keep.go", res.Added[0].Path)
}

// TestIncrementalScan_EquivalentToFullScan checks Testable Property 4: an
// incremental scan over an unchanged tree agrees with a full scan.
func TestIncrementalScan_EquivalentToFullScan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	d, store := newDetector(t, root)
	full, err := d.FullScan(context.Background())
	require.NoError(t, err)
	applyResult(store, full)
	store.SetLastFullScan(hashstore.NowMillis())

	inc, promoted, err := d.IncrementalScan(context.Background())
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.True(t, inc.Empty())
}

func TestIncrementalScan_PromotesAfterInterval(t *testing.T) {
	root := t.TempDir()
	d, store := newDetector(t, root)
	d.FullScanInterval = time.Millisecond
	store.SetLastFullScan(hashstore.NowMillis() - 1000)

	_, promoted, err := d.IncrementalScan(context.Background())
	require.NoError(t, err)
	assert.True(t, promoted)
}

func TestUpdateSingleFile_Removed(t *testing.T) {
	root := t.TempDir()
	d, _ := newDetector(t, root)
	change, removed, err := d.UpdateSingleFile(filepath.Join(root, "gone.go"))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, "gone.go", change.Path)
}

func TestUpdateSingleFile_Ignored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0o644))

	d, _ := newDetector(t, root)
	change, removed, err := d.UpdateSingleFile(filepath.Join(root, ".git", "HEAD"))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, change.Path)
}
