package syncctl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amanmcp/syncore/internal/detect"
	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
	"github.com/amanmcp/syncore/internal/indexer"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/vectorstore/embedded"
)

// fakeChunker treats the whole file as one chunk, avoiding a dependency on
// indexer/chunk's tree-sitter grammars from this package's tests.
type fakeChunker struct{}

func (fakeChunker) Split(_ context.Context, _ string, content []byte, language string) ([]indexer.Tuple, error) {
	if len(content) == 0 {
		return nil, nil
	}
	return []indexer.Tuple{{Content: string(content), StartLine: 1, EndLine: 1, Language: language}}, nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) Dimension() int { return f.dim }

// newTestController wires a real hashstore/ignore/detect/indexer stack
// against an in-process embedded.Store, so workflow tests exercise the
// actual state machine rather than mocks.
func newTestController(t *testing.T) (*Controller, string) {
	t.Helper()
	stateDir := t.TempDir()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n"), 0o644))

	hashStore, err := hashstore.Open(stateDir, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hashStore.Close() })
	require.NoError(t, hashStore.Initialize())

	matcher := ignore.New()
	detector := detect.New(root, hashStore, matcher, nil)
	ix := indexer.New(fakeChunker{}, fakeEmbedder{dim: 4}, nil)

	c := New(Config{
		Root:           root,
		CollectionName: "test_collection",
		Hash:           hashStore,
		Ignore:         matcher,
		Detector:       detector,
		Indexer:        ix,
		Store:          embedded.New(),
		Audit:          observability.NewAuditLog(),
	})
	t.Cleanup(c.Stop)
	return c, root
}

func TestController_Index_TransitionsToIndexed(t *testing.T) {
	c, _ := newTestController(t)

	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)
	require.Equal(t, 2, res.Counts.Added)

	st := c.Status()
	require.Equal(t, StatusIndexed, st.Status)
	require.Equal(t, 2, st.IndexedFiles)
}

func TestController_Index_RejectsConcurrentIndex(t *testing.T) {
	c, _ := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	c.mu.Lock()
	c.state.Status = StatusIndexing
	c.mu.Unlock()

	res = c.Index(context.Background(), false)
	require.Error(t, res.Err)
}

func TestController_SyncNow_DetectsIncrementalChanges(t *testing.T) {
	c, root := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "c.go"), []byte("package c\n"), 0o644))

	res = c.SyncNow()
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Counts.Added)
}

func TestController_Clear_ReturnsToNotIndexed(t *testing.T) {
	c, _ := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	res = c.Clear()
	require.NoError(t, res.Err)
	require.Equal(t, StatusNotIndexed, c.Status().Status)
	require.Equal(t, 0, c.Hash.Len())
}

func TestController_Clear_RejectsWhileIndexing(t *testing.T) {
	c, _ := newTestController(t)
	c.mu.Lock()
	c.state.Status = StatusIndexing
	c.mu.Unlock()

	res := c.Clear()
	require.Error(t, res.Err)
}

func TestController_PendingOpsZeroWithoutWatcher(t *testing.T) {
	c, _ := newTestController(t)
	require.Equal(t, 0, c.PendingOps())
}

func TestController_RealtimeEnableDisable(t *testing.T) {
	c, _ := newTestController(t)
	require.False(t, c.RealtimeEnabled())

	require.NoError(t, c.EnableRealtime(0))
	require.True(t, c.RealtimeEnabled())

	c.DisableRealtime()
	require.False(t, c.RealtimeEnabled())
}

func TestController_SnapshotReportsRoot(t *testing.T) {
	c, root := newTestController(t)
	snap := c.Snapshot()
	require.Equal(t, root, snap.Path)
}
