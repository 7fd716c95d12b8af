package freshness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amanmcp/syncore/internal/detect"
	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
	"github.com/amanmcp/syncore/internal/indexer"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/syncctl"
	"github.com/amanmcp/syncore/internal/vectorstore/embedded"
)

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

func newTestController(t *testing.T) (*syncctl.Controller, string) {
	t.Helper()
	stateDir := t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	hashStore, err := hashstore.Open(stateDir, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hashStore.Close() })
	require.NoError(t, hashStore.Initialize())

	matcher := ignore.New()
	detector := detect.New(root, hashStore, matcher, nil)
	ix := indexer.New(fakeChunker{}, fakeEmbedder{dim: 4}, nil)

	c := syncctl.New(syncctl.Config{
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

func TestGate_Disabled_ShortCircuits(t *testing.T) {
	c, _ := newTestController(t)
	g := New(false, time.Second, nil, nil)
	res := g.CheckAndMaybeSync(context.Background(), c)
	require.False(t, res.HadChanges)
	require.False(t, res.FromCache)
}

func TestGate_NoChanges_CachesNegativeResult(t *testing.T) {
	c, _ := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	g := New(true, time.Minute, nil, nil)
	first := g.CheckAndMaybeSync(context.Background(), c)
	require.False(t, first.HadChanges)
	require.False(t, first.FromCache)

	second := g.CheckAndMaybeSync(context.Background(), c)
	require.True(t, second.FromCache)
}

func TestGate_DetectsAndSyncsChanges(t *testing.T) {
	c, root := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package new\n"), 0o644))

	g := New(true, time.Minute, nil, nil)
	out := g.CheckAndMaybeSync(context.Background(), c)
	require.True(t, out.HadChanges)
	require.Equal(t, 1, out.ChangedCount)
}

func TestGate_Invalidate_ForcesRecheck(t *testing.T) {
	c, _ := newTestController(t)
	res := c.Index(context.Background(), false)
	require.NoError(t, res.Err)

	g := New(true, time.Minute, nil, nil)
	g.CheckAndMaybeSync(context.Background(), c)
	g.Invalidate(c.Root)

	out := g.CheckAndMaybeSync(context.Background(), c)
	require.False(t, out.FromCache)
}
