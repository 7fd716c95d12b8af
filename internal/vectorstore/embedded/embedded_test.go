package embedded

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp/syncore/internal/vectorstore"
)

func TestStore_CreateHybridCollectionIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 4))
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 4))

	ok, err := s.HasCollection(ctx, "coll")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_InsertRejectsWrongDimension(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 4))

	err := s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "1", Vector: []float32{1, 2}, Content: "x"},
	})
	require.Error(t, err)
}

func TestStore_InsertAndQueryByPath(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))

	require.NoError(t, s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "1", Vector: []float32{1, 0}, Content: "hello", RelativePath: "a.go"},
		{ID: "2", Vector: []float32{0, 1}, Content: "world", RelativePath: "b.go"},
	}))

	chunks, err := s.Query(ctx, "coll", `relativePath == "a.go"`, nil, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "1", chunks[0].ID)
}

func TestStore_AtomicFileUpdateReplacesChunksForPath(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))
	require.NoError(t, s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "old", Vector: []float32{1, 0}, Content: "old", RelativePath: "a.go"},
	}))

	res, err := s.AtomicFileUpdate(ctx, "coll", "a.go", []vectorstore.Chunk{
		{ID: "new", Vector: []float32{0, 1}, Content: "new", RelativePath: "a.go"},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.ChunksProcessed)

	chunks, err := s.Query(ctx, "coll", `relativePath == "a.go"`, nil, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].ID)
}

func TestStore_AtomicFileUpdateRemoveAll(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))
	require.NoError(t, s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "old", Vector: []float32{1, 0}, Content: "old", RelativePath: "a.go"},
	}))

	res, err := s.AtomicFileUpdate(ctx, "coll", "a.go", nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	chunks, err := s.Query(ctx, "coll", `relativePath == "a.go"`, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestStore_HybridSearchFusesDenseAndSparse(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))
	require.NoError(t, s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "1", Vector: []float32{1, 0}, Content: "authentication middleware", RelativePath: "auth.go"},
		{ID: "2", Vector: []float32{0, 1}, Content: "unrelated logging code", RelativePath: "log.go"},
	}))

	results, err := s.HybridSearch(ctx, "coll", []float32{1, 0}, "authentication", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "1", results[0].Chunk.ID)
}

func TestStore_HybridSearchUnknownCollectionErrors(t *testing.T) {
	s := New()
	_, err := s.HybridSearch(context.Background(), "missing", nil, "q", 10, "")
	require.Error(t, err)
}

func TestStore_DropCollectionRemovesIt(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))
	require.NoError(t, s.DropCollection(ctx, "coll"))

	ok, err := s.HasCollection(ctx, "coll")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_BulkDeleteReportsCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateHybridCollection(ctx, "coll", 2))
	require.NoError(t, s.Insert(ctx, "coll", []vectorstore.Chunk{
		{ID: "1", Vector: []float32{1, 0}, Content: "a", RelativePath: "a.go"},
		{ID: "2", Vector: []float32{0, 1}, Content: "b", RelativePath: "b.go"},
	}))

	res, err := s.BulkDelete(ctx, "coll", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedCount)
}
