package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChunker struct {
	tuples []Tuple
	err    error
}

func (f *fakeChunker) Split(_ context.Context, _ string, _ []byte, _ string) ([]Tuple, error) {
	return f.tuples, f.err
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func writeTempFile(t *testing.T, content string) (dir, abs, rel string) {
	t.Helper()
	dir = t.TempDir()
	abs = filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return dir, abs, "main.go"
}

func TestIndexer_ProcessFile_ProducesChunksWithStableIDs(t *testing.T) {
	chunker := &fakeChunker{tuples: []Tuple{
		{Content: "func main() {}", StartLine: 1, EndLine: 1, Language: "go"},
	}}
	embedder := &fakeEmbedder{dim: 4}
	ix := New(chunker, embedder, nil)

	_, abs, rel := writeTempFile(t, "package main\nfunc main() {}\n")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].ID, IDHexLen)
	require.Equal(t, "go", chunks[0].Metadata["language"])
	require.Equal(t, ".go", chunks[0].FileExtension)
	require.Len(t, chunks[0].Vector, 4)

	chunks2, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.NoError(t, err)
	require.Equal(t, chunks[0].ID, chunks2[0].ID)
}

func TestIndexer_ProcessFile_NoTuplesReturnsNil(t *testing.T) {
	ix := New(&fakeChunker{}, &fakeEmbedder{dim: 4}, nil)
	_, abs, rel := writeTempFile(t, "")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.NoError(t, err)
	require.Nil(t, chunks)
}

func TestIndexer_ProcessFile_SkipsBinary(t *testing.T) {
	ix := New(&fakeChunker{tuples: []Tuple{{Content: "x"}}}, &fakeEmbedder{dim: 4}, nil)
	_, abs, rel := writeTempFile(t, "binary\x00content")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.NoError(t, err)
	require.Nil(t, chunks)
}

func TestIndexer_ProcessFile_SkipsOversizedFile(t *testing.T) {
	ix := New(&fakeChunker{tuples: []Tuple{{Content: "x"}}}, &fakeEmbedder{dim: 4}, nil)
	ix.MaxFileSize = 4
	_, abs, rel := writeTempFile(t, "way more than four bytes")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.NoError(t, err)
	require.Nil(t, chunks)
}

func TestIndexer_ProcessFile_RejectsDirectory(t *testing.T) {
	ix := New(&fakeChunker{}, &fakeEmbedder{dim: 4}, nil)
	dir := t.TempDir()
	_, err := ix.ProcessFile(context.Background(), dir, ".", "/codebase")
	require.Error(t, err)
}

func TestIndexer_ProcessFile_EnforcesChunkBudget(t *testing.T) {
	chunker := &fakeChunker{tuples: []Tuple{
		{Content: "a", StartLine: 1, EndLine: 1},
		{Content: "b", StartLine: 2, EndLine: 2},
		{Content: "c", StartLine: 3, EndLine: 3},
	}}
	ix := New(chunker, &fakeEmbedder{dim: 2}, nil)
	ix.ChunkBudget = 2

	_, abs, rel := writeTempFile(t, "package main\n")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.ErrorIs(t, err, ErrLimitReached)
	require.Len(t, chunks, 2)
	require.Equal(t, 2, ix.Emitted())
}

func TestIndexer_ProcessFile_BudgetAlreadyExhausted(t *testing.T) {
	chunker := &fakeChunker{tuples: []Tuple{{Content: "a", StartLine: 1, EndLine: 1}}}
	ix := New(chunker, &fakeEmbedder{dim: 2}, nil)
	ix.ChunkBudget = 1
	ix.emitted = 1

	_, abs, rel := writeTempFile(t, "package main\n")
	chunks, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.ErrorIs(t, err, ErrLimitReached)
	require.Nil(t, chunks)
}

func TestIndexer_ProcessFile_ResetBudget(t *testing.T) {
	ix := New(&fakeChunker{}, &fakeEmbedder{dim: 2}, nil)
	ix.emitted = 5
	ix.ResetBudget()
	require.Equal(t, 0, ix.Emitted())
}

func TestIndexer_ProcessFile_ChunkErrorPropagates(t *testing.T) {
	ix := New(&fakeChunker{err: errors.New("parse failure")}, &fakeEmbedder{dim: 2}, nil)
	_, abs, rel := writeTempFile(t, "package main\n")
	_, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.Error(t, err)
}

func TestIndexer_ProcessFile_EmbedErrorPropagates(t *testing.T) {
	chunker := &fakeChunker{tuples: []Tuple{{Content: "a", StartLine: 1, EndLine: 1}}}
	ix := New(chunker, &fakeEmbedder{dim: 2, err: errors.New("embed down")}, nil)
	_, abs, rel := writeTempFile(t, "package main\n")
	_, err := ix.ProcessFile(context.Background(), abs, rel, "/codebase")
	require.Error(t, err)
}
