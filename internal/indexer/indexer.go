// Package indexer transforms one file into insertable vectorstore.Chunk
// records: read bytes, delegate to the external chunker, request embeddings,
// and produce chunk records ready for insertion. The chunker and embedder
// are external collaborators behind interfaces; concrete chunkers live in
// indexer/chunk.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/amanmcp/syncore/internal/vectorstore"
)

// Tuple is one unit the chunker produces.
type Tuple struct {
	Content   string
	StartLine int
	EndLine   int
	Language  string
}

// Chunker is the code/AST splitter, an external collaborator.
type Chunker interface {
	Split(ctx context.Context, relativePath string, content []byte, language string) ([]Tuple, error)
}

// Embedder produces dense vectors for chunk text, an external collaborator.
// Dimension must equal the owning collection's configured dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// DefaultChunkBudget is the per-run total chunk limit.
const DefaultChunkBudget = 450_000

// DefaultMaxFileSize skips oversized files without erroring.
const DefaultMaxFileSize = 10 * 1024 * 1024 // 10MiB

// IDHexLen is the stable hex-prefix length chunk IDs are truncated to, sized
// for a typical vector store primary-key limit.
const IDHexLen = 40

// ErrLimitReached is returned by ProcessFile once the indexer has emitted its
// configured chunk budget within a run, together with the chunks it built.
var ErrLimitReached = errors.New("indexer: chunk budget reached")

// Indexer turns files into Chunk batches, enforcing a process-wide (really:
// per-run) chunk budget.
type Indexer struct {
	Chunker     Chunker
	Embedder    Embedder
	Logger      *slog.Logger
	ChunkBudget int
	MaxFileSize int64

	mu     sync.Mutex
	emitted int
}

// New constructs an Indexer with spec defaults filled in.
func New(chunker Chunker, embedder Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		Chunker:     chunker,
		Embedder:    embedder,
		Logger:      logger,
		ChunkBudget: DefaultChunkBudget,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// ResetBudget starts a fresh per-run chunk budget counter; call once at the
// start of each SyncController workflow A invocation.
func (ix *Indexer) ResetBudget() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.emitted = 0
}

// Emitted returns the number of chunks emitted so far in the current run.
func (ix *Indexer) Emitted() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.emitted
}

// ProcessFile reads, chunks, and embeds one file, returning its chunk
// records. Read and embed failures are recoverable: the caller should count
// them and move on rather than abort the whole run.
//
// When the per-run chunk budget is reached mid-file, ProcessFile returns
// the chunks produced so far alongside ErrLimitReached; callers must stop
// issuing further ProcessFile calls for the run once they see it.
func (ix *Indexer) ProcessFile(ctx context.Context, absPath, relativePath, codebasePath string) ([]vectorstore.Chunk, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("indexer: stat %s: %w", relativePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("indexer: refusing to index directory %s", relativePath)
	}
	if info.Size() > ix.MaxFileSize {
		ix.Logger.Warn("indexer: skipping oversized file", "path", relativePath, "size", info.Size())
		return nil, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("indexer: read %s: %w", relativePath, err)
	}
	if isBinary(data) {
		ix.Logger.Warn("indexer: skipping binary file", "path", relativePath)
		return nil, nil
	}

	language := languageFromExtension(filepath.Ext(relativePath))
	tuples, err := ix.Chunker.Split(ctx, relativePath, data, language)
	if err != nil {
		return nil, fmt.Errorf("indexer: chunk %s: %w", relativePath, err)
	}
	if len(tuples) == 0 {
		return nil, nil
	}

	ix.mu.Lock()
	remaining := ix.ChunkBudget - ix.emitted
	ix.mu.Unlock()
	if remaining <= 0 {
		return nil, ErrLimitReached
	}
	limited := false
	if len(tuples) > remaining {
		tuples = tuples[:remaining]
		limited = true
	}

	texts := make([]string, len(tuples))
	for i, t := range tuples {
		texts[i] = t.Content
	}
	vectors, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("indexer: embed %s: %w", relativePath, err)
	}
	if len(vectors) != len(tuples) {
		return nil, fmt.Errorf("indexer: embedder returned %d vectors for %d chunks", len(vectors), len(tuples))
	}

	ext := filepath.Ext(relativePath)
	chunks := make([]vectorstore.Chunk, 0, len(tuples))
	for i, t := range tuples {
		id := chunkID(relativePath, t.StartLine, t.EndLine, t.Content)
		chunks = append(chunks, vectorstore.Chunk{
			ID:            id,
			Content:       t.Content,
			Vector:        vectors[i],
			RelativePath:  relativePath,
			StartLine:     t.StartLine,
			EndLine:       t.EndLine,
			FileExtension: ext,
			Metadata: map[string]any{
				"codebasePath": codebasePath,
				"language":     t.Language,
			},
		})
	}

	ix.mu.Lock()
	ix.emitted += len(chunks)
	ix.mu.Unlock()

	if limited {
		return chunks, ErrLimitReached
	}
	return chunks, nil
}

// chunkID computes the stable chunk primary key:
// sha256(relative_path || ":" || start_line || ":" || end_line || ":" ||
// text), truncated to IDHexLen hex characters.
func chunkID(relativePath string, startLine, endLine int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%d:%s", relativePath, startLine, endLine, content)
	sum := h.Sum(nil)
	hexStr := hex.EncodeToString(sum)
	if len(hexStr) > IDHexLen {
		hexStr = hexStr[:IDHexLen]
	}
	return hexStr
}

// isBinary sniffs the first 8000 bytes for a NUL byte.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

var extToLanguage = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".java": "java",
	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cc": "cpp",
	".rs": "rust", ".rb": "ruby", ".md": "markdown",
}

func languageFromExtension(ext string) string {
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return "text"
}
