// Package embedded is an in-process reference implementation of
// vectorstore.Adapter, used by the test suite and by a --embedded CLI mode
// for small codebases with no external vector service configured. It keeps
// one coder/hnsw graph per collection for the dense side and a small
// BM25-like scorer over chunk content for the sparse side, fusing both with
// the same reciprocal-rank-fusion helper the remote adapter uses.
package embedded

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/vectorstore"
)

type collection struct {
	dimension int
	graph     *hnsw.Graph[uint64]
	idMap     map[string]uint64
	keyMap    map[uint64]string
	nextKey   uint64
	chunks    map[string]vectorstore.Chunk // id -> chunk, authoritative record store
	loaded    bool
}

// Store is the embedded Adapter.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New constructs an empty embedded store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

var _ vectorstore.Adapter = (*Store)(nil)

func (s *Store) CreateHybridCollection(_ context.Context, name string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil // idempotent on already-exists
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	s.collections[name] = &collection{
		dimension: dimension,
		graph:     graph,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		chunks:    make(map[string]vectorstore.Chunk),
		loaded:    true,
	}
	return nil
}

func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) HasCollection(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Store) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) get(name string) (*collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("embedded: collection %q does not exist", name)
	}
	return c, nil
}

func (s *Store) Insert(_ context.Context, name string, chunks []vectorstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("embedded: collection %q does not exist", name)
	}
	return c.insertLocked(chunks)
}

func (c *collection) insertLocked(chunks []vectorstore.Chunk) error {
	for _, ch := range chunks {
		if len(ch.Vector) != c.dimension {
			return serr.New(serr.KindIntegrity, fmt.Sprintf("embedding dimension %d != collection dimension %d", len(ch.Vector), c.dimension), nil)
		}
		if existingKey, ok := c.idMap[ch.ID]; ok {
			delete(c.keyMap, existingKey)
			delete(c.idMap, ch.ID)
		}
		key := c.nextKey
		c.nextKey++
		c.graph.Add(hnsw.MakeNode(key, ch.Vector))
		c.idMap[ch.ID] = key
		c.keyMap[key] = ch.ID
		c.chunks[ch.ID] = ch
	}
	return nil
}

func (s *Store) DeleteByIDs(_ context.Context, name string, ids []string) error {
	c, err := s.get(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := c.idMap[id]; ok {
			delete(c.keyMap, key)
			delete(c.idMap, id)
		}
		delete(c.chunks, id)
	}
	return nil
}

func (s *Store) BulkDelete(ctx context.Context, name string, ids []string) (vectorstore.BulkDeleteResult, error) {
	const batchSize = 1000
	result := vectorstore.BulkDeleteResult{}
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		if err := s.DeleteByIDs(ctx, name, batch); err != nil {
			result.FailedIDs = append(result.FailedIDs, batch...)
			continue
		}
		result.DeletedCount += len(batch)
	}
	return result, nil
}

func (s *Store) Query(_ context.Context, name string, filterExpr string, _ []string, limit int) ([]vectorstore.Chunk, error) {
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := parseRelativePathFilter(filterExpr)
	var out []vectorstore.Chunk
	for _, ch := range c.chunks {
		if path != "" && ch.RelativePath != path {
			continue
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// parseRelativePathFilter extracts the path from the one filter shape this
// core emits: `relativePath == "<path>"`. A richer expression language is
// out of scope.
func parseRelativePathFilter(expr string) string {
	const marker = "relativePath == "
	idx := strings.Index(expr, marker)
	if idx < 0 {
		return ""
	}
	v := strings.TrimSpace(expr[idx+len(marker):])
	return strings.Trim(v, `"`)
}

func (s *Store) AtomicFileUpdate(ctx context.Context, name, relativePath string, newChunks []vectorstore.Chunk) (vectorstore.FileUpdateResult, error) {
	backup, err := s.Query(ctx, name, fmt.Sprintf("relativePath == %q", relativePath), nil, 0)
	if err != nil {
		return vectorstore.FileUpdateResult{}, err
	}

	ids := make([]string, len(backup))
	for i, ch := range backup {
		ids[i] = ch.ID
	}
	if err := s.DeleteByIDs(ctx, name, ids); err != nil {
		return vectorstore.FileUpdateResult{}, err
	}

	if err := s.Insert(ctx, name, newChunks); err != nil {
		_ = s.Insert(ctx, name, backup) // rollback
		return vectorstore.FileUpdateResult{}, err
	}

	return vectorstore.FileUpdateResult{OK: true, ChunksProcessed: len(newChunks)}, nil
}

func (s *Store) BatchFileUpdates(ctx context.Context, name string, updates map[string][]vectorstore.Chunk, _ int) (vectorstore.BatchUpdateResult, error) {
	result := vectorstore.BatchUpdateResult{Failures: make(map[string]error)}
	for path, chunks := range updates {
		r, err := s.AtomicFileUpdate(ctx, name, path, chunks)
		if err != nil {
			result.Failures[path] = err
			continue
		}
		result.FilesProcessed++
		result.ChunksInserted += r.ChunksProcessed
	}
	return result, nil
}

func (s *Store) HybridSearch(_ context.Context, name string, dense []float32, queryText string, limit int, filterExpr string) ([]vectorstore.SearchResult, error) {
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := parseRelativePathFilter(filterExpr)

	var denseRanked vectorstore.RankedList
	if len(dense) == c.dimension && c.graph.Len() > 0 {
		nodes := c.graph.Search(dense, limit*4+10)
		for _, n := range nodes {
			id, ok := c.keyMap[n.Key]
			if !ok {
				continue
			}
			ch, ok := c.chunks[id]
			if !ok || (path != "" && ch.RelativePath != path) {
				continue
			}
			denseRanked = append(denseRanked, ch)
		}
	}

	sparseRanked := bm25Rank(c.chunks, queryText, path)

	fused := vectorstore.FuseRRF(denseRanked, sparseRanked)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

func (s *Store) CheckCollectionLimit(_ context.Context) (bool, error) {
	return true, nil // no server-side cap on the embedded store
}

func (s *Store) Close() error { return nil }

// bm25Rank is a minimal BM25-flavored lexical scorer over chunk content,
// standing in for the sparse_vector field a real vector store builds
// server-side.
func bm25Rank(chunks map[string]vectorstore.Chunk, query, pathFilter string) vectorstore.RankedList {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		chunk vectorstore.Chunk
		score float64
	}
	var scoredList []scored
	for _, ch := range chunks {
		if pathFilter != "" && ch.RelativePath != pathFilter {
			continue
		}
		content := strings.ToLower(ch.Content)
		var score float64
		for _, t := range terms {
			score += float64(strings.Count(content, t))
		}
		if score > 0 {
			scoredList = append(scoredList, scored{chunk: ch, score: score})
		}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	out := make(vectorstore.RankedList, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.chunk
	}
	return out
}
