// Package remote is the wire client for the external vector store: this
// core treats the vector engine itself as an external collaborator, and
// this package is the concrete client that talks to it. It targets a
// Redis deployment with the RediSearch module loaded, storing each chunk
// as a Redis HASH under a collection-scoped key prefix and driving a
// RediSearch index (FT.CREATE/FT.SEARCH) over those hashes for both the
// dense-vector KNN leg and the BM25 text-search leg of hybrid search.
// Connection construction/pool-size conventions follow the go-redis usage
// the rest of the retrieval pack already establishes for Redis clients.
package remote

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/vectorstore"
)

// Config configures the remote client's connection.
type Config struct {
	Address        string
	Username       string
	Password       string
	DB             int
	PoolSize       int
	MaxCollections int // 0 = unlimited; used by CheckCollectionLimit
}

// Client is the remote vectorstore.Adapter implementation.
type Client struct {
	rdb    *redis.Client
	cfg    Config
	logger *slog.Logger
	retry  serr.RetryConfig
	cb     *serr.CircuitBreaker
}

var _ vectorstore.Adapter = (*Client)(nil)

// New constructs a Client directly from a *redis.Client, typically acquired
// from the process-wide vectorstore.ConnectionPool.
func New(rdb *redis.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		retry:  serr.DefaultRetryConfig(),
		cb:     serr.NewCircuitBreaker("vectorstore-remote"),
	}
}

// Dial builds a *redis.Client from Config, suitable for registration with a
// vectorstore.ConnectionPool keyed by (Address, Username, token-presence).
func Dial(cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dial vector store: %w", err)
	}
	return rdb, nil
}

func metaKey(name string) string     { return "syncore:coll:" + name + ":meta" }
func chunkPrefix(name string) string { return "syncore:coll:" + name + ":chunk:" }
func chunkKey(name, id string) string {
	return chunkPrefix(name) + id
}
func indexName(name string) string { return "idx:" + name }

// collMeta is the JSON blob stored at metaKey, recording schema info that
// CreateHybridCollection's index-ready poll waits on.
type collMeta struct {
	Dimension int `json:"dimension"`
}

// chunk hash field names. content and metadata are analyzed/queryable
// TEXT fields, relativePath and fileExtension are TAG fields for exact
// filtering, vector is a raw float32 blob fed to RediSearch's HNSW field.
const (
	fieldID       = "id"
	fieldContent  = "content"
	fieldVector   = "vector"
	fieldPath     = "relativePath"
	fieldStart    = "startLine"
	fieldEnd      = "endLine"
	fieldExt      = "fileExtension"
	fieldMetadata = "metadata"
)

func (c *Client) CreateHybridCollection(ctx context.Context, name string, dimension int) error {
	exists, err := c.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil // idempotent on already-exists
	}

	meta := collMeta{Dimension: dimension}
	data, _ := json.Marshal(meta)
	if err := c.withRetry(ctx, func() error { return c.rdb.Set(ctx, metaKey(name), data, 0).Err() }); err != nil {
		return serr.New(serr.KindTransientStore, "create collection", err)
	}

	args := []interface{}{
		"FT.CREATE", indexName(name),
		"ON", "HASH",
		"PREFIX", "1", chunkPrefix(name),
		"SCHEMA",
		fieldContent, "TEXT",
		fieldVector, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dimension),
		"DISTANCE_METRIC", "COSINE",
		fieldPath, "TAG",
		fieldStart, "NUMERIC",
		fieldEnd, "NUMERIC",
		fieldExt, "TAG",
		fieldMetadata, "TEXT",
	}
	if err := c.withRetry(ctx, func() error {
		err := c.rdb.Do(ctx, args...).Err()
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return err
	}); err != nil {
		return serr.New(serr.KindTransientStore, "create search index", err)
	}

	// Poll FT.INFO until the index reports it has finished its background
	// build: initial 500ms, cap 5s, 60s overall timeout.
	if err := serr.PollWithBackoff(ctx, 500*time.Millisecond, 5*time.Second, 60*time.Second, func() (bool, error) {
		return c.indexReady(ctx, name)
	}); err != nil {
		return serr.New(serr.KindTransientStore, "wait for index ready", err)
	}

	return c.loadWithRetry(ctx, name)
}

// indexReady reports whether FT.INFO says the background index build has
// finished (RediSearch has no separate dense/sparse readiness signal; one
// index covers both fields here, so a single check stands in for both).
func (c *Client) indexReady(ctx context.Context, name string) (bool, error) {
	reply, err := c.rdb.Do(ctx, "FT.INFO", indexName(name)).Result()
	if err != nil {
		return false, err
	}
	fields, ok := reply.([]interface{})
	if !ok {
		return true, nil
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		if key != "indexing" {
			continue
		}
		switch v := fields[i+1].(type) {
		case int64:
			return v == 0, nil
		case string:
			return v == "0", nil
		}
	}
	return true, nil
}

// loadWithRetry confirms the collection is reachable with up to 5 retries
// and exponential backoff (1s * 2^n). RediSearch has no explicit "load
// into memory" verb; FT.INFO doubles as the readiness probe the spec's
// load-with-retry step performs against engines that do have one.
func (c *Client) loadWithRetry(ctx context.Context, name string) error {
	cfg := serr.RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 32 * time.Second, Multiplier: 2.0}
	return serr.Retry(ctx, cfg, func() error {
		return c.rdb.Do(ctx, "FT.INFO", indexName(name)).Err()
	})
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	err := c.rdb.Do(ctx, "FT.DROPINDEX", indexName(name), "DD").Err()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "unknown index") {
		return serr.New(serr.KindTransientStore, "drop collection", err)
	}
	if err := c.rdb.Del(ctx, metaKey(name)).Err(); err != nil && err != redis.Nil {
		return serr.New(serr.KindTransientStore, "drop collection metadata", err)
	}
	return nil
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	n, err := c.rdb.Exists(ctx, metaKey(name)).Result()
	if err != nil {
		return false, serr.New(serr.KindTransientStore, "has collection", err)
	}
	return n > 0, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var out []string
	iter := c.rdb.Scan(ctx, 0, "syncore:coll:*:meta", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		name := strings.TrimSuffix(strings.TrimPrefix(key, "syncore:coll:"), ":meta")
		out = append(out, name)
	}
	if err := iter.Err(); err != nil {
		return nil, serr.New(serr.KindTransientStore, "list collections", err)
	}
	return out, nil
}

func (c *Client) dimension(ctx context.Context, name string) (int, error) {
	data, err := c.rdb.Get(ctx, metaKey(name)).Bytes()
	if err != nil {
		return 0, err
	}
	var meta collMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, err
	}
	return meta.Dimension, nil
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

func chunkToHash(ch vectorstore.Chunk) map[string]interface{} {
	meta, _ := json.Marshal(ch.Metadata)
	return map[string]interface{}{
		fieldID:       ch.ID,
		fieldContent:  ch.Content,
		fieldVector:   vectorToBytes(ch.Vector),
		fieldPath:     ch.RelativePath,
		fieldStart:    ch.StartLine,
		fieldEnd:      ch.EndLine,
		fieldExt:      ch.FileExtension,
		fieldMetadata: string(meta),
	}
}

func hashToChunk(fields map[string]string) vectorstore.Chunk {
	start, _ := strconv.Atoi(fields[fieldStart])
	end, _ := strconv.Atoi(fields[fieldEnd])
	var metadata map[string]any
	_ = json.Unmarshal([]byte(fields[fieldMetadata]), &metadata)
	return vectorstore.Chunk{
		ID:            fields[fieldID],
		Content:       fields[fieldContent],
		Vector:        bytesToVector([]byte(fields[fieldVector])),
		RelativePath:  fields[fieldPath],
		StartLine:     start,
		EndLine:       end,
		FileExtension: fields[fieldExt],
		Metadata:      metadata,
	}
}

func (c *Client) Insert(ctx context.Context, name string, chunks []vectorstore.Chunk) error {
	dim, err := c.dimension(ctx, name)
	if err != nil {
		return serr.New(serr.KindTransientStore, "insert: resolve dimension", err)
	}

	pipe := c.rdb.TxPipeline()
	for _, ch := range chunks {
		if len(ch.Vector) != dim {
			return serr.New(serr.KindIntegrity, fmt.Sprintf("embedding dimension %d != collection dimension %d", len(ch.Vector), dim), nil)
		}
		pipe.HSet(ctx, chunkKey(name, ch.ID), chunkToHash(ch))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return serr.New(serr.KindTransientStore, "insert", err)
	}
	return nil
}

func (c *Client) DeleteByIDs(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKey(name, id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil && err != redis.Nil {
		return serr.New(serr.KindTransientStore, "delete by ids", err)
	}
	return nil
}

func (c *Client) getChunk(ctx context.Context, name, id string) (vectorstore.Chunk, error) {
	fields, err := c.rdb.HGetAll(ctx, chunkKey(name, id)).Result()
	if err != nil {
		return vectorstore.Chunk{}, err
	}
	if len(fields) == 0 {
		return vectorstore.Chunk{}, redis.Nil
	}
	return hashToChunk(fields), nil
}

// BulkDelete batches deletions (default 1000) and retries each batch with
// exponential backoff; it never returns an error for a single batch
// failure, only enumerates the IDs that could not be deleted.
func (c *Client) BulkDelete(ctx context.Context, name string, ids []string) (vectorstore.BulkDeleteResult, error) {
	const batchSize = 1000
	result := vectorstore.BulkDeleteResult{}
	cfg := serr.RetryConfig{MaxRetries: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2.0}

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		err := serr.Retry(ctx, cfg, func() error { return c.DeleteByIDs(ctx, name, batch) })
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, batch...)
			continue
		}
		result.DeletedCount += len(batch)
	}
	return result, nil
}

// escapeTagValue backslash-escapes RediSearch TAG-field punctuation so a
// relative path like "internal/foo.go" survives as one literal tag.
func escapeTagValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '.', '/', '-', '_', ':', '@', '{', '}', '(', ')', '[', ']', '"', '\'', ' ':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) Query(ctx context.Context, name string, filterExpr string, _ []string, limit int) ([]vectorstore.Chunk, error) {
	path := parsePathFilter(filterExpr)

	query := "*"
	if path != "" {
		query = fmt.Sprintf("@%s:{%s}", fieldPath, escapeTagValue(path))
	}
	if limit <= 0 {
		limit = 16384
	}

	reply, err := c.rdb.Do(ctx, "FT.SEARCH", indexName(name), query, "LIMIT", "0", strconv.Itoa(limit)).Result()
	if err != nil {
		return nil, serr.New(serr.KindTransientStore, "query", err)
	}
	chunks, _ := parseSearchReply(reply)
	return chunks, nil
}

func parsePathFilter(expr string) string {
	const marker = "relativePath == "
	idx := strings.Index(expr, marker)
	if idx < 0 {
		return ""
	}
	v := strings.TrimSpace(expr[idx+len(marker):])
	return strings.Trim(v, `"`)
}

// parseSearchReply decodes an FT.SEARCH reply of the form
// [total, docID1, [field, value, field, value, ...], docID2, [...], ...]
// into chunks, preserving result order (RediSearch returns hits
// best-match-first, which is the rank order hybrid fusion needs).
func parseSearchReply(reply interface{}) ([]vectorstore.Chunk, error) {
	top, ok := reply.([]interface{})
	if !ok || len(top) == 0 {
		return nil, nil
	}
	var out []vectorstore.Chunk
	for i := 1; i+1 < len(top); i += 2 {
		raw, ok := top[i+1].([]interface{})
		if !ok {
			continue
		}
		fields := make(map[string]string, len(raw)/2)
		for j := 0; j+1 < len(raw); j += 2 {
			k, _ := raw[j].(string)
			switch v := raw[j+1].(type) {
			case string:
				fields[k] = v
			case []byte:
				fields[k] = string(v)
			}
		}
		out = append(out, hashToChunk(fields))
	}
	return out, nil
}

// AtomicFileUpdate queries existing chunks for relativePath as a backup,
// deletes them, inserts the new set, and rolls back the backup on failure
// before retrying the whole sequence with exponential backoff.
func (c *Client) AtomicFileUpdate(ctx context.Context, name, relativePath string, newChunks []vectorstore.Chunk) (vectorstore.FileUpdateResult, error) {
	var result vectorstore.FileUpdateResult
	err := serr.Retry(ctx, c.retry, func() error {
		backup, err := c.Query(ctx, name, fmt.Sprintf("relativePath == %q", relativePath), nil, 0)
		if err != nil {
			return err
		}
		ids := make([]string, len(backup))
		for i, ch := range backup {
			ids[i] = ch.ID
		}

		if err := c.DeleteByIDs(ctx, name, ids); err != nil {
			return err
		}
		if err := c.Insert(ctx, name, newChunks); err != nil {
			_ = c.Insert(ctx, name, backup)
			return err
		}
		result = vectorstore.FileUpdateResult{OK: true, ChunksProcessed: len(newChunks)}
		return nil
	})
	if err != nil {
		return vectorstore.FileUpdateResult{Error: err}, serr.New(serr.KindTransientStore, "atomic file update", err)
	}
	return result, nil
}

// BatchFileUpdates runs AtomicFileUpdate per entry with bounded concurrency
// and a small inter-batch pause, aggregating per-file failures without
// aborting the set.
func (c *Client) BatchFileUpdates(ctx context.Context, name string, updates map[string][]vectorstore.Chunk, concurrency int) (vectorstore.BatchUpdateResult, error) {
	if concurrency <= 0 {
		concurrency = 5
	}
	type job struct {
		path   string
		chunks []vectorstore.Chunk
	}
	jobs := make(chan job, len(updates))
	for p, ch := range updates {
		jobs <- job{path: p, chunks: ch}
	}
	close(jobs)

	var mu sync.Mutex
	result := vectorstore.BatchUpdateResult{Failures: make(map[string]error)}

	done := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			for j := range jobs {
				r, err := c.AtomicFileUpdate(ctx, name, j.path, j.chunks)
				mu.Lock()
				if err != nil {
					result.Failures[j.path] = err
				} else {
					result.FilesProcessed++
					result.ChunksInserted += r.ChunksProcessed
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond) // small inter-batch pause
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < concurrency; i++ {
		<-done
	}
	return result, nil
}

// HybridSearch runs a dense KNN FT.SEARCH against the vector field and a
// BM25 text FT.SEARCH against the content field, then fuses the two
// independently-ranked result lists with reciprocal rank fusion.
func (c *Client) HybridSearch(ctx context.Context, name string, dense []float32, queryText string, limit int, filterExpr string) ([]vectorstore.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	path := parsePathFilter(filterExpr)
	tagFilter := "*"
	if path != "" {
		tagFilter = fmt.Sprintf("@%s:{%s}", fieldPath, escapeTagValue(path))
	}

	var denseRanked, sparseRanked vectorstore.RankedList

	if len(dense) > 0 {
		knnQuery := fmt.Sprintf("(%s)=>[KNN %d @%s $blob AS vector_score]", tagFilter, limit, fieldVector)
		reply, err := c.rdb.Do(ctx, "FT.SEARCH", indexName(name), knnQuery,
			"PARAMS", "2", "blob", vectorToBytes(dense),
			"SORTBY", "vector_score",
			"LIMIT", "0", strconv.Itoa(limit),
			"DIALECT", "2",
		).Result()
		if err != nil {
			return nil, serr.New(serr.KindTransientStore, "hybrid search: dense leg", err)
		}
		denseRanked, _ = parseSearchReply(reply)
	}

	if q := strings.TrimSpace(queryText); q != "" {
		terms := strings.Fields(q)
		escaped := make([]string, len(terms))
		for i, t := range terms {
			escaped[i] = escapeTextTerm(t)
		}
		textQuery := fmt.Sprintf("%s @%s:(%s)", tagFilter, fieldContent, strings.Join(escaped, "|"))
		reply, err := c.rdb.Do(ctx, "FT.SEARCH", indexName(name), textQuery,
			"LIMIT", "0", strconv.Itoa(limit),
			"DIALECT", "2",
		).Result()
		if err != nil {
			return nil, serr.New(serr.KindTransientStore, "hybrid search: sparse leg", err)
		}
		sparseRanked, _ = parseSearchReply(reply)
	}

	fused := vectorstore.FuseRRF(denseRanked, sparseRanked)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// escapeTextTerm escapes RediSearch TEXT-query special characters in one
// search term.
func escapeTextTerm(t string) string {
	var b strings.Builder
	for _, r := range t {
		switch r {
		case '-', '|', '!', '{', '}', '(', ')', '[', ']', '"', '~', '*', '@', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CheckCollectionLimit compares the number of collections ListCollections
// reports with Config.MaxCollections (0 means unlimited) and returns false
// once that count is reached, propagating any listing error. It does not
// create or drop a probe collection on the server.
func (c *Client) CheckCollectionLimit(ctx context.Context) (bool, error) {
	if c.cfg.MaxCollections <= 0 {
		return true, nil
	}
	names, err := c.ListCollections(ctx)
	if err != nil {
		return false, err
	}
	return len(names) < c.cfg.MaxCollections, nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return c.cb.Execute(func() error {
		return serr.Retry(ctx, c.retry, fn)
	})
}

func (c *Client) Close() error {
	return nil // lifecycle owned by the ConnectionPool, not the adapter
}
