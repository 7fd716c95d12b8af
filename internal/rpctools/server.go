// Package rpctools implements the RPC tool surface, bridging stdio-framed
// tool calls to syncctl.Manager, freshness.Gate, and observability: one
// go-sdk mcp.Server, one typed input/output struct pair per tool, and a
// MapError boundary that turns internal errors into structured results
// instead of transport failures.
package rpctools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/freshness"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/syncctl"
)

// searchOverfetch widens the HybridSearch request so that client-side
// extension filtering (see handleSearchCode) still has enough candidates to
// fill the caller's requested limit. The adapter's filter expression only
// supports an exact relativePath match, so extension filtering can't be
// pushed down.
const searchOverfetch = 4

// Server bridges the RPC tool surface to the sync core.
type Server struct {
	mcp     *mcp.Server
	Manager *syncctl.Manager
	Gate    *freshness.Gate
	Logger  *slog.Logger
}

// NewServer constructs a Server and registers every tool it exposes.
func NewServer(mgr *syncctl.Manager, gate *freshness.Gate, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Manager: mgr, Gate: gate, Logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "syncore", Version: "0.1.0"}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying go-sdk server, e.g. for stdio transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Start (or force-restart) a full index of a codebase. Runs in the background; poll get_indexing_status for progress.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid dense+sparse search over an indexed codebase. Runs the freshness gate first so results reflect recent on-disk changes.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_index",
		Description: "Drop a codebase's collection and hash snapshot, returning it to not_indexed.",
	}, s.handleClearIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_indexing_status",
		Description: "Report a codebase's indexing status, progress, and last error.",
	}, s.handleGetIndexingStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "enable_realtime_sync",
		Description: "Start the filesystem watcher for a codebase, dispatching single-file updates as they occur.",
	}, s.handleEnableRealtimeSync)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "disable_realtime_sync",
		Description: "Stop the filesystem watcher for a codebase and cancel its pending debounce timers.",
	}, s.handleDisableRealtimeSync)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_realtime_sync_status",
		Description: "Report whether real-time sync is enabled, per codebase or across every tracked codebase.",
	}, s.handleGetRealtimeSyncStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Detailed snapshot of a codebase's sync state and counters.",
	}, s.handleGetSyncStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_now",
		Description: "Run an incremental reindex immediately and report what changed.",
	}, s.handleSyncNow)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_performance_stats",
		Description: "Report cache, watcher, and hash-store counters, per codebase or across every tracked codebase.",
	}, s.handleGetPerformanceStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "health_check",
		Description: "Report structural issues and warnings for a codebase, or across every tracked codebase.",
	}, s.handleHealthCheck)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_sync_history",
		Description: "Return recent completed sync operations for a codebase.",
	}, s.handleGetSyncHistory)
}

// --- index_codebase -------------------------------------------------------

type IndexCodebaseInput struct {
	Path             string   `json:"path" jsonschema:"absolute path to the codebase root"`
	Force            bool     `json:"force,omitempty" jsonschema:"drop and rebuild the collection even if already indexed"`
	Splitter         string   `json:"splitter,omitempty" jsonschema:"ast (default) or langchain (falls back to ast)"`
	CustomExtensions []string `json:"custom_extensions,omitempty" jsonschema:"additional file extensions to index"`
	IgnorePatterns   []string `json:"ignore_patterns,omitempty" jsonschema:"additional gitignore-style patterns"`
}

type AckOutput struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// handleIndexCodebase accepts splitter and custom_extensions for surface
// parity with other implementations, but the Chunker an Indexer runs is
// fixed at Manager construction time; there is no per-call chunker swap.
// Splitter fallback is still validated and warned on (see resolveSplitter).
func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, in IndexCodebaseInput) (*mcp.CallToolResult, AckOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, AckOutput{}, perr
	}
	_, warned, splitErr := resolveSplitter(in.Splitter)
	if splitErr != nil {
		return nil, AckOutput{}, splitErr
	}

	c, err := s.Manager.GetOrCreate(path, in.IgnorePatterns)
	if err != nil {
		return nil, AckOutput{}, MapError(err)
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		res := c.Index(bgCtx, in.Force)
		if res.Err != nil {
			s.Logger.Warn("rpctools: background index failed", "path", path, "error", res.Err)
		}
		s.Gate.Invalidate(path)
	}()

	out := AckOutput{Message: "indexing started"}
	if warned {
		out.Warning = "splitter 'langchain' is not implemented; falling back to 'ast'"
	}
	return nil, out, nil
}

// --- search_code -----------------------------------------------------------

type SearchCodeInput struct {
	Path            string   `json:"path" jsonschema:"absolute path to the codebase root"`
	Query           string   `json:"query" jsonschema:"the search query"`
	Limit           int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	ExtensionFilter []string `json:"extension_filter,omitempty" jsonschema:"restrict results to these file extensions, e.g. .go"`
}

type SearchResultOutput struct {
	RelativePath string  `json:"relativePath"`
	StartLine    int     `json:"startLine"`
	EndLine      int     `json:"endLine"`
	Language     string  `json:"language"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

type SearchCodeOutput struct {
	Results []SearchResultOutput `json:"results"`
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, SearchCodeOutput{}, perr
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query is required")
	}
	if err := validateExtensionFilter(in.ExtensionFilter); err != nil {
		return nil, SearchCodeOutput{}, err
	}
	limit := clampLimit(in.Limit, 10, 50)

	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, SearchCodeOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}

	s.Gate.CheckAndMaybeSync(ctx, c)

	dense, err := c.Indexer.Embedder.Embed(ctx, []string{in.Query})
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(serr.New(serr.KindTransientStore, "embed query", err))
	}
	var vec []float32
	if len(dense) > 0 {
		vec = dense[0]
	}

	fetchLimit := limit
	if len(in.ExtensionFilter) > 0 {
		fetchLimit = limit * searchOverfetch
	}
	hits, err := c.Store.HybridSearch(ctx, c.CollectionName, vec, in.Query, fetchLimit, "")
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}

	wanted := extensionSet(in.ExtensionFilter)
	out := SearchCodeOutput{Results: make([]SearchResultOutput, 0, limit)}
	for _, hit := range hits {
		if len(wanted) > 0 && !wanted[strings.ToLower(hit.Chunk.FileExtension)] {
			continue
		}
		out.Results = append(out.Results, SearchResultOutput{
			RelativePath: hit.Chunk.RelativePath,
			StartLine:    hit.Chunk.StartLine,
			EndLine:      hit.Chunk.EndLine,
			Language:     languageOf(hit.Chunk.Metadata),
			Content:      hit.Chunk.Content,
			Score:        hit.Score,
		})
		if len(out.Results) == limit {
			break
		}
	}
	return nil, out, nil
}

func extensionSet(filters []string) map[string]bool {
	if len(filters) == 0 {
		return nil
	}
	set := make(map[string]bool, len(filters))
	for _, f := range filters {
		set[strings.ToLower(f)] = true
	}
	return set
}

func languageOf(metadata map[string]any) string {
	if lang, ok := metadata["language"].(string); ok {
		return lang
	}
	return ""
}

// --- clear_index -----------------------------------------------------------

type PathInput struct {
	Path string `json:"path" jsonschema:"absolute path to the codebase root"`
}

func (s *Server) handleClearIndex(ctx context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, AckOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, AckOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, AckOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}
	res := c.Clear()
	if res.Err != nil {
		return nil, AckOutput{}, MapError(res.Err)
	}
	s.Gate.Invalidate(path)
	return nil, AckOutput{Message: "index cleared"}, nil
}

// --- get_indexing_status -----------------------------------------------------

type IndexingStatusOutput struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress,omitempty"`
	Files       int    `json:"files,omitempty"`
	Chunks      int    `json:"chunks,omitempty"`
	Error       string `json:"error,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

func (s *Server) handleGetIndexingStatus(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, IndexingStatusOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, IndexingStatusOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, IndexingStatusOutput{Status: string(syncctl.StatusNotIndexed)}, nil
	}
	st := c.Status()
	out := IndexingStatusOutput{
		Status:   string(st.Status),
		Progress: st.Progress,
		Files:    st.IndexedFiles,
		Chunks:   st.TotalChunks,
		Error:    st.Error,
	}
	if !st.LastUpdated.IsZero() {
		out.LastUpdated = st.LastUpdated.Format(time.RFC3339)
	}
	return nil, out, nil
}

// --- enable/disable_realtime_sync ------------------------------------------

func (s *Server) handleEnableRealtimeSync(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, AckOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, AckOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, AckOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}
	if err := c.EnableRealtime(500 * time.Millisecond); err != nil {
		return nil, AckOutput{}, MapError(serr.New(serr.KindWatcher, "enable realtime sync", err))
	}
	return nil, AckOutput{Message: "realtime sync enabled"}, nil
}

func (s *Server) handleDisableRealtimeSync(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, AckOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, AckOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, AckOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}
	c.DisableRealtime()
	return nil, AckOutput{Message: "realtime sync disabled"}, nil
}

// --- get_realtime_sync_status ------------------------------------------------

type OptionalPathInput struct {
	Path string `json:"path,omitempty" jsonschema:"absolute path; omit for a global report"`
}

type RealtimeSyncStatusEntry struct {
	Path       string `json:"path"`
	Enabled    bool   `json:"enabled"`
	PendingOps int    `json:"pending_ops"`
}

type RealtimeSyncStatusOutput struct {
	Codebases []RealtimeSyncStatusEntry `json:"codebases"`
}

func (s *Server) handleGetRealtimeSyncStatus(_ context.Context, _ *mcp.CallToolRequest, in OptionalPathInput) (*mcp.CallToolResult, RealtimeSyncStatusOutput, error) {
	if in.Path != "" {
		path, perr := requireAbsPath(in.Path)
		if perr != nil {
			return nil, RealtimeSyncStatusOutput{}, perr
		}
		c, ok := s.Manager.Get(path)
		if !ok {
			return nil, RealtimeSyncStatusOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
		}
		return nil, RealtimeSyncStatusOutput{Codebases: []RealtimeSyncStatusEntry{
			{Path: path, Enabled: c.RealtimeEnabled(), PendingOps: c.PendingOps()},
		}}, nil
	}

	var out RealtimeSyncStatusOutput
	for _, c := range s.Manager.All() {
		out.Codebases = append(out.Codebases, RealtimeSyncStatusEntry{
			Path: c.Root, Enabled: c.RealtimeEnabled(), PendingOps: c.PendingOps(),
		})
	}
	return nil, out, nil
}

// --- get_sync_status ---------------------------------------------------------

type SyncStatusOutput struct {
	Status         string `json:"status"`
	Progress       int    `json:"progress,omitempty"`
	Files          int    `json:"files,omitempty"`
	Chunks         int    `json:"chunks,omitempty"`
	RealtimeOn     bool   `json:"realtime_enabled"`
	PendingOps     int    `json:"pending_ops"`
	MtimeCacheSize int    `json:"mtime_cache_size"`
	LastFullScan   int64  `json:"last_full_scan_ms"`
}

func (s *Server) handleGetSyncStatus(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, SyncStatusOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, SyncStatusOutput{Status: string(syncctl.StatusNotIndexed)}, nil
	}
	st := c.Status()
	return nil, SyncStatusOutput{
		Status:         string(st.Status),
		Progress:       st.Progress,
		Files:          st.IndexedFiles,
		Chunks:         st.TotalChunks,
		RealtimeOn:     c.RealtimeEnabled(),
		PendingOps:     c.PendingOps(),
		MtimeCacheSize: c.Hash.Len(),
		LastFullScan:   c.Hash.LastFullScan(),
	}, nil
}

// --- sync_now -----------------------------------------------------------------

type SyncNowOutput struct {
	Added      int   `json:"added"`
	Modified   int   `json:"modified"`
	Removed    int   `json:"removed"`
	DurationMs int64 `json:"duration_ms"`
}

func (s *Server) handleSyncNow(_ context.Context, _ *mcp.CallToolRequest, in PathInput) (*mcp.CallToolResult, SyncNowOutput, error) {
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, SyncNowOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, SyncNowOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}
	start := time.Now()
	res := c.SyncNow()
	dur := time.Since(start)
	if res.Err != nil {
		return nil, SyncNowOutput{}, MapError(res.Err)
	}
	s.Gate.Invalidate(path)
	return nil, SyncNowOutput{
		Added:      res.Counts.Added,
		Modified:   res.Counts.Modified,
		Removed:    res.Counts.Removed,
		DurationMs: dur.Milliseconds(),
	}, nil
}

// --- get_performance_stats -----------------------------------------------------

type PerformanceStatsEntry struct {
	Path           string `json:"path"`
	MtimeCacheSize int    `json:"mtime_cache_size"`
	PendingOps     int    `json:"pending_ops"`
	LastFullScanMs int64  `json:"last_full_scan_ms"`
}

type PerformanceStatsOutput struct {
	Codebases []PerformanceStatsEntry `json:"codebases"`
}

func (s *Server) handleGetPerformanceStats(_ context.Context, _ *mcp.CallToolRequest, in OptionalPathInput) (*mcp.CallToolResult, PerformanceStatsOutput, error) {
	if in.Path != "" {
		path, perr := requireAbsPath(in.Path)
		if perr != nil {
			return nil, PerformanceStatsOutput{}, perr
		}
		c, ok := s.Manager.Get(path)
		if !ok {
			return nil, PerformanceStatsOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
		}
		return nil, PerformanceStatsOutput{Codebases: []PerformanceStatsEntry{entryFor(c)}}, nil
	}

	var out PerformanceStatsOutput
	for _, c := range s.Manager.All() {
		out.Codebases = append(out.Codebases, entryFor(c))
	}
	return nil, out, nil
}

func entryFor(c *syncctl.Controller) PerformanceStatsEntry {
	return PerformanceStatsEntry{
		Path:           c.Root,
		MtimeCacheSize: c.Hash.Len(),
		PendingOps:     c.PendingOps(),
		LastFullScanMs: c.Hash.LastFullScan(),
	}
}

// --- health_check -----------------------------------------------------------

type HealthCheckOutput struct {
	Healthy    bool     `json:"healthy"`
	Issues     []string `json:"issues"`
	Warnings   []string `json:"warnings"`
	DurationMs int64    `json:"duration_ms"`
}

func (s *Server) handleHealthCheck(_ context.Context, _ *mcp.CallToolRequest, in OptionalPathInput) (*mcp.CallToolResult, HealthCheckOutput, error) {
	start := time.Now()

	if in.Path != "" {
		path, perr := requireAbsPath(in.Path)
		if perr != nil {
			return nil, HealthCheckOutput{}, perr
		}
		c, ok := s.Manager.Get(path)
		if !ok {
			return nil, HealthCheckOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
		}
		report := observability.CheckCodebase(pathExists(path), c.Snapshot())
		return nil, HealthCheckOutput{
			Healthy:    report.Healthy,
			Issues:     report.Issues,
			Warnings:   report.Warnings,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	var snapshots []observability.CodebaseSnapshot
	agg := observability.NewHealthReport()
	for _, c := range s.Manager.All() {
		snapshots = append(snapshots, c.Snapshot())
		agg.Merge(observability.CheckCodebase(pathExists(c.Root), c.Snapshot()))
	}
	agg.Merge(observability.CheckGlobal(snapshots))

	return nil, HealthCheckOutput{
		Healthy:    agg.Healthy,
		Issues:     agg.Issues,
		Warnings:   agg.Warnings,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// --- get_sync_history ---------------------------------------------------------

type SyncHistoryInput struct {
	Path  string `json:"path,omitempty" jsonschema:"absolute path of the codebase; required, there is no global history"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of entries, default 10, max 50"`
}

type SyncHistoryEntry struct {
	Timestamp  string `json:"timestamp"`
	Operation  string `json:"operation"`
	Trigger    string `json:"trigger"`
	Added      int    `json:"added"`
	Modified   int    `json:"modified"`
	Removed    int    `json:"removed"`
	DurationMs int64  `json:"duration_ms"`
}

type SyncHistoryOutput struct {
	Entries []SyncHistoryEntry `json:"entries"`
}

func (s *Server) handleGetSyncHistory(_ context.Context, _ *mcp.CallToolRequest, in SyncHistoryInput) (*mcp.CallToolResult, SyncHistoryOutput, error) {
	if in.Path == "" {
		return nil, SyncHistoryOutput{}, NewInvalidParamsError("path is required")
	}
	path, perr := requireAbsPath(in.Path)
	if perr != nil {
		return nil, SyncHistoryOutput{}, perr
	}
	c, ok := s.Manager.Get(path)
	if !ok {
		return nil, SyncHistoryOutput{}, NewInvalidParamsError(fmt.Sprintf("codebase not indexed: %s", path))
	}
	limit := clampLimit(in.Limit, 10, 50)

	out := SyncHistoryOutput{}
	for _, e := range c.Audit.Recent(limit) {
		out.Entries = append(out.Entries, SyncHistoryEntry{
			Timestamp:  e.Timestamp.Format(time.RFC3339),
			Operation:  e.Operation,
			Trigger:    string(e.Trigger),
			Added:      e.Result.Added,
			Modified:   e.Result.Modified,
			Removed:    e.Result.Removed,
			DurationMs: e.DurationMs,
		})
	}
	return nil, out, nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
