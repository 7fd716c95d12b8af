// Package freshness implements the search-time freshness gate: a
// short-lived per-codebase cache that decides whether a catch-up
// incremental reindex runs before a search is served. The gate never blocks
// or fails a search — sync failures are logged, not surfaced.
package freshness

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/syncctl"
)

// DefaultCacheTTL is the cache entry's validity window.
const DefaultCacheTTL = 2 * time.Second

// cacheSize bounds the number of codebases tracked at once; large enough
// that a host juggling many open projects doesn't evict entries between
// consecutive searches on the same one.
const cacheSize = 4096

// Result is what check_and_maybe_sync reports.
type Result struct {
	HadChanges   bool
	ChangedCount int
	DurationMs   int64
	FromCache    bool
}

// cacheEntry is the short-lived freshness memo for one codebase.
type cacheEntry struct {
	timestamp  time.Time
	hadChanges bool
}

// Gate consults a short-lived per-codebase cache before letting a search
// proceed, invoking a catch-up incremental reindex on a cache miss with
// detected changes. Concurrent callers for the same codebase coalesce onto
// one underlying check via singleflight.
type Gate struct {
	Enabled bool
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *observability.MetricsCollector

	cache *lru.Cache[string, cacheEntry]
	group singleflight.Group
}

// New constructs a Gate. enabled mirrors the process-wide
// freshness_gate.enabled configuration option (default true).
func New(enabled bool, ttl time.Duration, logger *slog.Logger, metrics *observability.MetricsCollector) *Gate {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, _ := lru.New[string, cacheEntry](cacheSize)
	return &Gate{Enabled: enabled, TTL: ttl, Logger: logger, Metrics: metrics, cache: c}
}

func (g *Gate) reportCacheSize() {
	if g.Metrics != nil {
		g.Metrics.CacheEntries.Set(float64(g.cache.Len()))
	}
}

// CheckAndMaybeSync consults the cache; on a miss, runs an incremental
// change check, and if changes are found invokes the codebase Controller's
// catch-up reindex. It never returns an error — a failed catch-up sync is
// logged and the caller proceeds regardless.
func (g *Gate) CheckAndMaybeSync(ctx context.Context, c *syncctl.Controller) Result {
	start := time.Now()
	if !g.Enabled {
		return Result{DurationMs: time.Since(start).Milliseconds()}
	}

	if entry, ok := g.cache.Get(c.Root); ok && time.Since(entry.timestamp) < g.TTL {
		return Result{
			HadChanges: entry.hadChanges,
			FromCache:  true,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	v, _, _ := g.group.Do(c.Root, func() (interface{}, error) {
		return g.checkAndSync(ctx, c), nil
	})
	res := v.(Result)
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

func (g *Gate) checkAndSync(ctx context.Context, c *syncctl.Controller) Result {
	changes, _, err := c.Detector.IncrementalScan(ctx)
	if err != nil {
		g.Logger.Warn("freshness: change check failed, proceeding without sync", "codebase", c.Root, "error", err)
		return Result{}
	}
	if changes.Empty() {
		g.cache.Add(c.Root, cacheEntry{timestamp: time.Now(), hadChanges: false})
		g.reportCacheSize()
		return Result{}
	}

	res := c.SyncForFreshness()
	changedCount := len(changes.Added) + len(changes.Modified) + len(changes.Removed)
	if res.Err != nil {
		g.Logger.Warn("freshness: catch-up sync failed, serving existing index", "codebase", c.Root, "error", res.Err)
		// Do not cache a failed attempt — the next search should retry.
		return Result{HadChanges: true, ChangedCount: changedCount}
	}

	g.cache.Add(c.Root, cacheEntry{timestamp: time.Now(), hadChanges: false})
	g.reportCacheSize()
	return Result{HadChanges: true, ChangedCount: changedCount}
}

// Invalidate clears a codebase's cache entry. Callers outside the gate invoke
// it after a write they make themselves (e.g. a manual sync_now); watcher
// single-file updates do not call it.
func (g *Gate) Invalidate(root string) {
	g.cache.Remove(root)
	g.reportCacheSize()
}
