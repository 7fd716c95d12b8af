// Package detect walks a codebase and compares it against a hashstore
// snapshot to produce the set of files added, modified, or removed since
// the last scan. It backs both the periodic full/incremental scans and the
// single-file update path driven by the filesystem watcher.
package detect

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
)

// Change classifies one path's transition.
type Change struct {
	Path string
	Hash string
}

// Result is the tri-partition produced by a scan.
type Result struct {
	Added    []Change
	Modified []Change
	Removed  []string
	ScanTime time.Time
}

// Empty reports whether the result carries no changes at all.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Modified) == 0 && len(r.Removed) == 0
}

// DefaultFullScanInterval is the fallback period after which an
// incremental_scan promotes itself to a full_scan, bounding drift from
// missed filesystem events.
const DefaultFullScanInterval = 5 * time.Minute

// ChangeDetector compares the live filesystem against a hashstore.Store.
type ChangeDetector struct {
	Root             string
	Store            *hashstore.Store
	Ignore           *ignore.Matcher
	FullScanInterval time.Duration
	Logger           *slog.Logger
}

// New constructs a ChangeDetector with spec defaults filled in.
func New(root string, store *hashstore.Store, matcher *ignore.Matcher, logger *slog.Logger) *ChangeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeDetector{
		Root:             root,
		Store:            store,
		Ignore:           matcher,
		FullScanInterval: DefaultFullScanInterval,
		Logger:           logger,
	}
}

// FullScan walks the entire tree, hashing every non-ignored regular file
// and diffing against the store's current contents. It never mutates the
// store itself — callers apply the Result via Store.Upsert/Remove and then
// Store.Save at a workflow boundary so a crash mid-scan can't half-commit.
func (d *ChangeDetector) FullScan(ctx context.Context) (Result, error) {
	seen := make(map[string]struct{})
	res := Result{ScanTime: time.Now()}

	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			// Non-fatal: log and keep walking siblings.
			d.Logger.Warn("detect: walk error", "path", path, "error", walkErr)
			return nil
		}

		rel, relErr := filepath.Rel(d.Root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if d.Ignore.Matches(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Ignore.Matches(rel) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			d.Logger.Warn("detect: stat error, skipping", "path", rel, "error", err)
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
			d.Logger.Warn("detect: skipping non-regular file", "path", rel)
			return nil
		}

		seen[rel] = struct{}{}

		mtimeMs := info.ModTime().UnixMilli()
		if cached, ok := d.Store.Mtime(rel); ok && cached == mtimeMs {
			if _, hashOK := d.Store.Get(rel); hashOK {
				// mtime unchanged and we already have a hash: skip rehash.
				return nil
			}
		}

		hash, err := hashstore.HashFile(path)
		if err != nil {
			d.Logger.Warn("detect: unreadable file, skipping", "path", rel, "error", err)
			return nil
		}

		prev, existed := d.Store.Get(rel)
		switch {
		case !existed:
			res.Added = append(res.Added, Change{Path: rel, Hash: hash})
		case prev != hash:
			res.Modified = append(res.Modified, Change{Path: rel, Hash: hash})
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for _, p := range d.Store.Paths() {
		if _, ok := seen[p]; !ok {
			res.Removed = append(res.Removed, p)
		}
	}

	sortResult(&res)
	return res, nil
}

// IncrementalScan is a FullScan that additionally self-promotes when the
// configured interval has elapsed since the last full scan, bounding drift
// from any missed filesystem events.
func (d *ChangeDetector) IncrementalScan(ctx context.Context) (Result, bool, error) {
	interval := d.FullScanInterval
	if interval <= 0 {
		interval = DefaultFullScanInterval
	}

	last := d.Store.LastFullScan()
	promoted := last == 0 || time.Since(time.UnixMilli(last)) >= interval

	res, err := d.FullScan(ctx)
	if err != nil {
		return Result{}, false, err
	}
	return res, promoted, nil
}

// UpdateSingleFile re-hashes exactly one path, used by the watcher's
// single-file workflow. A missing file is reported as a removal.
func (d *ChangeDetector) UpdateSingleFile(absPath string) (Change, bool, error) {
	rel, err := filepath.Rel(d.Root, absPath)
	if err != nil {
		return Change{}, false, err
	}
	rel = filepath.ToSlash(rel)

	if d.Ignore.Matches(rel) {
		return Change{}, false, nil
	}

	info, err := os.Lstat(absPath)
	if os.IsNotExist(err) {
		return Change{Path: rel}, true, nil
	}
	if err != nil {
		return Change{}, false, err
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return Change{}, false, nil
	}

	hash, err := hashstore.HashFile(absPath)
	if err != nil {
		return Change{}, false, err
	}
	return Change{Path: rel, Hash: hash}, false, nil
}

func sortResult(r *Result) {
	sort.Slice(r.Added, func(i, j int) bool { return r.Added[i].Path < r.Added[j].Path })
	sort.Slice(r.Modified, func(i, j int) bool { return r.Modified[i].Path < r.Modified[j].Path })
	sort.Strings(r.Removed)
}
