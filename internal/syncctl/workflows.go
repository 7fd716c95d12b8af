package syncctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amanmcp/syncore/internal/detect"
	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/indexer"
	"github.com/amanmcp/syncore/internal/observability"
)

// runFullIndex is Workflow A: build/rebuild the collection from scratch
// and insert every non-ignored file.
func (c *Controller) runFullIndex(ctx context.Context, force bool) taskResult {
	var endSpan func(error)
	ctx, endSpan = c.startSpan(ctx, "full_index")
	res := c.doFullIndex(ctx, force)
	endSpan(res.Err)
	return res
}

func (c *Controller) doFullIndex(ctx context.Context, force bool) taskResult {
	c.setState(StateRecord{Status: StatusIndexing, Progress: 0})

	has, err := c.Store.HasCollection(ctx, c.CollectionName)
	if err != nil {
		return c.fail(err, "check collection existence")
	}
	if has && force {
		if err := c.Store.DropCollection(ctx, c.CollectionName); err != nil {
			return c.fail(err, "drop collection for forced reindex")
		}
		has = false
		c.resetHashStore()
	}
	if !has {
		if err := c.Store.CreateHybridCollection(ctx, c.CollectionName, c.Indexer.Embedder.Dimension()); err != nil {
			return c.fail(err, "create hybrid collection")
		}
	}

	result, err := c.Detector.FullScan(ctx)
	if err != nil {
		return c.fail(err, "full scan")
	}

	c.Indexer.ResetBudget()

	indexedFiles := 0
	totalChunks := 0
	limitReached := false

	toIndex := append(append([]detect.Change{}, result.Added...), result.Modified...)
	total := len(toIndex)
	for i, change := range toIndex {
		if ctx.Err() != nil {
			break
		}
		absPath := filepath.Join(c.Root, filepath.FromSlash(change.Path))
		chunks, procErr := c.Indexer.ProcessFile(ctx, absPath, change.Path, c.Root)
		if procErr != nil && procErr != indexer.ErrLimitReached {
			c.Logger.Warn("syncctl: skipping file during full index", "path", change.Path, "error", procErr)
			continue
		}
		if len(chunks) > 0 {
			if insertErr := c.Store.Insert(ctx, c.CollectionName, chunks); insertErr != nil {
				c.Logger.Warn("syncctl: insert failed during full index", "path", change.Path, "error", insertErr)
				continue
			}
			totalChunks += len(chunks)
		}
		c.Hash.Upsert(change.Path, change.Hash, hashMtime(absPath))
		indexedFiles++

		if procErr == indexer.ErrLimitReached {
			limitReached = true
			break
		}
		if total > 0 && i%20 == 0 {
			c.setState(StateRecord{Status: StatusIndexing, Progress: (i * 100) / total})
		}
	}

	for _, path := range result.Removed {
		c.Hash.Remove(path)
	}

	c.Hash.SetLastFullScan(hashstore.NowMillis())
	if err := c.Hash.Save(); err != nil {
		return c.fail(err, "save hash snapshot")
	}

	status := StatusIndexed
	if limitReached {
		c.Logger.Warn("syncctl: chunk budget reached during full index", "codebase", c.Root)
	}
	c.setState(StateRecord{
		Status:       status,
		IndexedFiles: indexedFiles,
		TotalChunks:  totalChunks,
		Progress:     100,
	})

	return taskResult{Counts: observability.ChangeCounts{
		Added:    len(result.Added),
		Modified: len(result.Modified),
		Removed:  len(result.Removed),
	}}
}

// runIncremental is Workflow B: diff, apply removals/updates, commit.
func (c *Controller) runIncremental(ctx context.Context) taskResult {
	var endSpan func(error)
	ctx, endSpan = c.startSpan(ctx, "incremental")
	res := c.doIncremental(ctx)
	endSpan(res.Err)
	return res
}

func (c *Controller) doIncremental(ctx context.Context) taskResult {
	result, _, err := c.Detector.IncrementalScan(ctx)
	if err != nil {
		return c.fail(err, "incremental scan")
	}
	if result.Empty() {
		return taskResult{}
	}

	for _, path := range result.Removed {
		if _, err := c.Store.AtomicFileUpdate(ctx, c.CollectionName, path, nil); err != nil {
			c.Logger.Warn("syncctl: failed to delete removed file's chunks", "path", path, "error", err)
			continue
		}
		c.Hash.Remove(path)
	}

	updates := append(append([]detect.Change{}, result.Added...), result.Modified...)
	for _, change := range updates {
		absPath := filepath.Join(c.Root, filepath.FromSlash(change.Path))
		chunks, procErr := c.Indexer.ProcessFile(ctx, absPath, change.Path, c.Root)
		if procErr != nil && procErr != indexer.ErrLimitReached {
			c.Logger.Warn("syncctl: skipping file during incremental sync", "path", change.Path, "error", procErr)
			continue
		}
		fres, updErr := c.Store.AtomicFileUpdate(ctx, c.CollectionName, change.Path, chunks)
		if updErr != nil || !fres.OK {
			c.Logger.Warn("syncctl: atomic file update failed", "path", change.Path, "error", updErr)
			continue
		}
		c.Hash.Upsert(change.Path, change.Hash, hashMtime(absPath))
	}

	if err := c.Hash.Save(); err != nil {
		return c.fail(err, "save hash snapshot")
	}

	st := c.Status()
	st.Status = StatusIndexed
	c.setState(st)

	return taskResult{Counts: observability.ChangeCounts{
		Added:    len(result.Added),
		Modified: len(result.Modified),
		Removed:  len(result.Removed),
	}}
}

// runSingleFile is Workflow C, driven by the Watcher.
func (c *Controller) runSingleFile(ctx context.Context, absPath string) taskResult {
	var endSpan func(error)
	ctx, endSpan = c.startSpan(ctx, "single_file")
	res := c.doSingleFile(ctx, absPath)
	endSpan(res.Err)
	return res
}

func (c *Controller) doSingleFile(ctx context.Context, absPath string) taskResult {
	change, removed, err := c.Detector.UpdateSingleFile(absPath)
	if err != nil {
		return c.fail(err, "single-file detect")
	}
	if change.Path == "" && !removed {
		// Ignored path or unsupported entry; nothing to do.
		return taskResult{}
	}

	counts := observability.ChangeCounts{}
	if removed {
		if _, err := c.Store.AtomicFileUpdate(ctx, c.CollectionName, change.Path, nil); err != nil {
			return c.fail(err, "delete removed file's chunks")
		}
		c.Hash.Remove(change.Path)
		counts.Removed = 1
	} else {
		wasKnown := false
		if _, ok := c.Hash.Get(change.Path); ok {
			wasKnown = true
		}
		chunks, procErr := c.Indexer.ProcessFile(ctx, absPath, change.Path, c.Root)
		if procErr != nil && procErr != indexer.ErrLimitReached {
			return c.fail(procErr, "single-file chunk/embed")
		}
		fres, updErr := c.Store.AtomicFileUpdate(ctx, c.CollectionName, change.Path, chunks)
		if updErr != nil || !fres.OK {
			return c.fail(updErr, "single-file atomic update")
		}
		c.Hash.Upsert(change.Path, change.Hash, hashMtime(absPath))
		if wasKnown {
			counts.Modified = 1
		} else {
			counts.Added = 1
		}
	}

	if err := c.Hash.Save(); err != nil {
		return c.fail(err, "save hash snapshot")
	}
	return taskResult{Counts: counts}
}

// runClear drops the collection and hash snapshot, returning to
// not_indexed.
func (c *Controller) runClear(ctx context.Context) taskResult {
	if err := c.Store.DropCollection(ctx, c.CollectionName); err != nil {
		return c.fail(err, "drop collection")
	}
	c.resetHashStore()
	if err := c.Hash.Save(); err != nil {
		return c.fail(err, "save cleared hash snapshot")
	}
	c.setState(StateRecord{Status: StatusNotIndexed})
	return taskResult{}
}

func (c *Controller) fail(cause error, during string) taskResult {
	st := c.Status()
	msg := fmt.Sprintf("%s: %v", during, cause)
	c.setState(StateRecord{
		Status:       StatusFailed,
		Error:        msg,
		LastProgress: st.Progress,
	})
	return taskResult{Err: serr.New(serr.KindTransientStore, msg, cause)}
}

func (c *Controller) resetHashStore() {
	for _, p := range c.Hash.Paths() {
		c.Hash.Remove(p)
	}
	c.Hash.SetLastFullScan(0)
}

func hashMtime(absPath string) int64 {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixMilli()
}
