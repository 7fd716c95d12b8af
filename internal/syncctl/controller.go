package syncctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/detect"
	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
	"github.com/amanmcp/syncore/internal/indexer"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/vectorstore"
	"github.com/amanmcp/syncore/internal/watch"
)

// taskKind identifies one of the serialized workflows a Controller's single
// consumer goroutine executes: at most one of workflow A/B/C runs at any
// time for a given codebase.
type taskKind int

const (
	taskFullIndex taskKind = iota
	taskIncremental
	taskSingleFile
	taskReconcileIgnore
	taskClear
)

type task struct {
	kind       taskKind
	force      bool
	trigger    observability.Trigger
	singlePath string // absolute path, for taskSingleFile
	done       chan taskResult
}

// taskResult is what every workflow reports back to its caller.
type taskResult struct {
	Counts observability.ChangeCounts
	Err    error
}

// Controller is the single-writer orchestrator for one codebase. Every
// mutating workflow is submitted to workCh and executed by one
// consumer goroutine, so Workflow A/B/C and the reconcile paths can never
// run concurrently against the same codebase.
type Controller struct {
	Root           string
	CollectionName string

	Hash     *hashstore.Store
	Ignore   *ignore.Matcher
	Detector *detect.ChangeDetector
	Indexer  *indexer.Indexer
	Store    vectorstore.Adapter
	Audit    *observability.AuditLog
	Metrics  *observability.MetricsCollector
	Tracer   *observability.Tracer
	Reporter *observability.ErrorReporter
	Logger   *slog.Logger

	// IgnorePatternsPath is the codebase-local ignore file (.gitignore at
	// root) reloaded by the reconcile-ignore workflow. The watcher does not
	// trigger that workflow; it runs only through ReconcileIgnoreChange.
	IgnorePatternsPath string

	// persist, when set by the owning Manager, writes the current state to
	// the process-wide codebase snapshot file at a sync boundary.
	persist func(root string, st StateRecord)

	mu    sync.RWMutex
	state StateRecord

	watcherMu       sync.Mutex
	watcher         *watch.Watcher
	realtimeEnabled bool
	watchCancel     context.CancelFunc

	workCh  chan task
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// Config carries the already-constructed collaborators a Manager wires
// together before handing a Controller to a caller.
type Config struct {
	Root               string
	CollectionName     string
	Hash               *hashstore.Store
	Ignore             *ignore.Matcher
	Detector           *detect.ChangeDetector
	Indexer            *indexer.Indexer
	Store              vectorstore.Adapter
	Audit              *observability.AuditLog
	Metrics            *observability.MetricsCollector
	Tracer             *observability.Tracer
	Reporter           *observability.ErrorReporter
	Logger             *slog.Logger
	IgnorePatternsPath string
}

// New constructs a Controller in status not_indexed and starts its
// consumer goroutine.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		Root:               cfg.Root,
		CollectionName:     cfg.CollectionName,
		Hash:               cfg.Hash,
		Ignore:             cfg.Ignore,
		Detector:           cfg.Detector,
		Indexer:            cfg.Indexer,
		Store:              cfg.Store,
		Audit:              cfg.Audit,
		Metrics:            cfg.Metrics,
		Tracer:             cfg.Tracer,
		Reporter:           cfg.Reporter,
		Logger:             logger,
		IgnorePatternsPath: cfg.IgnorePatternsPath,
		state:              StateRecord{Status: StatusNotIndexed},
		workCh:             make(chan task, 16),
		stopCh:             make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// SetPersist installs the Manager's snapshot-write hook.
func (c *Controller) SetPersist(fn func(root string, st StateRecord)) {
	c.persist = fn
}

// Stop drains pending work, disables the watcher, and stops the consumer
// goroutine; a best-effort drain for host shutdown.
func (c *Controller) Stop() {
	c.DisableRealtime()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Controller) loop() {
	defer c.wg.Done()
	ctx := context.Background()
	for {
		select {
		case t := <-c.workCh:
			res := c.dispatch(ctx, t)
			if t.done != nil {
				t.done <- res
			}
		case <-c.stopCh:
			// Drain anything already queued before exiting.
			for {
				select {
				case t := <-c.workCh:
					res := c.dispatch(ctx, t)
					if t.done != nil {
						t.done <- res
					}
				default:
					return
				}
			}
		}
	}
}

// submit enqueues a task and blocks for its result.
func (c *Controller) submit(kind taskKind, trigger observability.Trigger, force bool, singlePath string) taskResult {
	done := make(chan taskResult, 1)
	t := task{kind: kind, trigger: trigger, force: force, singlePath: singlePath, done: done}

	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		return taskResult{Err: serr.New(serr.KindInput, "controller stopped", nil)}
	}

	select {
	case c.workCh <- t:
	case <-c.stopCh:
		return taskResult{Err: serr.New(serr.KindInput, "controller stopping", nil)}
	}
	return <-done
}

func (c *Controller) dispatch(ctx context.Context, t task) taskResult {
	start := time.Now()
	var res taskResult

	switch t.kind {
	case taskFullIndex:
		res = c.runFullIndex(ctx, t.force)
	case taskIncremental:
		res = c.runIncremental(ctx)
	case taskSingleFile:
		res = c.runSingleFile(ctx, t.singlePath)
	case taskReconcileIgnore:
		res = c.runReconcileIgnore(ctx)
	case taskClear:
		res = c.runClear(ctx)
	}

	duration := time.Since(start)
	op := workflowName(t.kind)
	if c.Metrics != nil {
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
		}
		c.Metrics.SyncWorkflows.WithLabelValues(op, outcome).Inc()
		c.Metrics.SyncDuration.WithLabelValues(op).Observe(duration.Seconds())
		c.Metrics.SyncFilesChanged.WithLabelValues("added").Add(float64(res.Counts.Added))
		c.Metrics.SyncFilesChanged.WithLabelValues("modified").Add(float64(res.Counts.Modified))
		c.Metrics.SyncFilesChanged.WithLabelValues("removed").Add(float64(res.Counts.Removed))
		c.Metrics.WatcherPendingOps.WithLabelValues(c.Root).Set(float64(c.PendingOps()))
		c.Metrics.MtimeCacheSize.WithLabelValues(c.Root).Set(float64(c.Hash.Len()))
		c.Metrics.LastFullScanUnix.WithLabelValues(c.Root).Set(float64(c.Hash.LastFullScan()))
	}
	if c.Audit != nil && t.kind != taskReconcileIgnore {
		c.Audit.Append(observability.AuditEntry{
			Timestamp:  start,
			Operation:  op,
			Trigger:    t.trigger,
			Result:     res.Counts,
			DurationMs: duration.Milliseconds(),
		})
	}
	if res.Err != nil && c.Reporter != nil && terminalFailure(res.Err) {
		c.Reporter.ReportTerminalFailure(ctx, observability.ErrorContext{
			Codebase:  c.Root,
			Operation: op,
			Trigger:   t.trigger,
			Duration:  duration,
		}, res.Err)
	}
	return res
}

func workflowName(k taskKind) string {
	switch k {
	case taskFullIndex:
		return "full_index"
	case taskIncremental:
		return "incremental"
	case taskSingleFile:
		return "single_file"
	case taskReconcileIgnore:
		return "reconcile_ignore"
	case taskClear:
		return "clear"
	default:
		return "unknown"
	}
}

func terminalFailure(err error) bool {
	return errors.Is(err, serr.ErrIntegrity) || errors.Is(err, serr.ErrTransientStore)
}

// --- public entry points -----------------------------------------------

// Index runs Workflow A (full index). force drops an existing collection
// and re-scans from scratch even if already indexed.
func (c *Controller) Index(ctx context.Context, force bool) taskResult {
	c.mu.RLock()
	status := c.state.Status
	c.mu.RUnlock()
	if !status.canIndex() {
		return taskResult{Err: serr.New(serr.KindInput, "a workflow is already running for this codebase", nil)}
	}
	return c.submit(taskFullIndex, observability.TriggerManual, force, "")
}

// SyncNow runs Workflow B (incremental reindex) on demand.
func (c *Controller) SyncNow() taskResult {
	return c.submit(taskIncremental, observability.TriggerManual, false, "")
}

// SyncForFreshness runs Workflow B on behalf of the freshness gate.
func (c *Controller) SyncForFreshness() taskResult {
	return c.submit(taskIncremental, observability.TriggerPreSearch, false, "")
}

// HandleWatcherEvent runs Workflow C (single-file update) for one
// watcher-debounced event.
func (c *Controller) HandleWatcherEvent(absPath string) taskResult {
	return c.submit(taskSingleFile, observability.TriggerRealtime, false, absPath)
}

// ReconcileIgnoreChange runs the gitignore-change reconciliation workflow.
func (c *Controller) ReconcileIgnoreChange() taskResult {
	return c.submit(taskReconcileIgnore, observability.TriggerRealtime, false, "")
}

// Clear drops the collection and snapshot, returning the codebase to
// not_indexed.
func (c *Controller) Clear() taskResult {
	c.mu.RLock()
	status := c.state.Status
	c.mu.RUnlock()
	if !status.canClear() {
		return taskResult{Err: serr.New(serr.KindInput, "cannot clear while indexing", nil)}
	}
	return c.submit(taskClear, observability.TriggerManual, false, "")
}

// Status returns a copy of the current state record.
func (c *Controller) Status() StateRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(st StateRecord) {
	c.mu.Lock()
	st.LastUpdated = time.Now()
	c.state = st
	c.mu.Unlock()
	if c.persist != nil {
		c.persist(c.Root, st)
	}
}

// PendingOps reports the watcher's armed-debounce-timer count, 0 if the
// watcher isn't running.
func (c *Controller) PendingOps() int {
	c.watcherMu.Lock()
	defer c.watcherMu.Unlock()
	if c.watcher == nil {
		return 0
	}
	return c.watcher.PendingOps()
}

// RealtimeEnabled reports whether the Watcher is currently armed.
func (c *Controller) RealtimeEnabled() bool {
	c.watcherMu.Lock()
	defer c.watcherMu.Unlock()
	return c.realtimeEnabled
}

// Snapshot builds the narrow view health_check and get_sync_status need.
func (c *Controller) Snapshot() observability.CodebaseSnapshot {
	st := c.Status()
	_, statErr := os.Stat(c.Root)
	return observability.CodebaseSnapshot{
		Path:           c.Root,
		IndexExists:    st.Status == StatusIndexed || st.Status == StatusIndexing,
		SynchronizerUp: statErr == nil,
		MtimeCacheSize: c.Hash.Len(),
		PendingOps:     c.PendingOps(),
	}
}

// --- watcher lifecycle ---------------------------------------------------

// EnableRealtime starts the filesystem watcher and wires its events to
// Workflow C.
func (c *Controller) EnableRealtime(debounce time.Duration) error {
	c.watcherMu.Lock()
	defer c.watcherMu.Unlock()
	if c.realtimeEnabled {
		return nil
	}

	opts := watch.Options{
		Root:           c.Root,
		Ignore:         c.Ignore,
		DebounceWindow: debounce,
		Logger:         c.Logger,
	}
	w, err := watch.New(opts, c.onWatchEvent)
	if err != nil {
		return fmt.Errorf("syncctl: start watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.watcher = w
	c.watchCancel = cancel
	c.realtimeEnabled = true

	go func() {
		if runErr := w.Start(ctx); runErr != nil && ctx.Err() == nil {
			c.Logger.Warn("syncctl: watcher stopped", "root", c.Root, "error", runErr)
		}
	}()
	return nil
}

// DisableRealtime stops the watcher and cancels all pending debounce
// timers.
func (c *Controller) DisableRealtime() {
	c.watcherMu.Lock()
	defer c.watcherMu.Unlock()
	if !c.realtimeEnabled {
		return
	}
	c.watcher.Stop()
	c.watchCancel()
	c.watcher = nil
	c.realtimeEnabled = false
}

func (c *Controller) onWatchEvent(_ context.Context, _ watch.Kind, absPath string) {
	res := c.HandleWatcherEvent(absPath)
	if res.Err != nil {
		c.Logger.Warn("syncctl: single-file update failed", "path", absPath, "error", res.Err)
	}
}

// startSpan starts a traced workflow span when a Tracer is configured,
// returning a no-op end function otherwise. Tracing is disabled by default.
func (c *Controller) startSpan(ctx context.Context, workflow string) (context.Context, func(err error)) {
	if c.Tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := c.Tracer.StartWorkflow(ctx, workflow, c.Root)
	return spanCtx, func(err error) { observability.EndWithError(span, err) }
}
