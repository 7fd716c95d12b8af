// Package watch converts filesystem events under a codebase root into
// SyncController single-file-update dispatches. It subscribes to fsnotify,
// filters by the ignore matcher and supported-extension list, waits for
// writes to go stable before emitting add/change, and debounces per
// (event, path) to coalesce save+auto-format storms.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/amanmcp/syncore/internal/ignore"
)

// Kind classifies a debounced, filtered filesystem event.
type Kind int

const (
	KindChanged Kind = iota // covers both add and modify; the detector resolves which
	KindRemoved
)

func (k Kind) String() string {
	if k == KindRemoved {
		return "removed"
	}
	return "changed"
}

// Handler is invoked once per debounced (kind, absolute path) event. It is
// expected to drive SyncController's single-file update workflow.
type Handler func(ctx context.Context, kind Kind, absPath string)

// StabilityWindow is how long a file must go unmodified before an add/change
// is emitted, to avoid indexing a half-written save.
const StabilityWindow = 1 * time.Second

// StabilityPollInterval is how often a candidate file's mtime/size is
// rechecked while waiting for it to stabilize.
const StabilityPollInterval = 100 * time.Millisecond

// DebounceWindow is the default per-(event,path) coalescing window.
const DebounceWindow = 500 * time.Millisecond

// SupportedExtensions lists default extensions the watcher emits for;
// a non-nil Options.Extensions replaces this set.
var SupportedExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".java": {}, ".c": {}, ".h": {}, ".cpp": {}, ".hpp": {}, ".cc": {},
	".rs": {}, ".rb": {}, ".md": {}, ".json": {}, ".yaml": {}, ".yml": {},
}

// Options configures a Watcher.
type Options struct {
	Root            string
	Ignore          *ignore.Matcher
	Extensions      map[string]struct{} // nil = SupportedExtensions
	DebounceWindow  time.Duration
	StabilityWindow time.Duration
	Logger          *slog.Logger
}

// Watcher watches Options.Root for file add/change/unlink, honoring
// IgnoreMatcher and the extension allowlist, and dispatches debounced,
// stability-settled events to a Handler.
type Watcher struct {
	opts    Options
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	deb     *debouncer
	handler Handler

	mu       sync.RWMutex
	enabled  bool
	stopped  bool
	stopCh   chan struct{}
	stableWG sync.WaitGroup
}

// New constructs a Watcher bound to opts; it does not start watching until
// Start is called.
func New(opts Options, handler Handler) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DebounceWindow
	}
	if opts.StabilityWindow <= 0 {
		opts.StabilityWindow = StabilityWindow
	}
	if opts.Extensions == nil {
		opts.Extensions = SupportedExtensions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		opts:    opts,
		logger:  opts.Logger,
		fsw:     fsw,
		handler: handler,
		enabled: true,
		stopCh:  make(chan struct{}),
	}
	w.deb = newDebouncer(opts.DebounceWindow, w.fireDebounced)
	return w, nil
}

// Start subscribes to the root tree and begins dispatching until ctx is
// cancelled or Stop is called. Start blocks; call it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.opts.Root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch: subscription error", "error", err)
		}
	}
}

// Stop cancels all pending debounce timers and closes the fsnotify
// subscription. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.deb.Cancel()
	return w.fsw.Close()
}

// Enable and Disable toggle dispatch without tearing down the subscription;
// Disable also cancels pending debounce timers.
func (w *Watcher) Enable() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = true
}

func (w *Watcher) Disable() {
	w.mu.Lock()
	w.enabled = false
	w.mu.Unlock()
	w.deb.Cancel()
}

func (w *Watcher) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// PendingOps returns the number of armed debounce timers, for the
// observability pending-ops counter.
func (w *Watcher) PendingOps() int {
	return w.deb.Pending()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // directory walk errors are non-fatal for siblings
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && w.opts.Ignore.Matches(filepath.ToSlash(rel)+"/") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !w.Enabled() {
		return
	}

	rel, err := filepath.Rel(w.opts.Root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if ev.Op&fsnotify.Create != 0 && isDir {
		if !w.opts.Ignore.Matches(rel + "/") {
			_ = w.fsw.Add(ev.Name)
		}
		return
	}
	if isDir {
		return
	}
	if w.opts.Ignore.Matches(rel) {
		return
	}
	if !w.hasSupportedExtension(rel) {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.stableWG.Add(1)
		go func() {
			defer w.stableWG.Done()
			if w.waitStable(ctx, ev.Name) {
				w.deb.Add(KindChanged, ev.Name)
			}
		}()
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.deb.Add(KindRemoved, ev.Name)
	}
}

func (w *Watcher) hasSupportedExtension(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	_, ok := w.opts.Extensions[ext]
	return ok
}

// waitStable polls size+mtime until the file hasn't changed for
// StabilityWindow, or it disappears (in which case the caller should not
// emit an add/change — a later Remove event will cover it).
func (w *Watcher) waitStable(ctx context.Context, absPath string) bool {
	var lastSize int64 = -1
	var lastMtime time.Time
	stableSince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.stopCh:
			return false
		case <-time.After(StabilityPollInterval):
		}

		info, err := os.Stat(absPath)
		if errors.Is(err, os.ErrNotExist) {
			return false
		}
		if err != nil {
			continue
		}

		if info.Size() != lastSize || !info.ModTime().Equal(lastMtime) {
			lastSize = info.Size()
			lastMtime = info.ModTime()
			stableSince = time.Now()
			continue
		}
		if time.Since(stableSince) >= w.opts.StabilityWindow {
			return true
		}
	}
}

func (w *Watcher) fireDebounced(kind Kind, absPath string) {
	if !w.Enabled() {
		return
	}
	w.handler(context.Background(), kind, absPath)
}
