package syncctl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amanmcp/syncore/internal/detect"
	serr "github.com/amanmcp/syncore/internal/errors"
	"github.com/amanmcp/syncore/internal/hashstore"
	"github.com/amanmcp/syncore/internal/ignore"
	"github.com/amanmcp/syncore/internal/indexer"
	"github.com/amanmcp/syncore/internal/observability"
	"github.com/amanmcp/syncore/internal/vectorstore"
)

// ManagerConfig carries the process-wide collaborators every Controller a
// Manager creates will share.
type ManagerConfig struct {
	StateDir         string // well-known per-user state directory
	Store            vectorstore.Adapter
	Chunker          indexer.Chunker
	Embedder         indexer.Embedder
	Logger           *slog.Logger
	Metrics          *observability.MetricsCollector
	Tracer           *observability.Tracer
	Reporter         *observability.ErrorReporter
	ChunkBudget      int
	FullScanInterval time.Duration
	DebounceWindow   time.Duration
	AutoEnableRT     bool
}

// Manager is the process-wide registry of per-codebase Controllers, and the
// owner of the persisted codebase-status snapshot file.
type Manager struct {
	cfg ManagerConfig

	mu          sync.Mutex
	controllers map[string]*Controller

	statusPath string
}

// NewManager constructs a Manager; it does not load any codebase until
// GetOrCreate is called for it.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FullScanInterval <= 0 {
		cfg.FullScanInterval = detect.DefaultFullScanInterval
	}
	return &Manager{
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		statusPath:  filepath.Join(cfg.StateDir, "codebases.json"),
	}
}

// CollectionNameFor derives the stable collection name for a codebase
// root: the current hybrid prefix plus a hash of the absolute path.
func CollectionNameFor(absRoot string) string {
	sum := sha256.Sum256([]byte(absRoot))
	return vectorstore.CollectionNamePrefix + hex.EncodeToString(sum[:])[:16]
}

// GetOrCreate returns the Controller for absRoot, constructing and starting
// it (loading any persisted hash snapshot and status) on first use.
func (m *Manager) GetOrCreate(absRoot string, ignorePatterns []string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[absRoot]; ok {
		return c, nil
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, serr.New(serr.KindInput, fmt.Sprintf("codebase path does not exist: %s", absRoot), err)
	}
	if !info.IsDir() {
		return nil, serr.New(serr.KindInput, fmt.Sprintf("codebase path is not a directory: %s", absRoot), nil)
	}

	hashStore, err := hashstore.Open(m.cfg.StateDir, absRoot)
	if err != nil {
		return nil, serr.New(serr.KindInput, "open hash snapshot", err)
	}
	if err := hashStore.Initialize(); err != nil {
		return nil, serr.New(serr.KindIntegrity, "load hash snapshot", err)
	}

	matcher := ignore.New(ignorePatterns...)
	ignorePath := filepath.Join(absRoot, ".gitignore")
	_ = matcher.AddFromFile(ignorePath)

	detector := detect.New(absRoot, hashStore, matcher, m.cfg.Logger)
	detector.FullScanInterval = m.cfg.FullScanInterval

	ix := indexer.New(m.cfg.Chunker, m.cfg.Embedder, m.cfg.Logger)
	if m.cfg.ChunkBudget > 0 {
		ix.ChunkBudget = m.cfg.ChunkBudget
	}

	c := New(Config{
		Root:               absRoot,
		CollectionName:     CollectionNameFor(absRoot),
		Hash:               hashStore,
		Ignore:             matcher,
		Detector:           detector,
		Indexer:            ix,
		Store:              m.cfg.Store,
		Audit:              observability.NewAuditLog(),
		Metrics:            m.cfg.Metrics,
		Tracer:             m.cfg.Tracer,
		Reporter:           m.cfg.Reporter,
		Logger:             m.cfg.Logger,
		IgnorePatternsPath: ignorePath,
	})
	c.SetPersist(m.persistStatus)

	if st, ok := m.loadPersistedStatus(absRoot); ok {
		c.mu.Lock()
		c.state = st
		c.mu.Unlock()
		if st.Status == StatusIndexing {
			// A process restart interrupted an in-flight full index; the
			// codebase is left indexable again rather than stuck.
			c.mu.Lock()
			c.state.Status = StatusFailed
			c.state.Error = "process restarted mid-index"
			c.mu.Unlock()
		}
	}

	m.controllers[absRoot] = c

	go func() {
		res := c.ReconcileOnStartup()
		if res.Err != nil {
			m.cfg.Logger.Warn("syncctl: startup reconciliation failed", "root", absRoot, "error", res.Err)
		}
	}()

	if m.cfg.AutoEnableRT {
		if err := c.EnableRealtime(m.cfg.DebounceWindow); err != nil {
			m.cfg.Logger.Warn("syncctl: auto-enable realtime sync failed", "root", absRoot, "error", err)
		}
	}

	return c, nil
}

// Get returns the Controller for absRoot if one has been created.
func (m *Manager) Get(absRoot string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[absRoot]
	return c, ok
}

// All returns every tracked Controller, for global status/health/metrics
// tools.
func (m *Manager) All() []*Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	return out
}

// Remove forgets a Controller after Clear, releasing its watcher and
// advisory lock.
func (m *Manager) Remove(absRoot string) {
	m.mu.Lock()
	c, ok := m.controllers[absRoot]
	if ok {
		delete(m.controllers, absRoot)
	}
	m.mu.Unlock()
	if ok {
		c.Stop()
		_ = c.Hash.Close()
	}
}

// Shutdown performs a best-effort drain across every tracked codebase.
func (m *Manager) Shutdown(_ context.Context) {
	for _, c := range m.All() {
		c.Stop()
		_ = c.Hash.Close()
	}
}

// --- persisted status snapshot -------------------------------------------

func (m *Manager) persistStatus(root string, st StateRecord) {
	all := m.loadAllPersistedStatus()
	all[root] = st
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		m.cfg.Logger.Warn("syncctl: marshal codebase status snapshot failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.statusPath), 0o755); err != nil {
		m.cfg.Logger.Warn("syncctl: create status snapshot dir failed", "error", err)
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.statusPath), ".codebases-*.tmp")
	if err != nil {
		m.cfg.Logger.Warn("syncctl: create temp status snapshot failed", "error", err)
		return
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		m.cfg.Logger.Warn("syncctl: write temp status snapshot failed", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		m.cfg.Logger.Warn("syncctl: close temp status snapshot failed", "error", err)
		return
	}
	if err := os.Rename(tmpPath, m.statusPath); err != nil {
		m.cfg.Logger.Warn("syncctl: rename status snapshot failed", "error", err)
	}
}

func (m *Manager) loadAllPersistedStatus() map[string]StateRecord {
	out := make(map[string]StateRecord)
	data, err := os.ReadFile(m.statusPath)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

func (m *Manager) loadPersistedStatus(root string) (StateRecord, bool) {
	all := m.loadAllPersistedStatus()
	st, ok := all[root]
	return st, ok
}
