package vectorstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/amanmcp/syncore/internal/observability"
)

// PoolKey identifies a shared connection: address, username, and whether a
// token was supplied (never the token itself, so it isn't retained longer
// than necessary).
type PoolKey struct {
	Address      string
	Username     string
	HasToken     bool
}

// pooledEntry is one process-wide shared connection handle.
type pooledEntry struct {
	conn     any
	refcount int
	idleSince time.Time
}

// ConnectionPool is the one process-wide mutable piece of state shared
// across codebases: per-codebase adapters retrieve-or-create a pooled
// connection keyed by (address, username, token-presence) and release it
// when dropped. A background reaper closes entries idle past the threshold
// with refcount zero.
type ConnectionPool struct {
	mu       sync.Mutex
	entries  map[PoolKey]*pooledEntry
	idleReap time.Duration
	closeFn  func(conn any) error
	logger   *slog.Logger
	metrics  *observability.MetricsCollector
	stopCh   chan struct{}
	stopped  bool
}

// DefaultIdleReap is the pool's default idle threshold.
const DefaultIdleReap = 10 * time.Minute

// ReapInterval is how often the background reaper scans for idle entries.
const ReapInterval = 5 * time.Minute

// NewConnectionPool constructs a pool. closeFn releases one underlying
// connection; it is called by the reaper once an entry's refcount reaches
// zero and has been idle past idleReap.
func NewConnectionPool(idleReap time.Duration, closeFn func(conn any) error, logger *slog.Logger, metrics *observability.MetricsCollector) *ConnectionPool {
	if idleReap <= 0 {
		idleReap = DefaultIdleReap
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &ConnectionPool{
		entries:  make(map[PoolKey]*pooledEntry),
		idleReap: idleReap,
		closeFn:  closeFn,
		logger:   logger,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

func (p *ConnectionPool) reportConnections(key PoolKey, refcount int) {
	if p.metrics != nil {
		p.metrics.PoolConnections.WithLabelValues(key.Address).Set(float64(refcount))
	}
}

// Acquire returns the shared connection for key, creating it via makeFn if
// absent, and increments its reference count.
func (p *ConnectionPool) Acquire(key PoolKey, makeFn func() (any, error)) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		e.refcount++
		p.reportConnections(key, e.refcount)
		return e.conn, nil
	}

	conn, err := makeFn()
	if err != nil {
		return nil, err
	}
	p.entries[key] = &pooledEntry{conn: conn, refcount: 1}
	p.reportConnections(key, 1)
	return conn, nil
}

// Release decrements key's reference count. The connection is not closed
// immediately; the reaper closes refcount-zero entries once they've been
// idle past the threshold.
func (p *ConnectionPool) Release(key PoolKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		e.refcount = 0
		e.idleSince = time.Now()
	}
	p.reportConnections(key, e.refcount)
}

// Counts returns, for observability, the per-key connection reference
// counts.
func (p *ConnectionPool) Counts() map[PoolKey]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[PoolKey]int, len(p.entries))
	for k, e := range p.entries {
		out[k] = e.refcount
	}
	return out
}

func (p *ConnectionPool) reapLoop() {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *ConnectionPool) reapOnce() {
	p.mu.Lock()
	var toClose []any
	for k, e := range p.entries {
		if e.refcount == 0 && !e.idleSince.IsZero() && time.Since(e.idleSince) > p.idleReap {
			toClose = append(toClose, e.conn)
			delete(p.entries, k)
		}
	}
	p.mu.Unlock()

	for _, c := range toClose {
		if p.closeFn == nil {
			continue
		}
		if err := p.closeFn(c); err != nil {
			p.logger.Warn("vectorstore: pool reap close failed", "error", err)
		}
	}
}

// Stop halts the reaper goroutine. It does not close remaining entries.
func (p *ConnectionPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.stopCh)
}
