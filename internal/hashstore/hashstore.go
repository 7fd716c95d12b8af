// Package hashstore persists the content-addressed view of a codebase: a
// per-file SHA-256 hash, a modification-time cache used to skip rehashing
// unchanged files, and a deterministic Merkle summary used to short-circuit
// "nothing changed" comparisons. State is snapshotted to a per-codebase JSON
// file under a well-known per-user directory, keyed by a hash of the
// codebase root, and written atomically (write-temp-then-rename).
package hashstore

import (
	"crypto/md5" //nolint:gosec // used only as a directory-naming digest, not for security
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	serr "github.com/amanmcp/syncore/internal/errors"
)

// FileRecord is one tracked file.
type FileRecord struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Mtime int64  `json:"mtime_ms"`
}

// snapshot is the on-disk representation.
type snapshot struct {
	FileHashes    [][2]string `json:"fileHashes"`
	MerkleDAG     string      `json:"merkleDAG"`
	MtimeCache    [][2]any    `json:"mtimeCache"`
	LastFullScan  int64       `json:"lastFullScan"`
}

// Store is the persistent map relative-path -> hash for one codebase, plus
// its mtime cache and Merkle summary. Not safe for concurrent use by more
// than one *Store instance against the same path; callers serialize
// mutations externally (SyncController holds the codebase lock).
type Store struct {
	mu sync.RWMutex

	snapshotPath string
	lockPath     string
	lock         *flock.Flock

	hashes       map[string]string
	mtimeCache   map[string]int64
	lastFullScan int64
}

// PathFor returns the snapshot file path for a codebase root, under dir
// (a well-known per-user state directory), keyed by a 128-bit digest of the
// absolute root path.
func PathFor(dir, absRoot string) string {
	sum := md5.Sum([]byte(absRoot)) //nolint:gosec
	return filepath.Join(dir, "merkle", hex.EncodeToString(sum[:])+".json")
}

// Open returns a Store bound to the snapshot file for absRoot under dir. It
// takes an advisory lock on a "<snapshot>.lock" file beside it so a second
// process targeting the same codebase fails fast instead of corrupting the
// snapshot.
func Open(dir, absRoot string) (*Store, error) {
	snapPath := PathFor(dir, absRoot)
	if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	lockPath := snapPath + ".lock"
	l := flock.New(lockPath)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("codebase %s is already locked by another process", absRoot)
	}

	s := &Store{
		snapshotPath: snapPath,
		lockPath:     lockPath,
		lock:         l,
		hashes:       make(map[string]string),
		mtimeCache:   make(map[string]int64),
	}
	return s, nil
}

// Close releases the advisory lock. It does not save the store.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Initialize loads the snapshot if present; otherwise it leaves the store
// empty for the caller to populate via a full scan and Save.
func (s *Store) Initialize() error {
	return s.Load()
}

// Get returns the stored hash for path, if any.
func (s *Store) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[path]
	return h, ok
}

// Mtime returns the cached mtime (epoch milliseconds) for path, if any.
func (s *Store) Mtime(path string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mtimeCache[path]
	return m, ok
}

// Upsert records or updates path's hash and mtime. Callers call Save() at a
// sync boundary; Upsert itself only mutates in-memory state.
func (s *Store) Upsert(path, hash string, mtimeMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[path] = hash
	s.mtimeCache[path] = mtimeMs
}

// Remove deletes path from both maps.
func (s *Store) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, path)
	delete(s.mtimeCache, path)
}

// Paths returns all tracked relative paths, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hashes))
	for p := range s.hashes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// LastFullScan returns the epoch-millisecond time of the last full scan,
// or zero if none has run.
func (s *Store) LastFullScan() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFullScan
}

// SetLastFullScan records the time of a completed full scan.
func (s *Store) SetLastFullScan(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFullScan = ms
}

// MerkleRoot computes the deterministic summary of all tracked hashes,
// sorted by path: "root:" || concat(hash(p) for p in sorted(keys)). It is
// used only as a fast nothing-changed short-circuit; authoritative diffs
// always come from per-file comparison.
func (s *Store) MerkleRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return merkleRoot(s.hashes)
}

func merkleRoot(hashes map[string]string) string {
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	h.Write([]byte("root:"))
	for _, p := range paths {
		h.Write([]byte(hashes[p]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile computes the SHA-256 hex digest of a regular file's bytes.
// Directories must never be passed here; callers are responsible for
// filtering them out (an IntegrityError otherwise).
func HashFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", serr.New(serr.KindIntegrity, "hashstore: refusing to hash directory "+path, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save serializes the store to its snapshot file atomically
// (write-temp-then-rename).
func (s *Store) Save() error {
	s.mu.RLock()
	snap := snapshot{
		LastFullScan: s.lastFullScan,
		MerkleDAG:    merkleRoot(s.hashes),
	}
	for p, h := range s.hashes {
		snap.FileHashes = append(snap.FileHashes, [2]string{p, h})
	}
	sort.Slice(snap.FileHashes, func(i, j int) bool { return snap.FileHashes[i][0] < snap.FileHashes[j][0] })
	for p, m := range s.mtimeCache {
		snap.MtimeCache = append(snap.MtimeCache, [2]any{p, m})
	}
	sort.Slice(snap.MtimeCache, func(i, j int) bool {
		return snap.MtimeCache[i][0].(string) < snap.MtimeCache[j][0].(string)
	})
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.snapshotPath); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load deserializes the store from its snapshot file. A missing file
// leaves the store empty (first-run case) and is not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	hashes := make(map[string]string, len(snap.FileHashes))
	for _, kv := range snap.FileHashes {
		hashes[kv[0]] = kv[1]
	}
	mtimes := make(map[string]int64, len(snap.MtimeCache))
	for _, kv := range snap.MtimeCache {
		path, _ := kv[0].(string)
		switch v := kv[1].(type) {
		case float64:
			mtimes[path] = int64(v)
		case int64:
			mtimes[path] = v
		}
	}

	s.mu.Lock()
	s.hashes = hashes
	s.mtimeCache = mtimes
	s.lastFullScan = snap.LastFullScan
	s.mu.Unlock()
	return nil
}

// Delete removes the snapshot file for a codebase root. clear_index does not
// call it; it resets the open Store and saves an empty snapshot instead.
func Delete(dir, absRoot string) error {
	path := PathFor(dir, absRoot)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NowMillis returns the current time as epoch milliseconds, used wherever
// the store needs "now" for mtime comparisons and full-scan scheduling.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
