// Package syncctl implements the single-writer per-codebase orchestrator:
// it drives the three sync workflows — full index, incremental reindex,
// single-file update — plus the gitignore-reconciliation and
// startup-reconciliation paths, against ChangeDetector, Indexer, and
// VectorStore.
package syncctl

import "time"

// Status is the Codebase state-machine value:
//
//	not_indexed ──index()──► indexing ──ok──► indexed
//	                               │
//	                               └──err──► failed
//	indexed ──clear()──► not_indexed
//	failed ──index()──► indexing (retry)
//	indexed ──index(force)──► indexing (drops collection first)
type Status string

const (
	StatusNotIndexed Status = "not_indexed"
	StatusIndexing   Status = "indexing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "indexfailed"
)

// StateRecord is the persisted per-codebase status record.
type StateRecord struct {
	Status       Status    `json:"status"`
	Progress     int       `json:"progress,omitempty"`
	IndexedFiles int       `json:"indexedFiles,omitempty"`
	TotalChunks  int       `json:"totalChunks,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated,omitempty"`
	Error        string    `json:"error,omitempty"`
	LastProgress int       `json:"lastProgress,omitempty"`
}

// canIndex reports whether an index() / index(force) request is legal from
// the current status, per the state diagram above; canClear does the same
// for clear().
func (s Status) canIndex() bool {
	switch s {
	case StatusNotIndexed, StatusFailed, StatusIndexed:
		return true
	case StatusIndexing:
		return false
	default:
		return false
	}
}

func (s Status) canClear() bool {
	return s != StatusIndexing
}
