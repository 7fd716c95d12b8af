package observability

// CodebaseSnapshot is the narrow view of one codebase's sync state that
// HealthCheck needs. Built by syncctl.Controller.Snapshot; kept here as a
// plain struct so observability never imports syncctl.
type CodebaseSnapshot struct {
	Path            string
	IndexExists     bool
	SynchronizerUp  bool
	MtimeCacheSize  int
	PendingOps      int
}

// HealthReport is the structured result the health_check tool returns.
type HealthReport struct {
	Healthy  bool     `json:"healthy"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// pendingOpsWarnThreshold flags a single codebase whose watcher has a large
// backlog of armed debounce timers.
const pendingOpsWarnThreshold = 10

// globalCacheWarnThreshold and globalPendingWarnThreshold gate the
// process-wide warnings across all tracked codebases.
const (
	globalCacheWarnThreshold   = 50
	globalPendingWarnThreshold = 20
)

// CheckCodebase evaluates one codebase's snapshot: a missing path or
// absent index is an issue; an empty mtime cache or a large watcher
// backlog is a warning.
func CheckCodebase(pathExists bool, snap CodebaseSnapshot) HealthReport {
	var report HealthReport

	if !pathExists {
		report.Issues = append(report.Issues, "codebase path does not exist: "+snap.Path)
	}
	if !snap.IndexExists {
		report.Issues = append(report.Issues, "no index found for codebase: "+snap.Path)
	}
	if !snap.SynchronizerUp {
		report.Issues = append(report.Issues, "synchronizer not running for codebase: "+snap.Path)
	}
	if snap.IndexExists && snap.MtimeCacheSize == 0 {
		report.Warnings = append(report.Warnings, "mtime cache is empty for codebase: "+snap.Path)
	}
	if snap.PendingOps > pendingOpsWarnThreshold {
		report.Warnings = append(report.Warnings, "watcher has a large pending-operations backlog: "+snap.Path)
	}

	report.Healthy = len(report.Issues) == 0
	return report
}

// CheckGlobal aggregates process-wide thresholds across every tracked
// codebase: too many cached synchronizers, or too much pending watcher work
// in total.
func CheckGlobal(snapshots []CodebaseSnapshot) HealthReport {
	var report HealthReport

	totalPending := 0
	for _, s := range snapshots {
		totalPending += s.PendingOps
	}

	if len(snapshots) > globalCacheWarnThreshold {
		report.Warnings = append(report.Warnings, "more than 50 codebases are cached in memory")
	}
	if totalPending > globalPendingWarnThreshold {
		report.Warnings = append(report.Warnings, "more than 20 pending watcher operations across all codebases")
	}

	report.Healthy = true
	return report
}

// NewHealthReport returns an empty, healthy report ready for Merge calls.
func NewHealthReport() HealthReport {
	return HealthReport{Healthy: true}
}

// Merge combines a per-codebase report into an aggregate one, used by
// get_sync_status / health_check when reporting across every tracked
// codebase at once.
func (h *HealthReport) Merge(other HealthReport) {
	h.Issues = append(h.Issues, other.Issues...)
	h.Warnings = append(h.Warnings, other.Warnings...)
	if !other.Healthy {
		h.Healthy = false
	}
}
