package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/amanmcp/syncore/internal/syncctl"
)

// StatusSnapshot is the subset of a codebase's sync state the status and
// watch views render. It mirrors syncctl.StateRecord plus the counters
// get_sync_status reports.
type StatusSnapshot struct {
	Root           string
	Status         syncctl.Status
	Progress       int
	IndexedFiles   int
	TotalChunks    int
	Error          string
	RealtimeOn     bool
	PendingOps     int
	MtimeCacheSize int
}

// IsTTY reports whether w is a terminal file descriptor (TUI mode requires
// a real TTY).
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set (https://no-color.org).
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether the process looks like it's running under CI,
// in which case the TUI watch view falls back to plain polling output.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
