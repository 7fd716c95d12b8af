package ui

import (
	"fmt"
	"io"
)

// StatusRenderer prints a single StatusSnapshot to a writer. Used by
// `syncored status` for non-interactive output, and by RunWatch's plain
// polling fallback when output is not a TTY or the environment looks like CI.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer constructs a StatusRenderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report of snap.
func (r *StatusRenderer) Render(snap StatusSnapshot) {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("syncore: "+snap.Root))
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render("status:"), r.renderStatus(string(snap.Status)))
	if snap.Status == "indexing" {
		_, _ = fmt.Fprintf(r.out, "  %s %d%%\n", r.styles.Label.Render("progress:"), snap.Progress)
	}
	_, _ = fmt.Fprintf(r.out, "  %s %d\n", r.styles.Label.Render("files:"), snap.IndexedFiles)
	_, _ = fmt.Fprintf(r.out, "  %s %d\n", r.styles.Label.Render("chunks:"), snap.TotalChunks)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render("realtime sync:"), r.renderBool(snap.RealtimeOn))
	_, _ = fmt.Fprintf(r.out, "  %s %d\n", r.styles.Label.Render("pending ops:"), snap.PendingOps)
	_, _ = fmt.Fprintf(r.out, "  %s %d\n", r.styles.Label.Render("mtime cache:"), snap.MtimeCacheSize)
	if snap.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render("error:"), r.styles.Error.Render(snap.Error))
	}
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "indexed":
		return r.styles.Success.Render(status)
	case "indexing":
		return r.styles.Active.Render(status)
	case "indexfailed":
		return r.styles.Error.Render(status)
	default:
		return r.styles.Dim.Render(status)
	}
}

func (r *StatusRenderer) renderBool(on bool) string {
	if on {
		return r.styles.Success.Render("on")
	}
	return r.styles.Dim.Render("off")
}
