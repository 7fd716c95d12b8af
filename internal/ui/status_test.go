package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amanmcp/syncore/internal/syncctl"
)

func TestStatusRenderer_RenderIncludesCoreFields(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	r.Render(StatusSnapshot{
		Root:           "/tmp/project",
		Status:         syncctl.StatusIndexed,
		IndexedFiles:   12,
		TotalChunks:    340,
		RealtimeOn:     true,
		PendingOps:     2,
		MtimeCacheSize: 12,
	})

	out := buf.String()
	assert.Contains(t, out, "/tmp/project")
	assert.Contains(t, out, "indexed")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "340")
}

func TestStatusRenderer_RenderIncludesError(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	r.Render(StatusSnapshot{Root: "/tmp/x", Status: syncctl.StatusFailed, Error: "boom"})

	assert.True(t, strings.Contains(buf.String(), "boom"))
}

func TestGetStyles_NoColorYieldsUnstyledOutput(t *testing.T) {
	s := GetStyles(true)
	assert.Equal(t, "plain", s.Header.Render("plain"))
}
