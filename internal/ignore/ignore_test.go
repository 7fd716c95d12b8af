package ignore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_HiddenAlwaysIgnored(t *testing.T) {
	m := New()
	assert.True(t, m.Matches(".git/config"))
	assert.True(t, m.Matches("src/.hidden/file.go"))
	assert.False(t, m.Matches("src/visible/file.go"))
}

func TestMatcher_FilenameGlob(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	assert.True(t, m.Matches("debug.log"))
	assert.True(t, m.Matches("nested/dir/debug.log"))
	assert.False(t, m.Matches("debug.logx"))
}

func TestMatcher_PathGlob(t *testing.T) {
	m := New()
	m.AddPattern("build/*.map")
	assert.True(t, m.Matches("build/out.map"))
	assert.False(t, m.Matches("other/out.map"))
}

func TestMatcher_DirectoryPatternPropagates(t *testing.T) {
	m := New()
	m.AddPattern("build/")
	assert.True(t, m.Matches("build/out.map"))
	assert.True(t, m.Matches("build/nested/deep/file.txt"))
	assert.False(t, m.Matches("notbuild/out.map"))
}

func TestMatcher_Idempotence(t *testing.T) {
	m := New()
	m.AddPattern("*.tmp")
	m.AddPattern("build/")

	for i := 0; i < 3; i++ {
		assert.True(t, m.Matches("a/b/c.tmp"))
		assert.True(t, m.Matches("build/x"))
	}

	// A path built with filepath.Join and normalized with ToSlash, the way
	// the detector normalizes it, matches like the literal slash form.
	rel := filepath.ToSlash(filepath.Join("a", "b", "c.tmp"))
	assert.Equal(t, m.Matches(rel), m.Matches("a/b/c.tmp"))
}

func TestMatcher_AddFromFile_MissingIsNoop(t *testing.T) {
	m := New()
	require.NoError(t, m.AddFromFile(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestCache_GetOrBuild(t *testing.T) {
	c, err := NewCache()
	require.NoError(t, err)

	calls := 0
	build := func() (*Matcher, error) {
		calls++
		return New(), nil
	}

	m1, err := c.GetOrBuild("/a", build)
	require.NoError(t, err)
	m2, err := c.GetOrBuild("/a", build)
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Equal(t, 1, calls)

	c.Invalidate("/a")
	_, err = c.GetOrBuild("/a", build)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
