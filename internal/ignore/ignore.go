// Package ignore resolves whether a path should be excluded from indexing,
// combining built-in defaults, codebase-local gitignore-style patterns, and
// explicit per-request additions. Hidden paths are always excluded.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPatterns are always-on exclusions, independent of any project's
// own ignore files.
var DefaultPatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"*.min.js",
	"*.lock",
}

// rule is a single compiled pattern.
type rule struct {
	pattern  string
	regex    *regexp.Regexp
	dirOnly  bool
	anchored bool
}

// Matcher answers whether a relative, slash-normalized path is ignored.
// Safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// New creates a Matcher seeded with DefaultPatterns plus any extra patterns.
func New(extra ...string) *Matcher {
	m := &Matcher{}
	for _, p := range DefaultPatterns {
		m.AddPattern(p)
	}
	for _, p := range extra {
		m.AddPattern(p)
	}
	return m
}

// AddPattern compiles and appends a single gitignore-flavored pattern.
// Order does not matter — any matching rule ignores the path.
func (m *Matcher) AddPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{pattern: pattern}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	if strings.Contains(pattern, "/") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + globToRegex(pattern) + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads newline-delimited patterns from a project-local ignore
// file (e.g. ".syncoreignore"). Missing files are not an error.
func (m *Matcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// globToRegex escapes regex metacharacters and translates a simple glob
// (no ** support) into an anchorable regex fragment.
func globToRegex(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether rel (a POSIX-style, root-relative path) is
// ignored: hidden components are always ignored, then the pattern list is
// consulted component-by-component so directory patterns propagate to
// everything beneath them.
func (m *Matcher) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "/")

	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") && p != "." && p != ".." {
			return true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rules {
		if m.ruleMatches(r, rel, parts) {
			return true
		}
	}
	return false
}

func (m *Matcher) ruleMatches(r rule, rel string, parts []string) bool {
	base := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(rel) {
			return true
		}
		if r.dirOnly {
			// Ancestor propagation: any prefix of rel matching the
			// directory pattern ignores everything under it.
			for i := 1; i < len(parts); i++ {
				if r.regex.MatchString(strings.Join(parts[:i], "/")) {
					return true
				}
			}
		}
		return false
	}

	// Unanchored: match against the final path component, or, for
	// directory-only patterns, also against any ancestor directory name.
	if r.regex.MatchString(base) {
		return true
	}
	if r.dirOnly {
		for _, p := range parts[:len(parts)-1] {
			if r.regex.MatchString(p) {
				return true
			}
		}
	}
	return false
}

// CacheSize bounds the number of per-directory Matchers kept in a Cache.
const CacheSize = 1000

// Cache memoizes Matchers by directory, used by scanners that walk large
// trees with many nested ignore files and want to avoid re-parsing them.
type Cache struct {
	lru *lru.Cache[string, *Matcher]
}

// NewCache creates a Cache with CacheSize entries of LRU eviction.
func NewCache() (*Cache, error) {
	l, err := lru.New[string, *Matcher](CacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// GetOrBuild returns the cached Matcher for dir, building it with build if
// absent.
func (c *Cache) GetOrBuild(dir string, build func() (*Matcher, error)) (*Matcher, error) {
	if v, ok := c.lru.Get(dir); ok {
		return v, nil
	}
	m, err := build()
	if err != nil {
		return nil, err
	}
	c.lru.Add(dir, m)
	return m, nil
}

// Invalidate drops a cached Matcher, forcing the next GetOrBuild to rebuild
// it — used when a project's ignore file changes at runtime.
func (c *Cache) Invalidate(dir string) {
	c.lru.Remove(dir)
}
