package rpctools

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// extensionFilterPattern is the required shape for each extension_filter
// entry.
var extensionFilterPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// requireAbsPath enforces that absolute paths are required from the
// caller; relative paths are rejected with an InputError.
func requireAbsPath(path string) (string, *ToolError) {
	if path == "" {
		return "", NewInvalidParamsError("path is required")
	}
	if !filepath.IsAbs(path) {
		return "", NewInvalidParamsError(fmt.Sprintf("path must be absolute, got %q", path))
	}
	return filepath.Clean(path), nil
}

// validateExtensionFilter enforces the `\.[A-Za-z0-9]+` shape per entry.
func validateExtensionFilter(filters []string) *ToolError {
	for _, f := range filters {
		if !extensionFilterPattern.MatchString(f) {
			return NewInvalidParamsError(fmt.Sprintf("extension_filter entry %q must match \\.[A-Za-z0-9]+", f))
		}
	}
	return nil
}

// resolveSplitter resolves the requested chunk splitter: `langchain` is
// accepted but silently falls back to `ast` with a warning; any other
// value is an InputError ("unknown splitter").
func resolveSplitter(requested string) (splitter string, warned bool, toolErr *ToolError) {
	switch requested {
	case "", "ast":
		return "ast", false, nil
	case "langchain":
		return "ast", true, nil
	default:
		return "", false, NewInvalidParamsError(fmt.Sprintf("unknown splitter %q", requested))
	}
}

// clampLimit applies the per-tool default/max limit rule.
func clampLimit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}
