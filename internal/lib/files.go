package lib

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// PathMatchesOneOfPatterns reports whether path matches any of the doublestar
// patterns. Paths are normalized to forward slashes first so template sets
// authored on any OS behave the same way.
func PathMatchesOneOfPatterns(path string, patterns []string) (bool, error) {
	if path == "" {
		path = "."
	}
	path = filepath.ToSlash(path)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, fmt.Errorf("match pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}
