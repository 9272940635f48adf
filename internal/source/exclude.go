package source

import (
	"path"
	"strings"
)

// ExcludeMatcher evaluates exclude patterns against corpus-relative,
// slash-separated paths. The corpus walk and the filesystem watcher
// share one matcher so both agree on what lies outside the corpus.
//
// Supported pattern forms:
//   - **/name/**  a directory with that name anywhere in the tree
//   - dir/**      a root-level directory and everything under it
//   - **/*.ext    files with that extension anywhere
//   - **/name     files with that exact base name anywhere
//   - *suffix, prefix*, and exact base names
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher creates a matcher over the given patterns.
func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	return &ExcludeMatcher{patterns: patterns}
}

// MatchDir reports whether the directory at relPath is excluded.
// A walk should prune matched directories entirely.
func (m *ExcludeMatcher) MatchDir(relPath string) bool {
	for _, pattern := range m.patterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// MatchFile reports whether the file at relPath is excluded by a file
// pattern. Files under excluded directories are normally never seen
// because the walk prunes those directories first; callers without a
// pruning walk should use Match instead.
func (m *ExcludeMatcher) MatchFile(relPath string) bool {
	baseName := path.Base(relPath)
	for _, pattern := range m.patterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// Match reports whether relPath is excluded, treating it as a
// directory when isDir. For files it also checks the containing
// directory, so a single event path is judged the same way a pruning
// walk would judge it.
func (m *ExcludeMatcher) Match(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	if isDir {
		return m.MatchDir(relPath)
	}
	if dir := path.Dir(relPath); dir != "." && m.MatchDir(dir) {
		return true
	}
	return m.MatchFile(relPath)
}

// matchDirPattern checks if a directory path matches a pattern.
func matchDirPattern(relPath, pattern string) bool {
	// **/name/** matches the directory anywhere in the tree
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == suffix {
				return true
			}
		}
		return false
	}

	// dir/** matches the directory itself or anything under it
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+"/")
}

// matchFilePattern checks if a file matches a pattern.
func matchFilePattern(baseName, relPath, pattern string) bool {
	// dir/** matches any file under dir
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+"/")
	}

	// **/suffix patterns
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			// extension pattern like **/*.min.js
			return strings.HasSuffix(baseName, strings.TrimPrefix(suffix, "*"))
		}
		// bare name like **/go.sum
		return baseName == suffix
	}

	// *suffix
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))
	}

	// prefix*
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	return baseName == pattern
}
