// Package source provides the document-source capability: listing a corpus
// and reading document contents. The filesystem implementation respects
// exclusion patterns, skips binaries, and enforces a size ceiling.
package source

import (
	"context"
	"path/filepath"
	"time"
)

// DocInfo contains listing metadata for one corpus member.
type DocInfo struct {
	Path     string    // relative to the corpus root, slash-separated
	Size     int64     // size in bytes
	ModTime  time.Time // last modification time
	Language string    // detected from extension, empty if unknown
}

// Source is the capability index builders consume. Implementations must
// return stable, sorted listings so build rounds are deterministic.
type Source interface {
	// Root returns the corpus root this source serves.
	Root() string

	// List returns the current corpus listing, sorted by path.
	List(ctx context.Context) ([]DocInfo, error)

	// Read returns the content of one document by its listing path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// DefaultMaxFileSize is the default maximum document size (1MB).
const DefaultMaxFileSize = 1 * 1024 * 1024

// languageMap maps file extensions to languages for the optional
// language tag on listings.
var languageMap = map[string]string{
	".go":       "go",
	".js":       "javascript",
	".jsx":      "javascript",
	".mjs":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".py":       "python",
	".rb":       "ruby",
	".rs":       "rust",
	".java":     "java",
	".c":        "c",
	".h":        "c",
	".cpp":      "cpp",
	".hpp":      "cpp",
	".cs":       "csharp",
	".php":      "php",
	".swift":    "swift",
	".kt":       "kotlin",
	".sh":       "shell",
	".bash":     "shell",
	".html":     "html",
	".css":      "css",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".xml":      "xml",
	".sql":      "sql",
	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",
}

// DetectLanguage returns the language for a path based on its extension.
// Returns empty string for unknown extensions.
func DetectLanguage(path string) string {
	ext := filepath.Ext(path)
	return languageMap[ext]
}
