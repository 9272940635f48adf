package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Options configures an FSSource.
type Options struct {
	// Include restricts listing to these top-level directories (empty = all).
	Include []string

	// Exclude specifies patterns to exclude.
	Exclude []string

	// MaxFileSize is the maximum document size in bytes (0 = 1MB default).
	MaxFileSize int64
}

// FSSource serves documents from a filesystem tree.
type FSSource struct {
	root        string
	include     []string
	exclude     *ExcludeMatcher
	maxFileSize int64
}

// NewFSSource creates a filesystem source rooted at root.
func NewFSSource(root string, opts Options) (*FSSource, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidPath, err)
	}
	if !info.IsDir() {
		return nil, qerrors.New(qerrors.ErrCodeInvalidPath,
			fmt.Sprintf("corpus root is not a directory: %s", absRoot), nil)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &FSSource{
		root:        absRoot,
		include:     opts.Include,
		exclude:     NewExcludeMatcher(opts.Exclude),
		maxFileSize: maxSize,
	}, nil
}

// Root returns the corpus root.
func (s *FSSource) Root() string {
	return s.root
}

// ExcludeMatcher returns the matcher this source filters with, for
// callers that must agree with the listing (the filesystem watcher).
func (s *FSSource) ExcludeMatcher() *ExcludeMatcher {
	return s.exclude
}

// List walks the corpus and returns listing metadata for every indexable
// document. filepath.WalkDir visits entries in lexical order, so the result
// is already sorted by path.
func (s *FSSource) List(ctx context.Context) ([]DocInfo, error) {
	var docs []DocInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip entries we cannot access
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.exclude.MatchDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.exclude.MatchFile(relPath) {
			return nil
		}
		if !s.included(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.maxFileSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		docs = append(docs, DocInfo{
			Path:     relPath,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: DetectLanguage(relPath),
		})
		return nil
	})
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeScanFailed, "corpus listing failed", err)
	}

	return docs, nil
}

// Read returns the content of one document. The path must be a listing
// path: relative, slash-separated, inside the root.
func (s *FSSource) Read(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, qerrors.New(qerrors.ErrCodeInvalidPath,
			fmt.Sprintf("path escapes corpus root: %s", path), nil)
	}

	abs := filepath.Join(s.root, clean)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.New(qerrors.ErrCodeFileNotFound, path, err)
		}
		return nil, qerrors.New(qerrors.ErrCodeFileRead, path, err)
	}
	if info.Size() > s.maxFileSize {
		return nil, qerrors.New(qerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, limit %d", path, info.Size(), s.maxFileSize), nil)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeFileRead, path, err)
	}
	return data, nil
}

// included checks the listing against include directories, if any.
func (s *FSSource) included(relPath string) bool {
	if len(s.include) == 0 {
		return true
	}
	for _, dir := range s.include {
		dir = strings.Trim(filepath.ToSlash(dir), "/")
		if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
			return true
		}
	}
	return false
}

// isBinaryFile checks if a file is binary by looking for null bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}

	return bytes.Contains(buf[:n], []byte{0})
}

// Verify interface implementation
var _ Source = (*FSSource)(nil)
