package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// writeCorpus creates files under dir from a path -> content map.
func writeCorpus(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func TestFSSource_List_SortedRelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{
		"b.txt":       "dog fish",
		"a.txt":       "cat dog",
		"docs/faq.md": "how to quarry",
	})

	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)

	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "docs/faq.md"}, paths)
}

func TestFSSource_List_AppliesExcludes(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{
		"keep.go":                 "package main",
		"node_modules/dep/idx.js": "module.exports = {}",
		".quarry/index.json":      "{}",
		"style.min.css":           "body{}",
	})

	src, err := NewFSSource(dir, Options{Exclude: []string{
		"**/node_modules/**",
		"**/.quarry/**",
		"**/*.min.css",
	}})
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "keep.go", docs[0].Path)
}

func TestFSSource_List_IncludeRestrictsToDirs(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{
		"src/main.go": "package main",
		"docs/faq.md": "faq",
		"stray.txt":   "stray",
		"src/util.go": "package main",
	})

	src, err := NewFSSource(dir, Options{Include: []string{"src"}})
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "src/main.go", docs[0].Path)
	assert.Equal(t, "src/util.go", docs[1].Path)
}

func TestFSSource_List_SkipsBinaryAndOversized(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{"small.txt": "hello"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0x00, 0x01, 0x02}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 2048), 0o644))

	src, err := NewFSSource(dir, Options{MaxFileSize: 1024})
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "small.txt", docs[0].Path)
}

func TestFSSource_List_DetectsLanguage(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{
		"main.go":  "package main",
		"notes.md": "notes",
		"misc.xyz": "?",
	})

	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)

	byPath := map[string]string{}
	for _, d := range docs {
		byPath[d.Path] = d.Language
	}
	assert.Equal(t, "go", byPath["main.go"])
	assert.Equal(t, "markdown", byPath["notes.md"])
	assert.Equal(t, "", byPath["misc.xyz"])
}

func TestFSSource_Read(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{"a.txt": "cat dog"})

	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	data, err := src.Read(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "cat dog", string(data))
}

func TestFSSource_Read_MissingFile(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	_, err = src.Read(context.Background(), "gone.txt")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeFileNotFound, qerrors.GetCode(err))
}

func TestFSSource_Read_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	_, err = src.Read(context.Background(), "../outside.txt")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeInvalidPath, qerrors.GetCode(err))
}

func TestNewFSSource_RejectsFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewFSSource(file, Options{})
	assert.Error(t, err)
}

func TestFSSource_List_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, map[string]string{"a.txt": "cat"})

	src, err := NewFSSource(dir, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.List(ctx)
	assert.Error(t, err)
}
