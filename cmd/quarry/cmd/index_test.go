package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_BuildsIndex(t *testing.T) {
	// Given: a project with two documents
	dir := setupProject(t, map[string]string{
		"docs/a.txt": "the quick brown fox",
		"docs/b.txt": "jumps over the lazy dog",
	})
	chdir(t, dir)

	// When: running index
	out, err := runCLI(t, "index")

	// Then: both documents are indexed and the index files exist
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents")
	assert.FileExists(t, filepath.Join(dir, ".quarry", "index.json"))
	assert.FileExists(t, filepath.Join(dir, ".quarry", "vector.hnsw"))
}

func TestIndexCmd_SecondRunIsIncremental(t *testing.T) {
	// Given: an indexed project
	dir := setupProject(t, map[string]string{"a.txt": "alpha beta gamma"})
	chdir(t, dir)
	_, err := runCLI(t, "index")
	require.NoError(t, err)

	// When: indexing again without changes
	out, err := runCLI(t, "index")

	// Then: the run succeeds and reports the same document count
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
}

func TestIndexCmd_PicksUpNewFiles(t *testing.T) {
	// Given: an indexed project
	dir := setupProject(t, map[string]string{"a.txt": "alpha beta gamma"})
	chdir(t, dir)
	_, err := runCLI(t, "index")
	require.NoError(t, err)

	// When: a document is added and index runs again
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("delta epsilon"), 0644))
	out, err := runCLI(t, "index")

	// Then: the new document is included
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents")
}

func TestIndexCmd_FullRebuild(t *testing.T) {
	// Given: an indexed project
	dir := setupProject(t, map[string]string{"a.txt": "alpha beta gamma"})
	chdir(t, dir)
	_, err := runCLI(t, "index")
	require.NoError(t, err)

	// When: forcing a full rebuild
	out, err := runCLI(t, "index", "--full")

	// Then: the rebuild succeeds
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
}

func TestIndexCmd_ExplicitPath(t *testing.T) {
	// Given: a project directory, not the working directory
	dir := setupProject(t, map[string]string{"a.txt": "alpha beta gamma"})

	// When: indexing it by path
	out, err := runCLI(t, "index", dir)

	// Then: the index lands in that project's data directory
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
	assert.FileExists(t, filepath.Join(dir, ".quarry", "index.json"))
}

func TestIndexCmd_VectorDisabled_WarnsAndBuildsLexical(t *testing.T) {
	// Given: a project with vector search disabled
	dir := setupProject(t, map[string]string{"a.txt": "alpha beta gamma"})
	t.Setenv("QUARRY_VECTOR_ENABLED", "false")
	chdir(t, dir)

	// When: running index
	out, err := runCLI(t, "index")

	// Then: the lexical index builds and the vector skip is reported
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
	assert.Contains(t, out, "Vector search is disabled")
	assert.NoFileExists(t, filepath.Join(dir, ".quarry", "vector.hnsw"))
}
