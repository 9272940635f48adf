package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrysearch/quarry/internal/search"
)

// indexedProject creates, indexes, and enters a small corpus.
func indexedProject(t *testing.T) string {
	t.Helper()
	dir := setupProject(t, map[string]string{
		"docs/a.txt": "the quick brown fox",
		"docs/b.txt": "jumps over the lazy dog",
	})
	chdir(t, dir)
	_, err := runCLI(t, "index")
	require.NoError(t, err)
	return dir
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	// Given: a project without an index
	dir := setupProject(t, map[string]string{"a.txt": "hello"})
	chdir(t, dir)

	// When: running search
	_, err := runCLI(t, "search", "hello")

	// Then: error about missing index
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: search command without a query argument
	_, err := runCLI(t, "search")

	// Then: cobra rejects the call
	require.Error(t, err)
}

func TestSearchCmd_WithIndex_ReturnsResults(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: searching for a term that appears in one document
	out, err := runCLI(t, "search", "fox")

	// Then: the matching document is listed
	require.NoError(t, err)
	assert.Contains(t, out, "Found")
	assert.Contains(t, out, "docs/a.txt")
}

func TestSearchCmd_NoResults(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: searching for a term that matches nothing lexically and has
	// only lexical search enabled
	out, err := runCLI(t, "search", "zzyzzx", "--type", "lexical")

	// Then: the empty result is reported, not an error
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: searching with --json
	out, err := runCLI(t, "search", "fox", "--json")

	// Then: the output decodes as a result list with the match first
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/a.txt", results[0].Path)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchCmd_LexicalOnly(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: restricting to the lexical index
	out, err := runCLI(t, "search", "fox", "--type", "lexical", "--json")

	// Then: every result is attributed to the lexical index
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, search.ProvenanceLexical, r.Provenance)
	}
}

func TestSearchCmd_VectorOnly(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: restricting to the vector index
	out, err := runCLI(t, "search", "fox", "--type", "vector", "--json")

	// Then: results come back attributed to the vector index
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, search.ProvenanceVector, r.Provenance)
	}
}

func TestSearchCmd_UnknownType(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: passing an unsupported type
	_, err := runCLI(t, "search", "fox", "--type", "fuzzy")

	// Then: the error names the bad type
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown search type")
	assert.Contains(t, err.Error(), "fuzzy")
}

func TestSearchCmd_LimitRespected(t *testing.T) {
	// Given: a project where one term appears in several documents
	docs := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		docs[name+".txt"] = "shared term document " + name
	}
	dir := setupProject(t, docs)
	chdir(t, dir)
	_, err := runCLI(t, "index")
	require.NoError(t, err)

	// When: limiting to two results
	out, err := runCLI(t, "search", "shared", "--limit", "2", "--json")

	// Then: exactly two results come back
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 2)
}

func TestSearchCmd_MultiWordQuery(t *testing.T) {
	// Given: an indexed project
	indexedProject(t)

	// When: the query is given as multiple arguments
	out, err := runCLI(t, "search", "quick", "fox")

	// Then: the words are joined into one query
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"quick fox"`), "query should be echoed joined: %s", out)
}
