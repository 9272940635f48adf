package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embedAll is a test helper that embeds texts and adds them under their
// paths in one pass.
func embedAll(t *testing.T, st *Store, e Embedder, docs map[string]string) {
	t.Helper()
	for path, text := range docs {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.NoError(t, st.Add(context.Background(), []string{path}, [][]float32{vec}))
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	// Given: three documents in distinct topics
	e := NewHashEmbedder(128)
	st := NewStore(StoreConfig{Dimensions: 128})
	embedAll(t, st, e, map[string]string{
		"net.txt":  "tcp socket connection listener accept",
		"math.txt": "matrix eigenvalue decomposition solver",
		"food.txt": "sourdough bread proofing schedule",
	})

	// When: searching with the exact text of one document
	query, err := e.Embed(context.Background(), "tcp socket connection listener accept")
	require.NoError(t, err)
	matches, err := st.Search(context.Background(), query, 3)
	require.NoError(t, err)

	// Then: the matching document ranks first with a perfect score
	require.NotEmpty(t, matches)
	assert.Equal(t, "net.txt", matches[0].Path)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	assert.Equal(t, 3, st.Count())
}

func TestStore_ReplaceExistingPath(t *testing.T) {
	// Given: a document indexed under one topic
	e := NewHashEmbedder(64)
	st := NewStore(StoreConfig{Dimensions: 64})
	embedAll(t, st, e, map[string]string{"doc.txt": "kubernetes pod scheduling"})

	// When: re-adding the same path with different content
	vec, err := e.Embed(context.Background(), "piano sonata in c minor")
	require.NoError(t, err)
	require.NoError(t, st.Add(context.Background(), []string{"doc.txt"}, [][]float32{vec}))

	// Then: the count is unchanged and only the new content matches
	assert.Equal(t, 1, st.Count())

	newQuery, err := e.Embed(context.Background(), "piano sonata in c minor")
	require.NoError(t, err)
	matches, err := st.Search(context.Background(), newQuery, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
}

func TestStore_Remove(t *testing.T) {
	e := NewHashEmbedder(64)
	st := NewStore(StoreConfig{Dimensions: 64})
	embedAll(t, st, e, map[string]string{
		"a.txt": "alpha contents here",
		"b.txt": "beta contents here",
	})

	require.NoError(t, st.Remove(context.Background(), []string{"a.txt"}))

	assert.Equal(t, 1, st.Count())
	assert.False(t, st.Contains("a.txt"))
	assert.True(t, st.Contains("b.txt"))

	// Lazy deletion keeps the node in the graph but out of results.
	query, err := e.Embed(context.Background(), "alpha contents here")
	require.NoError(t, err)
	matches, err := st.Search(context.Background(), query, 2)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "a.txt", m.Path)
	}
}

func TestStore_RemoveUnknownPathIsNoop(t *testing.T) {
	st := NewStore(StoreConfig{Dimensions: 8})
	require.NoError(t, st.Remove(context.Background(), []string{"ghost.txt"}))
	assert.Equal(t, 0, st.Count())
}

func TestStore_DimensionMismatch(t *testing.T) {
	st := NewStore(StoreConfig{Dimensions: 16})

	err := st.Add(context.Background(), []string{"x"}, [][]float32{make([]float32, 8)})
	var dimErr DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 16, dimErr.Want)
	assert.Equal(t, 8, dimErr.Got)

	_, err = st.Search(context.Background(), make([]float32, 32), 1)
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 32, dimErr.Got)
}

func TestStore_LengthMismatch(t *testing.T) {
	st := NewStore(StoreConfig{Dimensions: 8})
	err := st.Add(context.Background(), []string{"a", "b"}, [][]float32{make([]float32, 8)})
	require.Error(t, err)
}

func TestStore_EmptySearch(t *testing.T) {
	st := NewStore(StoreConfig{Dimensions: 8})

	matches, err := st.Search(context.Background(), make([]float32, 8), 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = st.Search(context.Background(), make([]float32, 8), 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_Closed(t *testing.T) {
	st := NewStore(StoreConfig{Dimensions: 8})
	require.NoError(t, st.Close())
	require.NoError(t, st.Close(), "double close is fine")

	err := st.Add(context.Background(), []string{"a"}, [][]float32{make([]float32, 8)})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = st.Search(context.Background(), make([]float32, 8), 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, st.Remove(context.Background(), []string{"a"}), ErrStoreClosed)
	assert.ErrorIs(t, st.Save(filepath.Join(t.TempDir(), "v.hnsw")), ErrStoreClosed)
	assert.Equal(t, 0, st.Count())
	assert.False(t, st.Contains("a"))
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	// Given: a populated store saved to disk
	e := NewHashEmbedder(64)
	st := NewStore(StoreConfig{Dimensions: 64, M: 16, EfSearch: 20})
	docs := map[string]string{
		"net.txt":  "tcp socket connection listener accept",
		"math.txt": "matrix eigenvalue decomposition solver",
		"food.txt": "sourdough bread proofing schedule",
	}
	embedAll(t, st, e, docs)

	path := filepath.Join(t.TempDir(), "vector.hnsw")
	require.NoError(t, st.Save(path))

	// When: loading it back
	loaded, err := LoadStore(path)
	require.NoError(t, err)

	// Then: counts, dimensions, and search results survive the trip
	assert.Equal(t, st.Count(), loaded.Count())
	assert.Equal(t, 64, loaded.Dimensions())
	for p := range docs {
		assert.True(t, loaded.Contains(p))
	}

	query, err := e.Embed(context.Background(), "matrix eigenvalue decomposition solver")
	require.NoError(t, err)
	matches, err := loaded.Search(context.Background(), query, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "math.txt", matches[0].Path)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
}

func TestStore_LoadMissingFile(t *testing.T) {
	_, err := LoadStore(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.Error(t, err)
}

func TestStore_SearchLimitsToK(t *testing.T) {
	e := NewHashEmbedder(64)
	st := NewStore(StoreConfig{Dimensions: 64})
	embedAll(t, st, e, map[string]string{
		"a.txt": "shared topic words one",
		"b.txt": "shared topic words two",
		"c.txt": "shared topic words three",
	})

	query, err := e.Embed(context.Background(), "shared topic words")
	require.NoError(t, err)
	matches, err := st.Search(context.Background(), query, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}
