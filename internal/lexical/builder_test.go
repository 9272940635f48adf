package lexical

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/source"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// writeCorpus creates files under root with a fixed mtime so change
// detection is deterministic.
func writeCorpus(t *testing.T, root string, docs map[string]string) {
	t.Helper()
	for name, content := range docs {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		require.NoError(t, os.Chtimes(path, baseTime, baseTime))
	}
}

func newTestBuilder(t *testing.T, root, dataDir string) *Builder {
	t.Helper()
	return newTestBuilderCfg(t, root, dataDir, Config{
		MinTokenLength: 2,
		SnippetLength:  80,
		HashWorkers:    2,
	})
}

func newTestBuilderCfg(t *testing.T, root, dataDir string, cfg Config) *Builder {
	t.Helper()
	src, err := source.NewFSSource(root, source.Options{})
	require.NoError(t, err)
	return NewBuilder(src, indexcache.NewStore(dataDir), cfg)
}

func TestBuilder_FullBuildAndQuery(t *testing.T) {
	// Given: the canonical corpus {a.txt: "cat dog", b.txt: "dog fish"}
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, t.TempDir())

	// When: building and querying "dog"
	snap, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	hits := snap.Search("dog", 10)

	// Then: df(dog)=2 gives IDF 1, both documents score 1, and the
	// tie resolves to [a.txt, b.txt]
	assert.Equal(t, 2, snap.DocCount())
	require.Len(t, hits, 2)
	assert.Equal(t, "a.txt", hits[0].Path)
	assert.Equal(t, "b.txt", hits[1].Path)
	assert.Equal(t, 1.0, hits[0].Score)
	assert.Equal(t, 1.0, hits[1].Score)
}

func TestBuilder_SecondBuildIsIdempotent(t *testing.T) {
	// Given: a built corpus
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, dataDir)
	_, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	before, err := os.ReadFile(b.store.Path())
	require.NoError(t, err)

	// When: a fresh builder runs with no corpus change
	b2 := newTestBuilder(t, root, dataDir)
	snap, err := b2.Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: the cache file is byte-identical and the index matches
	after, err := os.ReadFile(b2.store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, snap.DocCount())
}

func TestBuilder_IncrementalAddEqualsFullRebuild(t *testing.T) {
	// Given: a cached build of the two-document corpus
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, dataDir)
	_, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	// When: adding c.txt and building incrementally
	writeCorpus(t, root, map[string]string{"c.txt": "dog bird"})
	incr, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: frequencies and IDF match a from-scratch rebuild
	full, err := newTestBuilder(t, root, t.TempDir()).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, full.idx.df, incr.idx.df)
	assert.Equal(t, full.idx.idf, incr.idx.idf)
	assert.Equal(t, full.DocCount(), incr.DocCount())
}

func TestBuilder_IncrementalRemoveEqualsFullRebuild(t *testing.T) {
	// Given: a cached build of the two-document corpus
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, dataDir)
	_, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	// When: removing b.txt and building incrementally
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	incr, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: df(dog)=1, IDF(dog)=1, and a.txt scores 1 alone
	assert.Equal(t, 1, incr.DocCount())
	assert.Equal(t, 1, incr.idx.DF("dog"))
	assert.Equal(t, 0, incr.idx.DF("fish"))
	assert.Equal(t, 1.0, incr.idx.IDF("dog"))

	hits := incr.Search("dog", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.txt", hits[0].Path)
	assert.Equal(t, 1.0, hits[0].Score)

	// And: the result equals a from-scratch rebuild
	full, err := newTestBuilder(t, root, t.TempDir()).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, full.idx.df, incr.idx.df)
	assert.Equal(t, full.idx.idf, incr.idx.idf)
}

func TestBuilder_IncrementalModifyEqualsFullRebuild(t *testing.T) {
	// Given: a cached build of the two-document corpus
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	_, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// When: rewriting b.txt with new content at a later mtime
	path := filepath.Join(root, "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("bird fish"), 0644))
	require.NoError(t, os.Chtimes(path, baseTime.Add(5*time.Second), baseTime.Add(5*time.Second)))
	incr, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: the old vector's contribution is gone and the new one
	// matches a from-scratch rebuild
	assert.Equal(t, 1, incr.idx.DF("dog"))
	assert.Equal(t, 1, incr.idx.DF("bird"))

	full, err := newTestBuilder(t, root, t.TempDir()).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, full.idx.df, incr.idx.df)
	assert.Equal(t, full.idx.idf, incr.idx.idf)
}

func TestBuilder_VersionMismatchRebuildsSilently(t *testing.T) {
	// Given: a cache file written with a different format version
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, dataDir)
	_, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(b.store.Path())
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["formatVersion"] = indexcache.FormatVersion + 1
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b.store.Path(), data, 0644))

	// When: building again
	snap, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)

	// Then: the build succeeds via full rebuild, no error surfaces,
	// and the rewritten cache carries the current version
	require.NoError(t, err)
	assert.Equal(t, 2, snap.DocCount())

	reloaded, err := indexcache.NewStore(dataDir).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, indexcache.FormatVersion, reloaded.FormatVersion)
}

func TestBuilder_CorruptCacheRebuildsSilently(t *testing.T) {
	// Given: a cache file containing garbage
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog"})
	b := newTestBuilder(t, root, dataDir)
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	require.NoError(t, os.WriteFile(b.store.Path(), []byte("{broken"), 0644))

	// When: building
	snap, err := b.Build(context.Background(), nil)

	// Then: the build succeeds via full rebuild
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DocCount())
}

func TestBuilder_FrequencyDefectFallsBackToFullRebuild(t *testing.T) {
	// Given: a cached index whose persisted frequencies were damaged
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog", "b.txt": "dog fish"})
	b := newTestBuilder(t, root, dataDir)
	_, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(b.store.Path())
	require.NoError(t, err)
	var file indexcache.File
	require.NoError(t, json.Unmarshal(data, &file))
	var s Serialized
	require.NoError(t, json.Unmarshal(file.LexicalIndex, &s))
	delete(s.DF, "dog")
	file.LexicalIndex, err = json.Marshal(&s)
	require.NoError(t, err)
	data, err = json.Marshal(&file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b.store.Path(), data, 0644))

	// When: removing b.txt triggers an incremental subtraction that
	// would drive df below zero
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	snap, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)

	// Then: the round succeeds through a full rebuild with correct
	// frequencies
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DocCount())
	assert.Equal(t, 1, snap.idx.DF("dog"))
	assert.Equal(t, 1, snap.idx.DF("cat"))
}

func TestBuilder_TokenizerChangeForcesRebuild(t *testing.T) {
	// Given: a cache built with minimum token length 2
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "go dog"})
	_, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// When: building with minimum token length 3 over the same cache
	b := newTestBuilderCfg(t, root, dataDir, Config{MinTokenLength: 3, HashWorkers: 2})
	snap, err := b.Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: the index was rebuilt under the new tokenizer
	assert.Empty(t, snap.Search("go", 10))
	require.Len(t, snap.Search("dog", 10), 1)
}

func TestBuilder_TouchedFileUpdatesFingerprintOnly(t *testing.T) {
	// Given: a built corpus
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog"})
	_, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// When: touching a.txt without changing content
	touched := baseTime.Add(30 * time.Second)
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.Chtimes(path, touched, touched))
	snap, err := newTestBuilder(t, root, dataDir).Build(context.Background(), nil)
	require.NoError(t, err)

	// Then: the index is unchanged but the recorded mtime moved
	assert.Equal(t, 1, snap.DocCount())
	file, err := indexcache.NewStore(dataDir).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, touched.Unix(), file.Fingerprints["a.txt"].MTime)
}

func TestBuilder_ClearPreservesVectorSection(t *testing.T) {
	// Given: a cache file carrying a vector index location
	root, dataDir := t.TempDir(), t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat dog"})
	b := newTestBuilder(t, root, dataDir)
	ctx := context.Background()
	_, err := b.Build(ctx, nil)
	require.NoError(t, err)
	err = b.store.Update(ctx, b.rootID, func(f *indexcache.File) error {
		f.VectorIndexLocation = "vector.hnsw"
		return nil
	})
	require.NoError(t, err)

	// When: clearing the lexical builder
	require.NoError(t, b.Clear(ctx))

	// Then: lexical sections are gone, the vector location survives
	file, err := b.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, file.Fingerprints)
	assert.Empty(t, file.LexicalIndex)
	assert.Equal(t, "vector.hnsw", file.VectorIndexLocation)
}

func TestBuilder_EmptyCorpus(t *testing.T) {
	// Given: a corpus with no documents
	b := newTestBuilder(t, t.TempDir(), t.TempDir())

	// When: building
	snap, err := b.Build(context.Background(), nil)

	// Then: the build succeeds with an empty index
	require.NoError(t, err)
	assert.Equal(t, 0, snap.DocCount())
	assert.Empty(t, snap.Search("dog", 10))
}

func TestBuilder_SnippetsStoredAtIndexTime(t *testing.T) {
	// Given: a document with messy whitespace
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "cat\n\n  dog   fish jumps"})
	b := newTestBuilder(t, root, t.TempDir())

	// When: building and searching
	snap, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	hits := snap.Search("dog", 10)

	// Then: the hit carries a normalized snippet
	require.Len(t, hits, 1)
	assert.Equal(t, "cat dog fish jumps", hits[0].Snippet)
}

func TestBuilder_ProgressReported(t *testing.T) {
	// Given: a three-document corpus
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{
		"a.txt": "cat dog",
		"b.txt": "dog fish",
		"c.txt": "bird dog",
	})
	b := newTestBuilder(t, root, t.TempDir())

	// When: building with a progress callback
	var items []string
	var lastIndexed, lastTotal int
	_, err := b.Build(context.Background(), func(item string, indexed, total int) {
		items = append(items, item)
		lastIndexed, lastTotal = indexed, total
	})
	require.NoError(t, err)

	// Then: every document was reported in deterministic order
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, items)
	assert.Equal(t, 3, lastIndexed)
	assert.Equal(t, 3, lastTotal)
}
