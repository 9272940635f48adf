package vector

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/indexer"
	"github.com/quarrysearch/quarry/internal/lexical"
	"github.com/quarrysearch/quarry/internal/source"
)

// Snapshot is one immutable published vector index round. It implements
// the Provider capability for the query path.
type Snapshot struct {
	store     *Store
	embedder  Embedder
	snippets  map[string]string
	indexedAt time.Time
}

// DocCount returns the number of indexed documents.
func (s *Snapshot) DocCount() int {
	return s.store.Count()
}

// IndexedAt returns when this round was assembled.
func (s *Snapshot) IndexedAt() time.Time {
	return s.indexedAt
}

// Embed produces the embedding for query text using the same scheme the
// index was built with.
func (s *Snapshot) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

// SimilaritySearch returns up to k nearest documents, best first, with
// display snippets attached.
func (s *Snapshot) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]Match, error) {
	matches, err := s.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		matches[i].Snippet = s.snippets[matches[i].Path]
	}
	return matches, nil
}

// Search embeds query and runs a similarity search in one step.
func (s *Snapshot) Search(ctx context.Context, query string, k int) ([]Match, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed, "embedding query", err)
	}
	return s.SimilaritySearch(ctx, vec, k)
}

var _ Provider = (*Snapshot)(nil)
var _ indexer.Snapshot = (*Snapshot)(nil)

// Config holds the vector builder's knobs.
type Config struct {
	// IndexPath is where the HNSW graph is persisted. The metadata and
	// document sidecars live next to it.
	IndexPath string

	// SnippetLength caps stored display snippets, in runes.
	SnippetLength int

	// M and EfSearch tune the HNSW graph; zero takes the defaults.
	M        int
	EfSearch int
}

// Builder assembles vector index rounds. Each round embeds the current
// corpus into a fresh HNSW graph; a round whose corpus is unchanged
// since the last persisted graph reloads it from disk instead. The
// embedding cache absorbs re-embeds of unchanged documents, so even a
// full round only pays for what actually changed.
type Builder struct {
	src      source.Source
	store    *indexcache.Store
	embedder Embedder
	cfg      Config
	rootID   string
}

// docsFile is the builder's persisted sidecar: the corpus digest the
// graph was built from plus per-document display snippets.
type docsFile struct {
	Digest    string
	IndexedAt time.Time
	Snippets  map[string]string
}

// NewBuilder creates a vector builder over src, persisting under
// cfg.IndexPath and recording the index location in cacheStore.
func NewBuilder(src source.Source, cacheStore *indexcache.Store, embedder Embedder, cfg Config) *Builder {
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = 160
	}
	return &Builder{
		src:      src,
		store:    cacheStore,
		embedder: embedder,
		cfg:      cfg,
		rootID:   indexcache.RootID(src.Root()),
	}
}

// Kind identifies this builder's index in status reporting.
func (b *Builder) Kind() string {
	return "vector"
}

// Build runs one round: list documents, reuse the persisted graph when
// the corpus is unchanged, otherwise embed everything into a fresh
// graph and persist it. Persistence problems never fail a round; the
// in-memory snapshot is still published.
func (b *Builder) Build(ctx context.Context, progress indexer.ProgressFunc) (*Snapshot, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	docs, err := b.src.List(ctx)
	if err != nil {
		return nil, qerrors.BuildError("listing documents", err)
	}

	digest := corpusDigest(docs, b.embedder.ModelName())
	if snap, ok := b.reuse(digest); ok {
		return snap, nil
	}

	st := NewStore(StoreConfig{
		Dimensions: b.embedder.Dimensions(),
		M:          b.cfg.M,
		EfSearch:   b.cfg.EfSearch,
	})
	snippets := make(map[string]string, len(docs))

	total := len(docs)
	for i, doc := range docs {
		content, err := b.src.Read(ctx, doc.Path)
		if err != nil {
			// A document that vanished between listing and reading is
			// dropped from the round instead of failing it.
			if qerrors.GetCode(err) == qerrors.ErrCodeFileNotFound {
				slog.Debug("document_vanished", slog.String("path", doc.Path))
				continue
			}
			return nil, qerrors.BuildError("reading document", err)
		}

		text := string(content)
		vec, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed, doc.Path, err)
		}
		if err := st.Add(ctx, []string{doc.Path}, [][]float32{vec}); err != nil {
			return nil, qerrors.New(qerrors.ErrCodeDimensionMismatch, doc.Path, err)
		}

		snippets[doc.Path] = lexical.Snippet(text, b.cfg.SnippetLength)
		progress(doc.Path, i+1, total)
	}

	indexedAt := time.Now()
	b.persist(ctx, st, docsFile{
		Digest:    digest,
		IndexedAt: indexedAt.UTC(),
		Snippets:  snippets,
	})

	return &Snapshot{
		store:     st,
		embedder:  b.embedder,
		snippets:  snippets,
		indexedAt: indexedAt,
	}, nil
}

// Clear removes the persisted graph and its sidecars and blanks the
// vector location in the cache file, leaving the lexical section
// intact.
func (b *Builder) Clear(ctx context.Context) error {
	paths := []string{
		b.cfg.IndexPath,
		MetaPath(b.cfg.IndexPath),
		DocsPath(b.cfg.IndexPath),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return qerrors.IOError("removing vector index", err)
		}
	}
	return b.store.Update(ctx, b.rootID, func(f *indexcache.File) error {
		f.VectorIndexLocation = ""
		return nil
	})
}

// reuse reloads the persisted graph when its recorded corpus digest
// matches the current one. Any problem with the persisted files
// downgrades silently to a full rebuild.
func (b *Builder) reuse(digest string) (*Snapshot, bool) {
	docs, err := readDocsFile(DocsPath(b.cfg.IndexPath))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("vector_index_discarded",
				slog.String("path", b.cfg.IndexPath),
				slog.String("reason", err.Error()))
		}
		return nil, false
	}
	if docs.Digest != digest {
		return nil, false
	}

	st, err := LoadStore(b.cfg.IndexPath)
	if err != nil {
		slog.Warn("vector_index_discarded",
			slog.String("path", b.cfg.IndexPath),
			slog.String("reason", err.Error()))
		return nil, false
	}
	if st.Dimensions() != b.embedder.Dimensions() {
		slog.Warn("vector_index_discarded",
			slog.String("path", b.cfg.IndexPath),
			slog.String("reason", DimensionMismatchError{
				Want: b.embedder.Dimensions(),
				Got:  st.Dimensions(),
			}.Error()))
		return nil, false
	}

	slog.Debug("vector_index_reused",
		slog.String("path", b.cfg.IndexPath),
		slog.Int("doc_count", st.Count()))

	return &Snapshot{
		store:     st,
		embedder:  b.embedder,
		snippets:  docs.Snippets,
		indexedAt: docs.IndexedAt,
	}, true
}

// persist writes the graph and the docs sidecar, then records the index
// location in the shared cache file. Failures are logged, not
// propagated.
func (b *Builder) persist(ctx context.Context, st *Store, docs docsFile) {
	if err := st.Save(b.cfg.IndexPath); err != nil {
		slog.Warn("vector_index_write_failed",
			slog.String("path", b.cfg.IndexPath),
			slog.String("error", err.Error()))
		return
	}
	if err := writeDocsFile(DocsPath(b.cfg.IndexPath), docs); err != nil {
		slog.Warn("vector_index_write_failed",
			slog.String("path", DocsPath(b.cfg.IndexPath)),
			slog.String("error", err.Error()))
		return
	}

	err := b.store.Update(ctx, b.rootID, func(f *indexcache.File) error {
		f.VectorIndexLocation = b.cfg.IndexPath
		return nil
	})
	if err != nil {
		slog.Warn("vector_location_record_failed",
			slog.String("path", b.store.Path()),
			slog.String("error", err.Error()))
	}
}

// DocsPath returns the docs sidecar path for a graph file.
func DocsPath(graphPath string) string {
	return graphPath + ".docs"
}

// corpusDigest fingerprints the listing: paths, sizes, and mtimes, plus
// the embedding model. Any difference forces a rebuild; a match means
// the persisted graph still describes this corpus.
func corpusDigest(docs []source.DocInfo, model string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", model)
	for _, d := range docs {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", d.Path, d.Size, d.ModTime.Unix())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeDocsFile(path string, docs docsFile) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp docs file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(docs); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode docs file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close docs file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func readDocsFile(path string) (*docsFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var docs docsFile
	if err := gob.NewDecoder(file).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode docs file: %w", err)
	}
	return &docs, nil
}
