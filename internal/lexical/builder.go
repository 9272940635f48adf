package lexical

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"runtime"
	"sort"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/fingerprint"
	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/indexer"
	"github.com/quarrysearch/quarry/internal/source"
)

// Snapshot is an immutable published lexical index.
type Snapshot struct {
	idx       *Index
	indexedAt time.Time
}

var _ indexer.Snapshot = (*Snapshot)(nil)

// DocCount returns the number of indexed documents.
func (s *Snapshot) DocCount() int {
	return s.idx.DocCount()
}

// IndexedAt returns the completion time of the build that produced the
// snapshot.
func (s *Snapshot) IndexedAt() time.Time {
	return s.indexedAt
}

// Search scores the query against the snapshot. See Index.Search for
// ordering guarantees.
func (s *Snapshot) Search(query string, limit int) []Hit {
	return s.idx.Search(query, limit)
}

// Config configures the lexical builder.
type Config struct {
	// MinTokenLength is the minimum token length in runes.
	MinTokenLength int

	// Normalize divides scores by document token count.
	Normalize bool

	// SnippetLength caps stored snippets in runes; zero disables them.
	SnippetLength int

	// HashWorkers bounds concurrent content hashing during change
	// detection. Zero means one worker per CPU.
	HashWorkers int
}

// Builder builds the lexical index for one corpus root. Each round
// prefers an incremental update over the persisted cache and falls
// back to a full rebuild on cache format errors, tokenizer
// configuration changes, or frequency defects.
type Builder struct {
	src    source.Source
	store  *indexcache.Store
	det    *fingerprint.Detector
	cfg    Config
	rootID string
}

var _ indexer.Builder[*Snapshot] = (*Builder)(nil)

// NewBuilder returns a builder reading documents from src and
// persisting through store.
func NewBuilder(src source.Source, store *indexcache.Store, cfg Config) *Builder {
	if cfg.MinTokenLength < 1 {
		cfg.MinTokenLength = 1
	}
	if cfg.HashWorkers < 1 {
		cfg.HashWorkers = runtime.NumCPU()
	}
	if cfg.SnippetLength < 0 {
		cfg.SnippetLength = 0
	}
	return &Builder{
		src:    src,
		store:  store,
		det:    fingerprint.NewDetector(src, cfg.HashWorkers),
		cfg:    cfg,
		rootID: indexcache.RootID(src.Root()),
	}
}

// Kind identifies this builder's sub-index.
func (b *Builder) Kind() string {
	return "lexical"
}

// Build runs one round: list documents, detect changes against the
// cache, update or rebuild the index, persist, and return the
// snapshot. Cache problems never fail a round; they downgrade to a
// full rebuild.
func (b *Builder) Build(ctx context.Context, progress indexer.ProgressFunc) (*Snapshot, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	docs, err := b.src.List(ctx)
	if err != nil {
		return nil, qerrors.BuildError("listing documents", err)
	}

	cached := b.loadCache(ctx)
	var prev fingerprint.Record
	if cached != nil {
		prev = cached.Fingerprints
	}

	cs, err := b.det.Detect(ctx, prev, docs)
	if err != nil {
		return nil, qerrors.BuildError("detecting changes", err)
	}
	recordChanged := !maps.Equal(prev, cs.Next)

	idx, rebuilt, err := b.assemble(ctx, cached, cs, progress)
	if err != nil {
		return nil, qerrors.BuildError("building lexical index", err)
	}

	if rebuilt || recordChanged {
		b.persist(ctx, cs, idx)
	}

	return &Snapshot{idx: idx, indexedAt: time.Now()}, nil
}

// Clear discards the lexical and fingerprint sections of the cache
// file, leaving the vector section intact.
func (b *Builder) Clear(ctx context.Context) error {
	return b.store.Update(ctx, b.rootID, func(f *indexcache.File) error {
		f.RootID = b.rootID
		f.IndexedAt = time.Time{}
		f.FileCount = 0
		f.Fingerprints = make(fingerprint.Record)
		f.LexicalIndex = nil
		return nil
	})
}

// loadCache reads the cache file, returning nil when it is missing,
// unreadable, from another format version, or for a different corpus
// root. All of those downgrade silently to a full rebuild.
func (b *Builder) loadCache(ctx context.Context) *indexcache.File {
	cached, err := b.store.Load(ctx)
	if err != nil {
		if qerrors.IsFormat(err) {
			slog.Warn("index_cache_discarded",
				slog.String("path", b.store.Path()),
				slog.String("reason", err.Error()))
		} else {
			slog.Warn("index_cache_unreadable",
				slog.String("path", b.store.Path()),
				slog.String("error", err.Error()))
		}
		return nil
	}
	if cached == nil {
		return nil
	}
	if cached.RootID != b.rootID {
		slog.Warn("index_cache_foreign_root",
			slog.String("path", b.store.Path()),
			slog.String("cached_root_id", cached.RootID),
			slog.String("root_id", b.rootID))
		return nil
	}
	return cached
}

// assemble produces the round's index. rebuilt reports whether index
// content changed and must be re-persisted.
func (b *Builder) assemble(ctx context.Context, cached *indexcache.File, cs *fingerprint.ChangeSet, progress indexer.ProgressFunc) (*Index, bool, error) {
	if idx := b.loadIndex(cached); idx != nil {
		if !cs.HasChanges() {
			progress("", idx.DocCount(), idx.DocCount())
			slog.Debug("lexical_index_reused",
				slog.Int("doc_count", idx.DocCount()))
			return idx, false, nil
		}

		err := b.applyChanges(ctx, idx, cs, progress)
		if err == nil {
			idx.RecomputeIDF()
			slog.Info("lexical_index_updated",
				slog.Int("added", len(cs.Added)),
				slog.Int("modified", len(cs.Modified)),
				slog.Int("removed", len(cs.Removed)),
				slog.Int("doc_count", idx.DocCount()))
			return idx, true, nil
		}
		if !qerrors.IsDefect(err) {
			return nil, false, err
		}
		slog.Warn("lexical_index_defect",
			slog.String("error", err.Error()))
	}

	idx, err := b.fullBuild(ctx, cs, progress)
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}

// loadIndex deserializes the cached lexical section, returning nil
// when it is absent, damaged, or built with a different tokenizer
// configuration.
func (b *Builder) loadIndex(cached *indexcache.File) *Index {
	if cached == nil || len(cached.LexicalIndex) == 0 {
		return nil
	}

	var s Serialized
	if err := json.Unmarshal(cached.LexicalIndex, &s); err != nil {
		slog.Warn("lexical_cache_rejected",
			slog.String("reason", err.Error()))
		return nil
	}
	if s.MinTokenLength != b.cfg.MinTokenLength {
		slog.Info("lexical_cache_rejected",
			slog.String("reason", "tokenizer configuration changed"),
			slog.Int("cached_min_token_length", s.MinTokenLength),
			slog.Int("min_token_length", b.cfg.MinTokenLength))
		return nil
	}

	idx, err := FromSerialized(&s, b.cfg.Normalize)
	if err != nil {
		slog.Warn("lexical_cache_rejected",
			slog.String("reason", err.Error()))
		return nil
	}
	return idx
}

// applyChanges applies one change set incrementally: removals first,
// then modified documents with removed-then-re-added semantics, then
// additions. Defects propagate to the caller, which falls back to a
// full rebuild.
func (b *Builder) applyChanges(ctx context.Context, idx *Index, cs *fingerprint.ChangeSet, progress indexer.ProgressFunc) error {
	total := len(cs.Removed) + len(cs.Modified) + len(cs.Added)
	done := 0

	for _, path := range cs.Removed {
		if err := idx.Remove(path); err != nil {
			return err
		}
		done++
		progress(path, done, total)
	}
	for _, path := range cs.Modified {
		if err := b.indexDoc(ctx, idx, cs, path); err != nil {
			return err
		}
		done++
		progress(path, done, total)
	}
	for _, path := range cs.Added {
		if err := b.indexDoc(ctx, idx, cs, path); err != nil {
			return err
		}
		done++
		progress(path, done, total)
	}
	return nil
}

// fullBuild indexes every current document from scratch.
func (b *Builder) fullBuild(ctx context.Context, cs *fingerprint.ChangeSet, progress indexer.ProgressFunc) (*Index, error) {
	paths := make([]string, 0, len(cs.Next))
	for path := range cs.Next {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	idx := NewIndex(b.cfg.MinTokenLength, b.cfg.Normalize)
	for i, path := range paths {
		if err := b.indexDoc(ctx, idx, cs, path); err != nil {
			return nil, err
		}
		progress(path, i+1, len(paths))
	}
	idx.RecomputeIDF()

	slog.Info("lexical_index_rebuilt",
		slog.Int("doc_count", idx.DocCount()))
	return idx, nil
}

// indexDoc reads, tokenizes, and inserts one document. A document that
// vanished since listing is dropped from the round's record instead of
// failing the build.
func (b *Builder) indexDoc(ctx context.Context, idx *Index, cs *fingerprint.ChangeSet, path string) error {
	content, err := b.src.Read(ctx, path)
	if err != nil {
		if qerrors.GetCode(err) == qerrors.ErrCodeFileNotFound {
			slog.Debug("document_vanished", slog.String("path", path))
			delete(cs.Next, path)
			return idx.Remove(path)
		}
		return err
	}
	return idx.Add(path, b.vectorize(content))
}

// vectorize tokenizes content into a term-frequency vector.
func (b *Builder) vectorize(content []byte) *DocVector {
	text := string(content)
	tokens := Tokenize(text, b.cfg.MinTokenLength)
	terms := make(map[string]int, len(tokens))
	for _, t := range tokens {
		terms[t]++
	}
	return &DocVector{
		Terms:   terms,
		Tokens:  len(tokens),
		Snippet: Snippet(text, b.cfg.SnippetLength),
	}
}

// persist writes fingerprints and the serialized index to the cache
// file, preserving the vector section. A write failure does not fail
// the round; the built index is already published and the next run
// rebuilds from fingerprints.
func (b *Builder) persist(ctx context.Context, cs *fingerprint.ChangeSet, idx *Index) {
	data, err := json.Marshal(idx.Export())
	if err != nil {
		slog.Warn("lexical_cache_write_failed",
			slog.String("error", err.Error()))
		return
	}

	err = b.store.Update(ctx, b.rootID, func(f *indexcache.File) error {
		f.RootID = b.rootID
		f.IndexedAt = time.Now().UTC()
		f.FileCount = len(cs.Next)
		f.Fingerprints = cs.Next
		f.LexicalIndex = data
		return nil
	})
	if err != nil {
		slog.Warn("lexical_cache_write_failed",
			slog.String("path", b.store.Path()),
			slog.String("error", err.Error()))
	}
}
