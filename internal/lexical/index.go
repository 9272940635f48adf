package lexical

import (
	"math"
	"sort"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// DocVector is one document's term-frequency vector plus the display
// snippet captured at index time.
type DocVector struct {
	Terms   map[string]int `json:"terms"`
	Tokens  int            `json:"tokens"`
	Snippet string         `json:"snippet,omitempty"`
}

// Index is the in-memory TF-IDF structure for one corpus root. It is
// not safe for concurrent mutation; a build round mutates a private
// instance and publishes it as an immutable snapshot.
type Index struct {
	docs        map[string]*DocVector
	df          map[string]int
	idf         map[string]float64
	minTokenLen int
	normalize   bool
}

// Hit is one scored document.
type Hit struct {
	Path    string
	Score   float64
	Snippet string
}

// NewIndex returns an empty index. minTokenLen is the tokenizer's
// minimum token length; normalize divides scores by document length.
func NewIndex(minTokenLen int, normalize bool) *Index {
	return &Index{
		docs:        make(map[string]*DocVector),
		df:          make(map[string]int),
		idf:         make(map[string]float64),
		minTokenLen: minTokenLen,
		normalize:   normalize,
	}
}

// DocCount returns the number of indexed documents.
func (x *Index) DocCount() int {
	return len(x.docs)
}

// Add inserts or replaces a document vector. Replacement applies
// removed-then-re-added semantics: the old vector's contribution is
// subtracted from document frequencies before the new one is added.
func (x *Index) Add(path string, vec *DocVector) error {
	if err := x.subtract(path); err != nil {
		return err
	}
	x.docs[path] = vec
	for term := range vec.Terms {
		x.df[term]++
	}
	return nil
}

// Remove deletes a document and subtracts its contribution from
// document frequencies. Removing an unindexed path is a no-op.
func (x *Index) Remove(path string) error {
	return x.subtract(path)
}

// subtract removes path's contribution from the document frequencies.
// A subtraction that would drive any frequency below zero means the
// persisted frequencies disagree with the document vectors; that is
// reported as a defect and the caller falls back to a full rebuild.
func (x *Index) subtract(path string) error {
	old, ok := x.docs[path]
	if !ok {
		return nil
	}
	for term := range old.Terms {
		n := x.df[term] - 1
		switch {
		case n > 0:
			x.df[term] = n
		case n == 0:
			delete(x.df, term)
		default:
			return qerrors.New(qerrors.ErrCodeNegativeDocFreq,
				"document frequency below zero for term "+term, nil).
				WithDetail("path", path)
		}
	}
	delete(x.docs, path)
	return nil
}

// RecomputeIDF rebuilds the IDF table from the current document
// frequencies: log((N+1)/(df+1)) + 1, smoothed so it is always
// positive and never divides by zero. Build rounds call this exactly
// once after all additions and removals, so the table never reflects a
// partially applied round.
func (x *Index) RecomputeIDF() {
	n := float64(len(x.docs))
	x.idf = make(map[string]float64, len(x.df))
	for term, df := range x.df {
		x.idf[term] = math.Log((n+1)/float64(df+1)) + 1
	}
}

// Search scores every document against the query and returns hits
// sorted by score descending, ties broken by shorter path then
// lexicographic path order. A limit of zero or less returns all hits.
//
// The score of a document is the sum over query terms of
// termFrequency(doc, term) x IDF(term), optionally normalized by
// document token count.
func (x *Index) Search(query string, limit int) []Hit {
	terms := Tokenize(query, x.minTokenLen)
	if len(terms) == 0 {
		return nil
	}

	hits := make([]Hit, 0, 16)
	for path, vec := range x.docs {
		var score float64
		for _, term := range terms {
			if tf := vec.Terms[term]; tf > 0 {
				score += float64(tf) * x.idf[term]
			}
		}
		if score <= 0 {
			continue
		}
		if x.normalize && vec.Tokens > 0 {
			score /= float64(vec.Tokens)
		}
		hits = append(hits, Hit{Path: path, Score: score, Snippet: vec.Snippet})
	}

	SortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SortHits orders hits by score descending, breaking ties by shorter
// path, then lexicographic path order.
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if len(hits[i].Path) != len(hits[j].Path) {
			return len(hits[i].Path) < len(hits[j].Path)
		}
		return hits[i].Path < hits[j].Path
	})
}

// DF returns the document frequency of term.
func (x *Index) DF(term string) int {
	return x.df[term]
}

// IDF returns the inverse document frequency of term, zero when the
// term is unknown.
func (x *Index) IDF(term string) float64 {
	return x.idf[term]
}

// Serialized is the persisted form of the index. The IDF table is
// derived state and is recomputed on load; document frequencies are
// persisted and validated lazily through the defect check in subtract.
type Serialized struct {
	MinTokenLength int                   `json:"minTokenLength"`
	DocCount       int                   `json:"docCount"`
	DF             map[string]int        `json:"df"`
	Docs           map[string]*DocVector `json:"docs"`
}

// Export returns the serializable form of the index. The maps are
// shared, not copied; the caller must not mutate the index while the
// export is being marshaled.
func (x *Index) Export() *Serialized {
	return &Serialized{
		MinTokenLength: x.minTokenLen,
		DocCount:       len(x.docs),
		DF:             x.df,
		Docs:           x.docs,
	}
}

// FromSerialized reconstructs an index from its persisted form,
// recomputing the IDF table. Structural damage is reported as a format
// error so callers downgrade to a full rebuild.
func FromSerialized(s *Serialized, normalize bool) (*Index, error) {
	if s == nil || s.Docs == nil || s.DF == nil {
		return nil, qerrors.New(qerrors.ErrCodeCacheCorrupt,
			"serialized lexical index is missing sections", nil)
	}
	if s.DocCount != len(s.Docs) {
		return nil, qerrors.New(qerrors.ErrCodeCacheCorrupt,
			"serialized lexical index document count mismatch", nil)
	}
	for path, vec := range s.Docs {
		if vec == nil {
			return nil, qerrors.New(qerrors.ErrCodeCacheCorrupt,
				"serialized lexical index has no vector for "+path, nil)
		}
	}

	x := &Index{
		docs:        s.Docs,
		df:          s.DF,
		minTokenLen: s.MinTokenLength,
		normalize:   normalize,
	}
	x.RecomputeIDF()
	return x, nil
}
