// Package vector provides the semantic half of the hybrid index: a
// deterministic hash-based embedder, an LRU embedding cache, and an HNSW
// store over document vectors. The package exposes a narrow Provider
// capability that the query path consumes; hosts that disable vector
// search simply never construct one.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// DefaultDimensions is the embedding dimensionality used when the host
// does not configure one.
const DefaultDimensions = 256

// Match is one similarity hit against the vector store. Score is cosine
// similarity mapped onto [0, 1]; higher is closer. Snippet is filled by
// the snapshot layer; the raw store leaves it empty.
type Match struct {
	Path    string
	Score   float64
	Snippet string
}

// Embedder produces a fixed-dimension embedding for a piece of text.
// Implementations must be deterministic for the same input so that
// cached vectors stay valid across rounds.
type Embedder interface {
	// Embed returns the embedding for text. Empty or whitespace-only
	// text embeds to the zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the length of vectors produced by Embed.
	Dimensions() int

	// ModelName identifies the embedding scheme. It participates in
	// cache keys, so two embedders that produce different vectors for
	// the same text must report different names.
	ModelName() string
}

// Provider is the capability the search path consumes: embed a query,
// then rank stored documents by similarity. A published Snapshot
// implements it; callers resolve the provider once and hold it for the
// lifetime of the query.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// ErrStoreClosed is returned by store operations after Close.
var ErrStoreClosed = errors.New("vector store is closed")

// DimensionMismatchError reports a vector whose length does not match
// the store's configured dimensionality.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}
