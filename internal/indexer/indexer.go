// Package indexer orchestrates the build lifecycle of one index
// instance: status tracking, single-flight deduplication of concurrent
// load calls, background triggering, and invalidation.
//
// The package is agnostic to what is being indexed. A Builder produces
// an immutable Snapshot per build round; the Core publishes the
// snapshot atomically so readers observe either the previous fully
// built index or the new one, never partial state.
package indexer

import (
	"context"
	"time"
)

// State identifies the lifecycle phase of one index instance.
type State string

const (
	// StateEmpty means no index has been built or the cache was cleared.
	StateEmpty State = "empty"
	// StateBuilding means a build round is in flight.
	StateBuilding State = "building"
	// StateReady means a snapshot is published and current.
	StateReady State = "ready"
	// StateFailed means the last build round failed. The next load
	// starts a fresh round; failures are never cached.
	StateFailed State = "failed"
)

// Status is a snapshot of indexing progress. It is a value copy;
// mutating it has no effect on the core.
type Status struct {
	State        State  `json:"state"`
	IsIndexing   bool   `json:"is_indexing"`
	Progress     int    `json:"progress"`
	CurrentItem  string `json:"current_item,omitempty"`
	TotalItems   int    `json:"total_items"`
	IndexedItems int    `json:"indexed_items"`
	Error        string `json:"error,omitempty"`
}

// Snapshot is a published, immutable index produced by one successful
// build round.
type Snapshot interface {
	// DocCount is the number of indexed documents.
	DocCount() int
	// IndexedAt is the completion time of the build that produced the
	// snapshot.
	IndexedAt() time.Time
}

// ProgressFunc reports build progress. indexed counts processed items
// out of total; currentItem names the item being processed and may be
// empty.
type ProgressFunc func(currentItem string, indexed, total int)

// Builder constructs one index kind for one corpus root. A builder is
// invoked by at most one goroutine at a time.
type Builder[S Snapshot] interface {
	// Kind identifies the sub-index, e.g. "lexical" or "vector".
	Kind() string

	// Build runs one build round and returns the snapshot to publish.
	// Implementations decide internally between incremental update and
	// full rebuild; format errors and internal defects are handled by
	// falling back to a full rebuild, never returned.
	Build(ctx context.Context, progress ProgressFunc) (S, error)

	// Clear discards persisted state backing the index.
	Clear(ctx context.Context) error
}
