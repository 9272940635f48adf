package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Core orchestrates builds for one index instance. All lifecycle
// transitions happen under mu; build execution happens outside it so
// status reads never block on document IO.
//
// Concurrency contract: any number of Load callers during a round
// attach to the same in-flight build, and exactly one build executes
// per round. A cache clear makes the in-flight round stale; stale
// rounds still deliver their outcome to attached waiters but are not
// published.
type Core[S Snapshot] struct {
	builder Builder[S]

	// execMu serializes build execution across rounds, including stale
	// rounds and cache clears. Never acquired while mu is held.
	execMu sync.Mutex

	mu        sync.Mutex
	state     State
	round     *buildRound[S]
	published S
	hasSnap   bool
	gen       uint64
	roundSeq  uint64
	pending   bool
	status    Status
}

// buildRound is the shared result cell for one build. done is closed
// exactly once, after the outcome fields are set; every waiter
// attached to the round observes the same outcome.
type buildRound[S Snapshot] struct {
	done chan struct{}
	snap S
	err  error
}

// NewCore returns an empty core that builds through builder.
func NewCore[S Snapshot](builder Builder[S]) *Core[S] {
	return &Core[S]{
		builder: builder,
		state:   StateEmpty,
		status:  Status{State: StateEmpty},
	}
}

// Kind identifies the sub-index this core manages.
func (c *Core[S]) Kind() string {
	return c.builder.Kind()
}

// Load returns the published snapshot, first running a build round if
// none is published. Concurrent calls during a round attach to it and
// share its outcome. A failed round is never cached; the next call
// starts a fresh attempt.
//
// ctx bounds only this caller's wait. An in-flight build keeps running
// after ctx expires.
func (c *Core[S]) Load(ctx context.Context) (S, error) {
	c.mu.Lock()
	if c.state == StateReady {
		snap := c.published
		c.mu.Unlock()
		return snap, nil
	}
	if c.state != StateBuilding {
		c.startRoundLocked()
	}
	r := c.round
	c.mu.Unlock()

	select {
	case <-r.done:
		return r.snap, r.err
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	}
}

// StartBackground triggers a build without blocking. It is a no-op
// when a round is in flight or a current snapshot is published. A
// build failure is recorded on the status instead of being raised.
func (c *Core[S]) StartBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBuilding || c.state == StateReady {
		return
	}
	c.startRoundLocked()
}

// Invalidate requests a rebuild. Outside a round a new one starts
// immediately; the published snapshot stays available to readers until
// the new round publishes. During a round the request is queued and
// one rebuild starts after the round resolves, success or failure.
func (c *Core[S]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBuilding {
		c.pending = true
		return
	}
	c.startRoundLocked()
}

// ClearCache unconditionally resets the core to Empty, discarding the
// published snapshot and persisted index state. Callers attached to an
// in-flight round still observe that round's original outcome, but the
// outcome is not published. Persisted state is removed after any
// executing build finishes so its writes cannot resurrect cleared
// content.
func (c *Core[S]) ClearCache(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.round = nil
	c.pending = false
	var zero S
	c.published = zero
	c.hasSnap = false
	c.setStateLocked(StateEmpty)
	c.status = Status{State: StateEmpty}
	c.mu.Unlock()

	slog.Info("index_cache_cleared", slog.String("index", c.builder.Kind()))

	c.execMu.Lock()
	defer c.execMu.Unlock()
	return c.builder.Clear(ctx)
}

// Published returns the most recently published snapshot, if any. The
// snapshot survives later failed rebuilds, so readers keep a last
// known-good index until a new round publishes or the cache is
// cleared.
func (c *Core[S]) Published() (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published, c.hasSnap
}

// Status returns a read-only copy of the current indexing status.
func (c *Core[S]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the current lifecycle state.
func (c *Core[S]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Core[S]) setStateLocked(s State) {
	c.state = s
	c.status.State = s
}

// startRoundLocked begins a new build round. The caller holds mu.
func (c *Core[S]) startRoundLocked() {
	c.roundSeq++
	r := &buildRound[S]{done: make(chan struct{})}
	c.round = r
	c.setStateLocked(StateBuilding)
	c.status.IsIndexing = true
	c.status.Progress = 0
	c.status.CurrentItem = ""
	c.status.TotalItems = 0
	c.status.IndexedItems = 0
	c.status.Error = ""

	go c.run(c.gen, c.roundSeq, r)
}

// run executes one build round to completion. The build itself is
// never cancelled; a round made stale by a cache clear still delivers
// its outcome to attached waiters.
func (c *Core[S]) run(gen, seq uint64, r *buildRound[S]) {
	kind := c.builder.Kind()
	slog.Info("index_build_started",
		slog.String("index", kind),
		slog.Uint64("round", seq))
	start := time.Now()

	progress := func(item string, indexed, total int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.status.CurrentItem = item
		c.status.IndexedItems = indexed
		c.status.TotalItems = total
		if total > 0 {
			c.status.Progress = indexed * 100 / total
		}
	}

	c.execMu.Lock()
	snap, err := c.builder.Build(context.Background(), progress)
	c.execMu.Unlock()

	c.deliver(gen, seq, r, snap, err, time.Since(start))
}

// deliver resolves the round for its waiters and, when the round is
// still current, publishes the outcome.
func (c *Core[S]) deliver(gen, seq uint64, r *buildRound[S], snap S, err error, elapsed time.Duration) {
	kind := c.builder.Kind()

	c.mu.Lock()
	r.snap = snap
	r.err = err
	close(r.done)

	if c.gen != gen {
		c.mu.Unlock()
		slog.Info("index_build_discarded",
			slog.String("index", kind),
			slog.Uint64("round", seq))
		return
	}

	c.round = nil
	pending := c.pending
	c.pending = false

	if err != nil {
		c.setStateLocked(StateFailed)
		c.status.IsIndexing = false
		c.status.CurrentItem = ""
		c.status.Error = err.Error()
	} else {
		c.published = snap
		c.hasSnap = true
		c.setStateLocked(StateReady)
		c.status.IsIndexing = false
		c.status.CurrentItem = ""
		c.status.Error = ""
		c.status.Progress = 100
		c.status.TotalItems = snap.DocCount()
		c.status.IndexedItems = snap.DocCount()
	}

	if pending {
		c.startRoundLocked()
	}
	c.mu.Unlock()

	if err != nil {
		slog.Error("index_build_failed",
			slog.String("index", kind),
			slog.Uint64("round", seq),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("index_build_complete",
		slog.String("index", kind),
		slog.Uint64("round", seq),
		slog.Int("doc_count", snap.DocCount()),
		slog.Duration("duration", elapsed))
}
