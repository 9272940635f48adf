// Package search merges ranked results from the lexical and vector
// indexes behind a single query interface.
//
// The engine never blocks a query on index building: each sub-index
// contributes only when it has a published snapshot, and a sub-index
// that is still building or failed to build is skipped. A query fails
// only when every sub-index it asked for is unable to answer.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/indexer"
	"github.com/quarrysearch/quarry/internal/lexical"
	"github.com/quarrysearch/quarry/internal/telemetry"
	"github.com/quarrysearch/quarry/internal/vector"
)

// Status aggregates the state of all sub-indexes for display.
type Status struct {
	IsIndexing   bool   `json:"is_indexing"`
	Progress     int    `json:"progress"`
	CurrentItem  string `json:"current_item,omitempty"`
	TotalItems   int    `json:"total_items"`
	IndexedItems int    `json:"indexed_items"`
	Error        string `json:"error,omitempty"`

	// Indexes holds the per-index status keyed by index kind.
	Indexes map[string]indexer.Status `json:"indexes"`
}

// subIndex is the engine's lifecycle view of one index core. Query
// paths use the concrete cores because snapshot types differ.
type subIndex interface {
	Kind() string
	Status() indexer.Status
	StartBackground()
	Invalidate()
	ClearCache(ctx context.Context) error
}

// Engine routes queries to the index cores and merges their results.
type Engine struct {
	lexical *indexer.Core[*lexical.Snapshot]
	vector  *indexer.Core[*vector.Snapshot] // nil when vector search is disabled
	config  Config
	metrics *telemetry.QueryMetrics // nil when telemetry is disabled
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine over the given cores. The lexical core is
// required; vec may be nil to disable vector search.
func NewEngine(lex *indexer.Core[*lexical.Snapshot], vec *indexer.Core[*vector.Snapshot], cfg Config, opts ...Option) (*Engine, error) {
	if lex == nil {
		return nil, qerrors.ValidationError("lexical index core is required", nil)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}

	e := &Engine{
		lexical: lex,
		vector:  vec,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs a query against the sub-indexes selected by opts and
// returns merged, ranked results. A whitespace-only query returns no
// results without touching the indexes.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	opts, err := e.applyDefaults(opts)
	if err != nil {
		return nil, err
	}

	lexHits, vecMatches, err := e.parallelSearch(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	results := mergeResults(lexHits, vecMatches, opts.Limit)

	e.recordMetrics(query, opts.Type, len(results), time.Since(start))
	slog.Debug("search_complete",
		slog.String("type", string(opts.Type)),
		slog.Int("lexical_hits", len(lexHits)),
		slog.Int("vector_hits", len(vecMatches)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (e *Engine) applyDefaults(opts Options) (Options, error) {
	if opts.Type == "" {
		opts.Type = TypeAll
	}
	switch opts.Type {
	case TypeLexical, TypeVector, TypeAll:
	default:
		return opts, qerrors.ValidationError("unknown search type "+string(opts.Type), nil)
	}
	if opts.Type == TypeVector && e.vector == nil {
		return opts, qerrors.ValidationError("vector search is disabled", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts, nil
}

// parallelSearch queries the selected sub-indexes concurrently. Each
// sub-index is overfetched so the merge has enough candidates after
// collapsing documents found by both.
func (e *Engine) parallelSearch(ctx context.Context, query string, opts Options) ([]lexical.Hit, []vector.Match, error) {
	fetch := opts.Limit * 2

	var (
		lexHits    []lexical.Hit
		vecMatches []vector.Match
		lexOK      bool
		vecErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	if opts.Type != TypeVector {
		if snap, ok := e.lexical.Published(); ok {
			lexOK = true
			g.Go(func() error {
				lexHits = snap.Search(query, fetch)
				return nil
			})
		} else {
			slog.Debug("search_skipping_index",
				slog.String("kind", e.lexical.Kind()),
				slog.String("state", string(e.lexical.State())))
		}
	}

	if opts.Type != TypeLexical && e.vector != nil {
		if snap, ok := e.vector.Published(); ok {
			g.Go(func() error {
				var searchErr error
				vecMatches, searchErr = snap.Search(gctx, query, fetch)
				if searchErr != nil {
					// Keep the lexical results usable.
					vecErr = searchErr
				}
				return nil
			})
		} else {
			slog.Debug("search_skipping_index",
				slog.String("kind", e.vector.Kind()),
				slog.String("state", string(e.vector.State())))
		}
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if vecErr != nil {
		if !lexOK {
			return nil, nil, vecErr
		}
		slog.Warn("vector_search_degraded", slog.String("error", vecErr.Error()))
	}

	return lexHits, vecMatches, nil
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, typ Type, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   queryTypeFor(typ),
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

func queryTypeFor(t Type) telemetry.QueryType {
	switch t {
	case TypeLexical:
		return telemetry.QueryTypeLexical
	case TypeVector:
		return telemetry.QueryTypeVector
	default:
		return telemetry.QueryTypeHybrid
	}
}

// Load builds or reloads every sub-index and blocks until done.
func (e *Engine) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.lexical.Load(gctx)
		return err
	})
	if e.vector != nil {
		g.Go(func() error {
			_, err := e.vector.Load(gctx)
			return err
		})
	}
	return g.Wait()
}

// StartBackground kicks off a build of every sub-index without waiting.
func (e *Engine) StartBackground() {
	for _, c := range e.cores() {
		c.StartBackground()
	}
}

// Invalidate marks every sub-index stale so the next build re-reads the
// source tree.
func (e *Engine) Invalidate() {
	for _, c := range e.cores() {
		c.Invalidate()
	}
}

// ClearCache removes the persisted state of every sub-index.
func (e *Engine) ClearCache(ctx context.Context) error {
	var errs []error
	for _, c := range e.cores() {
		if err := c.ClearCache(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status reports the aggregate and per-index state.
func (e *Engine) Status() Status {
	agg := Status{Indexes: make(map[string]indexer.Status)}
	var errs []string
	allReady := true

	for _, c := range e.cores() {
		st := c.Status()
		agg.Indexes[c.Kind()] = st

		if st.IsIndexing {
			agg.IsIndexing = true
			if agg.CurrentItem == "" {
				agg.CurrentItem = st.CurrentItem
			}
		}
		if st.State != indexer.StateReady {
			allReady = false
		}
		agg.TotalItems += st.TotalItems
		agg.IndexedItems += st.IndexedItems
		if st.Error != "" {
			errs = append(errs, c.Kind()+": "+st.Error)
		}
	}

	if agg.TotalItems > 0 {
		agg.Progress = agg.IndexedItems * 100 / agg.TotalItems
	} else if allReady {
		agg.Progress = 100
	}
	agg.Error = strings.Join(errs, "; ")
	return agg
}

// cores returns the active cores in a fixed order.
func (e *Engine) cores() []subIndex {
	cores := []subIndex{e.lexical}
	if e.vector != nil {
		cores = append(cores, e.vector)
	}
	return cores
}
