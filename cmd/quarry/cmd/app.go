package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/indexer"
	"github.com/quarrysearch/quarry/internal/lexical"
	"github.com/quarrysearch/quarry/internal/search"
	"github.com/quarrysearch/quarry/internal/source"
	"github.com/quarrysearch/quarry/internal/telemetry"
	"github.com/quarrysearch/quarry/internal/vector"
)

// vectorIndexFileName is the HNSW graph location inside the data
// directory. The vector store derives its sidecar files from it.
const vectorIndexFileName = "vector.hnsw"

// telemetryFileName is the query metrics database inside the data
// directory.
const telemetryFileName = "telemetry.db"

// app bundles the components wired for one project root: the corpus
// source, the index cores behind the search engine, and optional query
// telemetry.
type app struct {
	root    string
	dataDir string
	cfg     *config.Config
	source  *source.FSSource
	engine  *search.Engine

	metrics *telemetry.QueryMetrics
	store   *telemetry.SQLiteMetricsStore
}

// resolveProject locates the project root for startDir and loads its
// configuration.
func resolveProject(startDir string) (root string, cfg *config.Config, err error) {
	root, err = config.FindProjectRoot(startDir)
	if err != nil {
		return "", nil, err
	}
	cfg, err = config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// buildApp wires the search engine for root. When withTelemetry is set
// and telemetry is enabled in the configuration, the query metrics
// store is opened as well; failures there degrade to a warning because
// search must not depend on telemetry.
func buildApp(root string, cfg *config.Config, withTelemetry bool) (*app, error) {
	dataDir := cfg.DataDir(root)

	src, err := source.NewFSSource(root, source.Options{
		Include:     cfg.Paths.Include,
		Exclude:     cfg.Paths.Exclude,
		MaxFileSize: int64(cfg.Index.MaxFileSizeKB) * 1024,
	})
	if err != nil {
		return nil, err
	}

	cache := indexcache.NewStore(dataDir)

	lexCore := indexer.NewCore[*lexical.Snapshot](lexical.NewBuilder(src, cache, lexical.Config{
		MinTokenLength: cfg.Index.MinTokenLength,
		Normalize:      cfg.Index.LengthNormalize,
		SnippetLength:  cfg.Index.SnippetLength,
		HashWorkers:    cfg.Index.HashWorkers,
	}))

	var vecCore *indexer.Core[*vector.Snapshot]
	if cfg.Vector.Enabled {
		emb := vector.NewCachedEmbedder(
			vector.NewHashEmbedder(cfg.Vector.Dimensions),
			cfg.Vector.CacheSize,
		)
		vecCore = indexer.NewCore[*vector.Snapshot](vector.NewBuilder(src, cache, emb, vector.Config{
			IndexPath:     filepath.Join(dataDir, vectorIndexFileName),
			SnippetLength: cfg.Index.SnippetLength,
		}))
	}

	a := &app{root: root, dataDir: dataDir, cfg: cfg, source: src}

	var opts []search.Option
	if withTelemetry && cfg.Telemetry.Enabled {
		// The data directory may not exist before the first build.
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, err
		}
		store, err := telemetry.OpenStore(filepath.Join(dataDir, telemetryFileName))
		if err != nil {
			slog.Warn("query telemetry unavailable", slog.String("error", err.Error()))
		} else {
			a.store = store
			a.metrics = telemetry.NewQueryMetrics(store)
			opts = append(opts, search.WithMetrics(a.metrics))
		}
	}

	engine, err := search.NewEngine(lexCore, vecCore, search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.engine = engine

	return a, nil
}

// openApp resolves the project at startDir and wires the engine for it.
func openApp(startDir string, withTelemetry bool) (*app, error) {
	root, cfg, err := resolveProject(startDir)
	if err != nil {
		return nil, err
	}
	return buildApp(root, cfg, withTelemetry)
}

// Close flushes and releases telemetry resources. The metrics wrapper
// does not own the store, so both are closed here, metrics first.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Close())
		a.metrics = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

// requireIndex errors when the project has no cached index yet. Commands
// that read the index call this first so the user gets one clear message
// instead of an accidental full build.
func requireIndex(root, dataDir string) error {
	if !fileExists(indexcache.NewStore(dataDir).Path()) {
		return fmt.Errorf("no index found in %s\nRun 'quarry index' to create one", root)
	}
	return nil
}
