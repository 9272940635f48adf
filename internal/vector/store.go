package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// StoreConfig holds HNSW graph parameters. Zero values take the library
// defaults tuned for corpora in the thousands of documents.
type StoreConfig struct {
	// Dimensions is the embedding dimensionality. Required.
	Dimensions int

	// M is the maximum connections per graph layer (default 16).
	M int

	// EfSearch is the query-time search width (default 20).
	EfSearch int
}

// Store is an HNSW-backed vector store keyed by document path. Paths are
// mapped to stable uint64 graph keys; removing or replacing a document
// uses lazy deletion (the graph node is orphaned, never removed) because
// deleting nodes can leave the graph in a bad state.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config StoreConfig

	idMap   map[string]uint64 // document path -> graph key
	keyMap  map[uint64]string // graph key -> document path
	nextKey uint64

	closed bool
}

// storeMetadata is the gob-persisted sidecar holding everything the
// graph export itself does not carry.
type storeMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  StoreConfig
}

// NewStore creates an empty store with cosine distance.
func NewStore(cfg StoreConfig) *Store {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Dimensions returns the configured embedding dimensionality.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Add inserts vectors under their document paths. An existing path is
// replaced: its old graph node is orphaned and a fresh one inserted.
func (s *Store) Add(ctx context.Context, paths []string, vectors [][]float32) error {
	if len(paths) == 0 {
		return nil
	}
	if len(paths) != len(vectors) {
		return fmt.Errorf("paths and vectors length mismatch: %d vs %d", len(paths), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return DimensionMismatchError{Want: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, path := range paths {
		if existingKey, exists := s.idMap[path]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, path)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVector(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[path] = key
		s.keyMap[key] = path
	}

	return nil
}

// Search returns up to k matches nearest to query, best first. Matches
// are ordered by score descending, ties broken by shorter then
// lexicographically smaller path so results are deterministic.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, DimensionMismatchError{Want: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []Match{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVector(normalized)

	// Overfetch to cover nodes orphaned by lazy deletion.
	fetch := k + (s.graph.Len() - len(s.idMap))
	nodes := s.graph.Search(normalized, fetch)

	matches := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		path, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		matches = append(matches, Match{
			Path:  path,
			Score: distanceToScore(distance),
		})
		if len(matches) == k {
			break
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if len(matches[i].Path) != len(matches[j].Path) {
			return len(matches[i].Path) < len(matches[j].Path)
		}
		return matches[i].Path < matches[j].Path
	})

	return matches, nil
}

// Remove drops documents by path. Lazy: graph nodes stay behind as
// orphans and are skipped at query time.
func (s *Store) Remove(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, path := range paths {
		if key, exists := s.idMap[path]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, path)
		}
	}
	return nil
}

// Contains reports whether path has a live vector.
func (s *Store) Contains(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[path]
	return exists
}

// Count returns the number of live vectors (orphans excluded).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save writes the graph to path and the path mappings to path+".meta",
// each through a temp file and rename.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	if err := s.saveMetadata(MetaPath(path)); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := storeMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadStore reads a store previously written by Save. The metadata
// sidecar supplies the graph parameters, so no config is needed here.
func LoadStore(path string) (*Store, error) {
	meta, err := readMetadata(MetaPath(path))
	if err != nil {
		return nil, err
	}

	s := NewStore(meta.Config)
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer file.Close()

	// hnsw.Graph.Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return s, nil
}

func readMetadata(path string) (*storeMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta storeMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// MetaPath returns the metadata sidecar path for a graph file.
func MetaPath(graphPath string) string {
	return graphPath + ".meta"
}

// Close releases the graph. Further operations return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// distanceToScore maps cosine distance (0..2) onto a similarity score
// in [0, 1], 1 meaning identical direction.
func distanceToScore(distance float32) float64 {
	score := 1 - float64(distance)/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
