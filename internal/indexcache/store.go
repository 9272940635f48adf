package indexcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/fingerprint"
)

const (
	cacheFileName = "index.json"
	lockFileName  = ".index.lock"

	// lockRetryDelay is the poll interval while waiting for the
	// cross-process file lock.
	lockRetryDelay = 100 * time.Millisecond
)

// Store reads and writes the cache file for one corpus root.
// Writes are serialized by an in-process mutex plus a cross-process
// file lock, and land via write-temp-then-rename so a reader never
// observes a half-written file.
type Store struct {
	mu    sync.Mutex
	path  string
	flock *flock.Flock
}

// NewStore returns a store rooted at dataDir. The directory is created
// on first write.
func NewStore(dataDir string) *Store {
	return &Store{
		path:  filepath.Join(dataDir, cacheFileName),
		flock: flock.New(filepath.Join(dataDir, lockFileName)),
	}
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cache file. A missing file returns (nil, nil). A
// corrupt file or one written with a different format version returns
// a format error; callers treat that as "no cache" and rebuild.
func (s *Store) Load(ctx context.Context) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, qerrors.New(qerrors.ErrCodeFileRead,
			"reading cache file "+s.path, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeCacheCorrupt,
			"cache file is not valid JSON", err)
	}

	if file.FormatVersion != FormatVersion {
		return nil, qerrors.New(qerrors.ErrCodeCacheVersionMismatch,
			"cache format version mismatch", nil).
			WithDetail("found", strconv.Itoa(file.FormatVersion)).
			WithDetail("want", strconv.Itoa(FormatVersion))
	}

	if file.Fingerprints == nil {
		file.Fingerprints = make(fingerprint.Record)
	}
	return &file, nil
}

// Save writes the cache file atomically, stamping the current format
// version. It blocks on the cross-process lock until acquired or ctx
// is done.
func (s *Store) Save(ctx context.Context, file *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.saveLocked(file)
}

func (s *Store) saveLocked(file *File) error {
	file.FormatVersion = FormatVersion

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return qerrors.New(qerrors.ErrCodeCacheWrite,
			"marshaling cache file", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return qerrors.New(qerrors.ErrCodeCacheWrite,
			"creating cache directory", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return qerrors.New(qerrors.ErrCodeCacheWrite,
			"writing cache file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return qerrors.New(qerrors.ErrCodeCacheWrite,
			"publishing cache file", err)
	}
	return nil
}

// Update applies fn to the current cache file under the write lock and
// persists the result. When the existing file is missing, corrupt, or
// from another format version, fn receives a fresh file so the update
// replaces it.
func (s *Store) Update(ctx context.Context, rootID string, fn func(*File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	file, err := s.loadLocked()
	if err != nil {
		if !qerrors.IsFormat(err) {
			return err
		}
		slog.Warn("cache_discarded_on_update",
			slog.String("path", s.path),
			slog.String("reason", err.Error()))
		file = nil
	}
	if file == nil {
		file = NewFile(rootID)
	}

	if err := fn(file); err != nil {
		return err
	}
	return s.saveLocked(file)
}

// Clear removes the cache file. A missing file is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return qerrors.New(qerrors.ErrCodeCacheWrite,
			"removing cache file "+s.path, err)
	}
	return nil
}

// acquireLock takes the cross-process lock, polling until acquired or
// ctx is done. The returned func releases it.
func (s *Store) acquireLock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeCacheWrite,
			"creating cache directory", err)
	}

	acquired, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeLockContention,
			"acquiring cache lock "+s.flock.Path(), err)
	}
	if !acquired {
		return nil, qerrors.New(qerrors.ErrCodeLockContention,
			"cache lock held by another process", nil)
	}
	return func() { _ = s.flock.Unlock() }, nil
}
