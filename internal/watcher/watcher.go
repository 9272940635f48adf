// Package watcher reports corpus file changes as debounced event
// batches.
//
// fsnotify delivers raw per-directory events; the watcher registers
// every non-excluded directory recursively, filters events through the
// same exclude matcher the corpus listing uses, and coalesces bursts
// (editor save dances, branch switches) so one quiet period yields one
// batch. Consumers typically react to any batch by invalidating the
// index.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/source"
)

// Operation classifies a file change.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file or directory went away. Renames
	// report as a delete of the old name; the new name arrives as its
	// own create.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced change to a corpus path.
type FileEvent struct {
	// Path is corpus-relative and slash-separated, matching listing paths.
	Path string

	// Operation is the coalesced change type.
	Operation Operation

	// IsDir marks directory events. Deleted paths cannot be stat'ed,
	// so deletes report IsDir false.
	IsDir bool

	// Timestamp is when the change was last seen.
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	// Default: 200ms.
	Debounce time.Duration

	// BufferSize is the batch channel capacity. Default: 100.
	BufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:   200 * time.Millisecond,
		BufferSize: 100,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	return o
}

// Watcher watches a corpus root recursively and emits debounced event
// batches.
type Watcher struct {
	root      string
	exclude   *source.ExcludeMatcher
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errs      chan error
	stopCh    chan struct{}

	mu      sync.Mutex
	stopped bool
}

// New creates a watcher for root. exclude decides which paths are
// outside the corpus; pass the source's matcher so the watcher and the
// listing agree.
func New(root string, exclude *source.ExcludeMatcher, opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeInvalidPath, root, err)
	}
	if exclude == nil {
		exclude = source.NewExcludeMatcher(nil)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, qerrors.IOError("creating filesystem watcher", err)
	}

	opts = opts.withDefaults()
	w := &Watcher{
		root:      absRoot,
		exclude:   exclude,
		opts:      opts,
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.BufferSize),
		errs:      make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	// The forwarder owns the events channel: it closes it after the
	// debouncer output drains, so consumers can range over Events.
	go w.forward()

	return w, nil
}

// Start registers the corpus tree and begins delivering batches on
// Events. It returns once the tree is registered; watching continues
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return qerrors.IOError("watching corpus tree", err)
	}

	slog.Info("watcher_started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.opts.Debounce))

	go w.loop(ctx)
	return nil
}

// Events returns the channel of debounced event batches. It is closed
// after Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors. The channel is best effort
// and never closed; select against it.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop stops watching and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	err := w.fsw.Close()
	w.debouncer.Stop()
	return err
}

// loop pumps raw fsnotify events into the debouncer.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handleEvent filters and converts one raw event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil || relPath == "." {
		return
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if w.exclude.Match(relPath, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories must be registered or changes inside them
		// are invisible.
		if isDir {
			_ = w.fsw.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpDelete
	default:
		// Chmod and other noise.
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// forward moves debounced batches to the events channel. It exits and
// closes the channel when the debouncer stops.
func (w *Watcher) forward() {
	for batch := range w.debouncer.Output() {
		if len(batch) == 0 {
			continue
		}
		select {
		case w.events <- batch:
		default:
			slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
		}
	}
	close(w.events)
}

// addRecursive registers root and every non-excluded directory below it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip entries we cannot access
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return w.fsw.Add(path)
		}

		if w.exclude.MatchDir(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
