package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events so one save burst becomes one
// index round. Events for the same path within the window merge by
// operation sequence:
//
//	CREATE + MODIFY = CREATE (file is still new)
//	CREATE + DELETE = dropped (file never really existed)
//	MODIFY + DELETE = DELETE (file is gone)
//	DELETE + CREATE = MODIFY (file was replaced)
//
// The window restarts on every event, so a batch is emitted only after
// a full quiet period.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add adds an event to be debounced, coalescing it with any pending
// event for the same path.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
	}

	d.scheduleFlush()
}

// coalesce merges an incoming event into the pending one. keep is
// false when the pair cancels out.
func coalesce(existing, incoming FileEvent) (merged FileEvent, keep bool) {
	merged = incoming

	switch existing.Operation {
	case OpCreate:
		switch incoming.Operation {
		case OpModify, OpCreate:
			// Still a brand-new file.
			merged.Operation = OpCreate
		case OpDelete:
			return FileEvent{}, false
		}

	case OpModify:
		if incoming.Operation == OpCreate {
			// The file already existed; a re-create is a change.
			merged.Operation = OpModify
		}

	case OpDelete:
		if incoming.Operation == OpCreate {
			// Replaced in place (the common atomic-save pattern).
			merged.Operation = OpModify
		}
	}

	return merged, true
}

// scheduleFlush restarts the flush timer.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, event := range d.pending {
		batch = append(batch, event)
	}
	d.pending = make(map[string]FileEvent)

	select {
	case d.output <- batch:
	default:
		slog.Warn("debounce_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to
// call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
