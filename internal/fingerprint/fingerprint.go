// Package fingerprint tracks per-document content fingerprints and
// classifies corpus changes between indexing rounds.
//
// A fingerprint pairs a document's modification time with a SHA-256
// content hash. Detection uses the modification time as a fast path:
// a document whose mtime matches the previous round is treated as
// unchanged without re-reading its content. When the mtime differs the
// content hash decides whether the document really changed, so a touch
// without an edit updates the recorded mtime but does not trigger
// re-indexing.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/source"
)

// Fingerprint records the last-observed state of one document.
// Modification times are stored at second precision since filesystem
// mtime resolution varies across platforms.
type Fingerprint struct {
	MTime int64  `json:"mtime"`
	Hash  string `json:"hash"`
}

// Record maps document paths (slash-separated, relative to the corpus
// root) to their fingerprints.
type Record map[string]Fingerprint

// ChangeKind classifies a document relative to the previous record.
type ChangeKind int

const (
	// ChangeAdded indicates a document with no previous fingerprint.
	ChangeAdded ChangeKind = iota
	// ChangeModified indicates a document whose content hash changed.
	ChangeModified
	// ChangeRemoved indicates a previously fingerprinted document that
	// is absent from the current listing.
	ChangeRemoved
	// ChangeUnchanged indicates a document whose content is identical
	// to the previous round.
	ChangeUnchanged
)

// String returns the lowercase name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// ChangeSet is the outcome of one detection pass. Path slices are
// sorted lexicographically for deterministic processing.
type ChangeSet struct {
	Added     []string
	Modified  []string
	Removed   []string
	Unchanged []string

	// Next is the updated record for the current listing. It carries
	// fresh mtimes for touched-but-identical documents and excludes
	// removed ones.
	Next Record
}

// HasChanges reports whether any document was added, modified, or
// removed.
func (cs *ChangeSet) HasChanges() bool {
	return len(cs.Added) > 0 || len(cs.Modified) > 0 || len(cs.Removed) > 0
}

// Hash returns the lowercase hex SHA-256 digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Detector classifies corpus changes against a previous record.
type Detector struct {
	src     source.Source
	workers int
}

// NewDetector returns a detector reading content through src. workers
// bounds concurrent content reads during hashing; values below one
// fall back to serial hashing.
func NewDetector(src source.Source, workers int) *Detector {
	if workers < 1 {
		workers = 1
	}
	return &Detector{src: src, workers: workers}
}

// hashCandidate is a document that needs its content hashed because
// the mtime fast path could not settle it.
type hashCandidate struct {
	path     string
	mtime    int64
	prevHash string
	hasPrev  bool
	hash     string
	vanished bool
}

// Detect compares the current listing against prev and returns the
// classified change set. A nil prev classifies every document as
// added, which doubles as the full-build path for computing an initial
// record.
//
// Documents that disappear between listing and hashing are classified
// as removed when previously fingerprinted and dropped otherwise.
func (d *Detector) Detect(ctx context.Context, prev Record, docs []source.DocInfo) (*ChangeSet, error) {
	start := time.Now()

	cs := &ChangeSet{Next: make(Record, len(docs))}
	seen := make(map[string]struct{}, len(docs))

	var candidates []*hashCandidate
	for _, doc := range docs {
		seen[doc.Path] = struct{}{}
		mtime := doc.ModTime.Unix()

		prevFP, ok := prev[doc.Path]
		if ok && prevFP.MTime == mtime {
			// Fast path: untouched mtime means unchanged content.
			cs.Unchanged = append(cs.Unchanged, doc.Path)
			cs.Next[doc.Path] = prevFP
			continue
		}

		candidates = append(candidates, &hashCandidate{
			path:     doc.Path,
			mtime:    mtime,
			prevHash: prevFP.Hash,
			hasPrev:  ok,
		})
	}

	if err := d.hashAll(ctx, candidates); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		switch {
		case c.vanished:
			if c.hasPrev {
				cs.Removed = append(cs.Removed, c.path)
			}
		case !c.hasPrev:
			cs.Added = append(cs.Added, c.path)
			cs.Next[c.path] = Fingerprint{MTime: c.mtime, Hash: c.hash}
		case c.hash == c.prevHash:
			// Touched but identical. Record the new mtime so the next
			// round takes the fast path again.
			cs.Unchanged = append(cs.Unchanged, c.path)
			cs.Next[c.path] = Fingerprint{MTime: c.mtime, Hash: c.hash}
		default:
			cs.Modified = append(cs.Modified, c.path)
			cs.Next[c.path] = Fingerprint{MTime: c.mtime, Hash: c.hash}
		}
	}

	for path := range prev {
		if _, ok := seen[path]; !ok {
			cs.Removed = append(cs.Removed, path)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Removed)
	sort.Strings(cs.Unchanged)

	slog.Debug("change_detection_complete",
		slog.Int("added", len(cs.Added)),
		slog.Int("modified", len(cs.Modified)),
		slog.Int("removed", len(cs.Removed)),
		slog.Int("unchanged", len(cs.Unchanged)),
		slog.Int("hashed", len(candidates)),
		slog.Duration("duration", time.Since(start)))

	return cs, nil
}

// hashAll reads and hashes every candidate with bounded parallelism.
// Each goroutine writes only its own slot, so no locking is needed.
func (d *Detector) hashAll(ctx context.Context, candidates []*hashCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			content, err := d.src.Read(gctx, c.path)
			if err != nil {
				if qerrors.GetCode(err) == qerrors.ErrCodeFileNotFound {
					c.vanished = true
					return nil
				}
				return qerrors.New(qerrors.ErrCodeFileRead,
					"hashing document "+c.path, err)
			}
			c.hash = Hash(content)
			return nil
		})
	}

	return g.Wait()
}
