// Package indexcache persists index state between runs so a restart
// can resume from fingerprints instead of rebuilding from scratch.
//
// One cache file exists per corpus root. It carries the corpus
// fingerprint record, the serialized lexical index, and the location
// of the vector index, all under a single format version. A version
// mismatch or corrupt file is reported as a format error; callers
// downgrade that to a full rebuild and never surface it.
package indexcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/quarrysearch/quarry/internal/fingerprint"
)

// FormatVersion is the current cache schema version. Any persisted
// file with a different version is discarded on load.
const FormatVersion = 1

// File is the persisted cache schema for one corpus root.
type File struct {
	// FormatVersion is the schema version the file was written with.
	FormatVersion int `json:"formatVersion"`

	// RootID identifies the corpus root the cache belongs to.
	RootID string `json:"rootId"`

	// IndexedAt is the completion time of the build that wrote the file.
	IndexedAt time.Time `json:"indexedAt"`

	// FileCount is the number of fingerprinted documents.
	FileCount int `json:"fileCount"`

	// Fingerprints is the corpus fingerprint record.
	Fingerprints fingerprint.Record `json:"fingerprints"`

	// LexicalIndex is the serialized lexical index, opaque to this
	// package so the cache schema stays decoupled from index internals.
	LexicalIndex json.RawMessage `json:"lexicalIndex,omitempty"`

	// VectorIndexLocation is the path of the persisted vector index,
	// empty when no vector index has been built.
	VectorIndexLocation string `json:"vectorIndexLocation,omitempty"`
}

// NewFile returns an empty cache file for a corpus root.
func NewFile(rootID string) *File {
	return &File{
		FormatVersion: FormatVersion,
		RootID:        rootID,
		Fingerprints:  make(fingerprint.Record),
	}
}

// RootID derives a stable identifier for a corpus root path.
func RootID(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:16]
}
