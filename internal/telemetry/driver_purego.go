//go:build !sqlite_cgo

package telemetry

// Default build: pure Go SQLite, no C compiler needed, cross-compiles
// everywhere.
//
//   go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver to open telemetry stores with.
	DriverName = "sqlite"

	// BuildMode describes the current SQLite build configuration.
	BuildMode = "purego"
)
