//go:build sqlite_cgo

package telemetry

// Opt-in build: the C SQLite driver, faster under sustained write load.
//
//   CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver to open telemetry stores with.
	DriverName = "sqlite3"

	// BuildMode describes the current SQLite build configuration.
	BuildMode = "cgo"
)
