// Package version exposes the build identity stamped into the quarry
// binary at link time.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// Stamped via -ldflags at build time, e.g.
// -X github.com/quarrysearch/quarry/pkg/version.Version=$(VERSION).
// A plain `go build` leaves the dev defaults in place.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build identity of the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get resolves the stamped values plus the runtime environment.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String renders the one-line form used by `quarry version`.
func (i Info) String() string {
	return fmt.Sprintf("quarry %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.OS, i.Arch)
}

// JSON renders the indented machine-readable form.
func (i Info) JSON() ([]byte, error) {
	return json.MarshalIndent(i, "", "  ")
}
