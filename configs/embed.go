// Package configs provides the embedded project configuration template.
//
// The template is embedded at build time with //go:embed so it ships in
// every distribution of the binary, whether installed from source or from
// a release artifact.
//
// It is consumed by `quarry init` (cmd/quarry/cmd/init.go), which writes
// it to .quarry.yaml at the corpus root. The template keeps every setting
// commented out except the version marker, so a freshly initialized
// project runs on the same defaults as one with no config file at all.
// The full precedence chain lives in internal/config.Load: defaults,
// then .quarry.yaml, then QUARRY_* environment variables.
//
// To change the template, edit quarry.example.yaml in this directory and
// rebuild.
package configs

import _ "embed"

// ProjectConfigTemplate is written by `quarry init` as .quarry.yaml.
// All settings except "version" are commented examples.
//
//go:embed quarry.example.yaml
var ProjectConfigTemplate string
