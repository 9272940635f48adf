//go:build ignore

// Package main generates a synthetic document corpus for exercising the
// indexer at scale.
// Usage: go run scripts/generate-test-corpus.go -files 500 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFiles  = flag.Int("files", 500, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var guideTemplate = `# %s Guide

## Overview

This guide covers %s for the %s subsystem. It assumes a working
deployment and walks through configuration, day-to-day operation, and
troubleshooting.

## Configuration

The %s subsystem reads its settings from the service configuration:

- timeout: how long a single %s attempt may run
- retries: attempts before the operation is reported as failed
- batch_size: items processed per cycle

Settings apply on the next restart. A reload signal is not enough for
changes to the %s section.

## Operation

Routine %s runs on a schedule and needs no intervention. Watch the
%s dashboard for queue depth; sustained growth means the workers
cannot keep up and the batch size should be raised.

## Troubleshooting

When %s fails repeatedly:

1. Check connectivity to the %s backend.
2. Inspect recent log entries for timeout errors.
3. Verify disk space on the data volume.

Escalate if the failure persists past three retry cycles.
`

var runbookTemplate = `# Runbook: %s

Severity: %s
Owner: platform team

## Symptoms

Alerts fire on %s latency or the %s error rate crosses the
threshold. Users may report slow responses or timeouts.

## Immediate actions

1. Confirm the alert is not a deployment artifact.
2. Check the %s service health endpoint.
3. Review the last three deployments for related changes.

## Diagnosis

Elevated %s latency usually traces to one of:

- saturated workers (check queue depth)
- a slow downstream %s dependency
- resource pressure on the host

## Remediation

Scale the worker pool first; it is the cheapest lever. If the
%s dependency is the bottleneck, enable the degraded mode that
serves cached results until it recovers.

## Follow-up

File a postmortem entry when the incident lasted longer than
30 minutes or required manual remediation.
`

var noteTemplate = `%s notes, sprint %d

Discussed the %s work with the team. Main points:

- the %s path needs better error reporting before release
- %s throughput is acceptable after the batching change
- still missing test coverage for the %s edge cases

Decided to prioritize %s hardening next sprint. The %s migration
stays on hold until the storage questions are settled.

Action items:
- draft the %s design note
- measure %s latency under load
- schedule the review for the %s changes
`

var changelogTemplate = `# Changelog: %s

## v%d.%d.0

- Added %s support with configurable %s limits.
- Fixed a race in the %s shutdown path.
- Improved %s error messages to include the failing item.

## v%d.%d.0

- Reworked %s batching for lower memory use.
- Deprecated the legacy %s flag; it will be removed next release.

## v%d.%d.0

- Initial %s implementation.
`

var goTemplate = `package %s

import (
	"context"
	"fmt"
	"time"
)

// %s coordinates %s for the service.
type %s struct {
	name     string
	interval time.Duration
}

// New%s returns a %s with the given schedule.
func New%s(name string, interval time.Duration) *%s {
	return &%s{name: name, interval: interval}
}

// Run executes %s cycles until ctx is cancelled.
func (s *%s) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				return fmt.Errorf("%s cycle: %%w", err)
			}
		}
	}
}

func (s *%s) cycle(ctx context.Context) error {
	_ = ctx
	return nil
}
`

// Word pools keep the vocabulary overlapping across files so that
// multi-document term statistics resemble a real corpus.
var (
	topics = []string{
		"indexing", "replication", "backups", "migration", "caching",
		"monitoring", "alerting", "archiving", "compaction", "retention",
		"ingestion", "validation", "scheduling", "rollout", "recovery",
	}
	systems = []string{
		"Search", "Storage", "Gateway", "Pipeline", "Billing",
		"Catalog", "Notification", "Export", "Audit", "Session",
	}
	severities = []string{"low", "medium", "high", "critical"}
	authors    = []string{"Ops", "Platform", "Search team", "Infra", "Oncall"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	subdirs := []string{"docs", "runbooks", "notes", "src"}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	// Weighted toward prose; a slice of source files keeps tokenizer
	// paths for identifiers exercised too.
	guides := *numFiles * 35 / 100
	runbooks := *numFiles * 25 / 100
	notes := *numFiles * 20 / 100
	changelogs := *numFiles * 10 / 100
	sources := *numFiles - guides - runbooks - notes - changelogs

	generated := 0
	for i := 0; i < guides; i++ {
		if err := writeGuide(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing guide %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}
	for i := 0; i < runbooks; i++ {
		if err := writeRunbook(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing runbook %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}
	for i := 0; i < notes; i++ {
		if err := writeNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing note %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}
	for i := 0; i < changelogs; i++ {
		if err := writeChangelog(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing changelog %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}
	for i := 0; i < sources; i++ {
		if err := writeSource(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing source %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}

	fmt.Printf("Generated %d files.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func writeGuide(rng *rand.Rand, index int) error {
	topic := pick(rng, topics)
	system := pick(rng, systems)

	content := fmt.Sprintf(guideTemplate,
		system, topic, system,
		system, topic, topic,
		topic, system,
		topic, system,
	)

	name := fmt.Sprintf("%s-%s-%d.md", system, topic, index)
	return os.WriteFile(filepath.Join(*outputDir, "docs", name), []byte(content), 0644)
}

func writeRunbook(rng *rand.Rand, index int) error {
	topic := pick(rng, topics)
	system := pick(rng, systems)
	severity := pick(rng, severities)

	content := fmt.Sprintf(runbookTemplate,
		system, severity,
		system, topic,
		system,
		system, topic,
		topic,
	)

	name := fmt.Sprintf("%s-%d.md", system, index)
	return os.WriteFile(filepath.Join(*outputDir, "runbooks", name), []byte(content), 0644)
}

func writeNote(rng *rand.Rand, index int) error {
	topic := pick(rng, topics)
	second := pick(rng, topics)
	author := pick(rng, authors)
	sprint := rng.Intn(40) + 1

	content := fmt.Sprintf(noteTemplate,
		author, sprint,
		topic,
		topic, topic, second,
		topic, second,
		topic, second, topic,
	)

	name := fmt.Sprintf("note-%03d.txt", index)
	return os.WriteFile(filepath.Join(*outputDir, "notes", name), []byte(content), 0644)
}

func writeChangelog(rng *rand.Rand, index int) error {
	topic := pick(rng, topics)
	system := pick(rng, systems)
	major := rng.Intn(3) + 1

	content := fmt.Sprintf(changelogTemplate,
		system,
		major, rng.Intn(9)+1,
		topic, topic, system, topic,
		major, rng.Intn(9),
		topic, topic,
		major-1, rng.Intn(9),
		topic,
	)

	name := fmt.Sprintf("%s-changelog-%d.md", system, index)
	return os.WriteFile(filepath.Join(*outputDir, "docs", name), []byte(content), 0644)
}

func writeSource(rng *rand.Rand, index int) error {
	topic := pick(rng, topics)
	system := pick(rng, systems)

	content := fmt.Sprintf(goTemplate,
		fmt.Sprintf("pkg%d", index),
		system, topic, system,
		system, system, system, system, system,
		topic, system, topic,
		system,
	)

	name := fmt.Sprintf("%s_%d.go", topic, index)
	return os.WriteFile(filepath.Join(*outputDir, "src", name), []byte(content), 0644)
}
