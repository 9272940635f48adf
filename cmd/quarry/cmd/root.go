// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/logging"
	"github.com/quarrysearch/quarry/internal/profiling"
	"github.com/quarrysearch/quarry/pkg/version"
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Hybrid lexical and semantic search over local document trees",
		Long: `Quarry indexes a directory of text documents and serves hybrid search
(TF-IDF plus vector similarity) to MCP clients over stdio.

Indexing is incremental: only files whose size, mtime, or content hash
changed since the last run are re-indexed.

Run 'quarry' with no arguments in a project directory to index it when
needed and start the MCP server.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), reindex)
		},
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Discard the cached index and rebuild before serving")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	// Debug logging flag
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.quarry/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging
// when the corresponding persistent flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to set up debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cleanup, err := profiling.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		cpuCleanup = cleanup
	}

	if profileTrace != "" {
		cleanup, err := profiling.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
		traceCleanup = cleanup
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, and writes the
// memory profile if one was requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command. Structured errors render with their
// hint and code; anything else (usage errors, plain wraps) prints as-is.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true

	err := root.Execute()
	if err == nil {
		return nil
	}

	var qe *qerrors.QuarryError
	if stderrors.As(err, &qe) {
		fmt.Fprint(os.Stderr, qerrors.FormatForCLI(qe))
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// runSmartDefault indexes the current project when needed and starts the
// MCP server. The MCP protocol requires stdout to carry JSON-RPC
// exclusively, so nothing may be printed before the server starts;
// diagnostics go to the log file and 'quarry status' instead.
func runSmartDefault(ctx context.Context, reindex bool) error {
	return runServe(ctx, serveOptions{rebuild: reindex})
}

// setupCLILogging routes slog to the log file for the duration of a CLI
// command, keeping the console reserved for command results. With
// --debug the persistent pre-run hook has already configured logging.
func setupCLILogging() func() {
	if debugMode {
		return func() {}
	}
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// fileExists reports whether a file exists at path.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
