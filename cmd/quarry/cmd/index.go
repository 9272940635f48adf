package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
)

// indexOptions holds flags for the index command.
type indexOptions struct {
	full bool
}

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or refresh the search index",
		Long: `Index scans the project tree and builds the lexical and vector
indexes. Subsequent runs are incremental: files whose size, mtime, and
content hash are unchanged keep their indexed state, and deleted files
are pruned.

Use --full to discard the cached state and rebuild everything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Allow interruption; a cancelled build leaves the
			// previously published index intact.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			startDir := "."
			if len(args) > 0 {
				startDir = args[0]
			}
			return runIndex(ctx, cmd, startDir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.full, "full", false, "Rebuild from scratch instead of incrementally")

	return cmd
}

// runIndex executes the indexing flow with progress output.
func runIndex(ctx context.Context, cmd *cobra.Command, startDir string, opts *indexOptions) error {
	cleanup := setupCLILogging()
	defer cleanup()

	a, err := openApp(startDir, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📂", "Indexing %s", a.root)

	if opts.full {
		if err := a.engine.ClearCache(ctx); err != nil {
			return fmt.Errorf("failed to clear index cache: %w", err)
		}
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- a.engine.Load(ctx) }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			out.ProgressDone()
			if err != nil {
				return err
			}
			st := a.engine.Status()
			docs := st.Indexes["lexical"].TotalItems
			out.Successf("Indexed %d documents in %s", docs, time.Since(start).Round(time.Millisecond))
			if !a.cfg.Vector.Enabled {
				out.Warning("Vector search is disabled; only the lexical index was built")
			}
			return nil
		case <-ticker.C:
			if st := a.engine.Status(); st.IsIndexing {
				out.Progress(st.IndexedItems, st.TotalItems, st.CurrentItem)
			}
		}
	}
}
