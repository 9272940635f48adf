package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/output"
)

// newClearCmd creates the clear command.
func newClearCmd() *cobra.Command {
	var clearTelemetry bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached index",
		Long: `Clear removes the cached index state so the next build starts from
scratch. Recorded query telemetry is kept unless --telemetry is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.Context(), cmd, clearTelemetry)
		},
	}

	cmd.Flags().BoolVar(&clearTelemetry, "telemetry", false, "Also remove recorded query telemetry")

	return cmd
}

// runClear drops the cached index files, and optionally telemetry.
func runClear(ctx context.Context, cmd *cobra.Command, clearTelemetry bool) error {
	cleanup := setupCLILogging()
	defer cleanup()

	root, cfg, err := resolveProject(".")
	if err != nil {
		return err
	}

	// The telemetry store stays closed here so its files can be removed.
	a, err := buildApp(root, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Engine first: the vector builder resolves its files through the
	// cache, which is removed right after.
	if err := a.engine.ClearCache(ctx); err != nil {
		return err
	}
	if err := indexcache.NewStore(a.dataDir).Clear(ctx); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Cleared index cache in %s", a.dataDir)

	if clearTelemetry {
		removed := false
		base := filepath.Join(a.dataDir, telemetryFileName)
		for _, p := range []string{base, base + "-wal", base + "-shm"} {
			if err := os.Remove(p); err == nil {
				removed = true
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		if removed {
			out.Success("Cleared query telemetry")
		}
	}

	return nil
}
