package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/indexcache"
	"github.com/quarrysearch/quarry/internal/output"
	"github.com/quarrysearch/quarry/internal/profiling"
	"github.com/quarrysearch/quarry/internal/vector"
)

// statusInfo is the machine-readable shape of 'quarry status'.
type statusInfo struct {
	Root           string    `json:"root"`
	DataDir        string    `json:"data_dir"`
	Documents      int       `json:"documents"`
	IndexedAt      time.Time `json:"indexed_at"`
	LexicalBytes   int64     `json:"lexical_bytes"`
	VectorBytes    int64     `json:"vector_bytes"`
	TelemetryBytes int64     `json:"telemetry_bytes"`
	TotalBytes     int64     `json:"total_bytes"`
	VectorEnabled  bool      `json:"vector_enabled"`
	Embedder       string    `json:"embedder,omitempty"`
}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status for the current project",
		Long: `Status reports what is on disk for the current project: document
count, when the index was last written, and how much space the index
files take. It does not build or refresh anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")

	return cmd
}

// runStatus reports the on-disk index state without building anything.
func runStatus(ctx context.Context, cmd *cobra.Command, jsonOut bool) error {
	cleanup := setupCLILogging()
	defer cleanup()

	root, cfg, err := resolveProject(".")
	if err != nil {
		return err
	}
	dataDir := cfg.DataDir(root)
	if err := requireIndex(root, dataDir); err != nil {
		return err
	}

	info, err := collectStatus(ctx, root, dataDir, cfg)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📊", "Index status for %s", info.Root)
	out.Newline()
	out.Statusf("", "Documents:    %d", info.Documents)
	out.Statusf("", "Indexed at:   %s", info.IndexedAt.Format(time.RFC3339))
	out.Statusf("", "Lexical size: %s", profiling.FormatBytes(uint64(info.LexicalBytes)))
	if info.VectorEnabled {
		out.Statusf("", "Vector size:  %s (%s)", profiling.FormatBytes(uint64(info.VectorBytes)), info.Embedder)
	} else {
		out.Statusf("", "Vector:       disabled")
	}
	if info.TelemetryBytes > 0 {
		out.Statusf("", "Telemetry:    %s", profiling.FormatBytes(uint64(info.TelemetryBytes)))
	}
	out.Statusf("", "Total size:   %s", profiling.FormatBytes(uint64(info.TotalBytes)))
	return nil
}

// collectStatus gathers index state from the data directory.
func collectStatus(ctx context.Context, root, dataDir string, cfg *config.Config) (*statusInfo, error) {
	store := indexcache.NewStore(dataDir)
	file, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	info := &statusInfo{
		Root:          root,
		DataDir:       dataDir,
		VectorEnabled: cfg.Vector.Enabled,
	}
	if cfg.Vector.Enabled {
		info.Embedder = vector.NewHashEmbedder(cfg.Vector.Dimensions).ModelName()
	}
	if file != nil {
		info.Documents = file.FileCount
		info.IndexedAt = file.IndexedAt
	}

	info.LexicalBytes = fileSize(store.Path())

	vectorPath := filepath.Join(dataDir, vectorIndexFileName)
	if file != nil && file.VectorIndexLocation != "" {
		vectorPath = file.VectorIndexLocation
	}
	info.VectorBytes = fileSize(vectorPath) +
		fileSize(vector.MetaPath(vectorPath)) +
		fileSize(vector.DocsPath(vectorPath))

	info.TelemetryBytes = fileSize(filepath.Join(dataDir, telemetryFileName))
	info.TotalBytes = info.LexicalBytes + info.VectorBytes + info.TelemetryBytes

	return info, nil
}

// fileSize returns the size of the file at path, or 0 when it does not
// exist.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
