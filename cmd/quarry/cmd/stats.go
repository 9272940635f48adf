package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
	"github.com/quarrysearch/quarry/internal/telemetry"
)

// statsDateLayout matches the day keys used by the telemetry store.
const statsDateLayout = "2006-01-02"

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query telemetry",
		Long:  `Display statistics about query patterns, latency, and usage.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display query pattern telemetry including:
  - Query type distribution (lexical/vector/hybrid)
  - Top query terms
  - Recent zero-result queries
  - Latency distribution`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsQueries(cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Summary             StatsQueriesSummary   `json:"summary"`
	QueryTypeCounts     map[string]int64      `json:"query_type_counts"`
	TopTerms            []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries   []string              `json:"zero_result_queries"`
	LatencyDistribution map[string]int64      `json:"latency_distribution"`
}

// StatsQueriesSummary provides overview statistics.
type StatsQueriesSummary struct {
	TotalQueries int64 `json:"total_queries"`
	Days         int   `json:"days"`
}

func runStatsQueries(cmd *cobra.Command, jsonOutput bool, days int) error {
	cleanup := setupCLILogging()
	defer cleanup()

	root, cfg, err := resolveProject(".")
	if err != nil {
		return err
	}
	if !cfg.Telemetry.Enabled {
		output.New(cmd.OutOrStdout()).Warning("Telemetry is disabled in the configuration")
		return nil
	}

	dbPath := filepath.Join(cfg.DataDir(root), telemetryFileName)
	if !fileExists(dbPath) {
		output.New(cmd.OutOrStdout()).Status("📈", "No queries recorded yet")
		return nil
	}

	// The store uses WAL mode, so reading here is safe while a server
	// process holds the database open.
	store, err := telemetry.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open telemetry store: %w", err)
	}
	defer func() { _ = store.Close() }()

	stats, err := collectQueryStats(store, days)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	return printStatsFormatted(cmd, stats)
}

// collectQueryStats reads the aggregated counters for the trailing
// window of days.
func collectQueryStats(store *telemetry.SQLiteMetricsStore, days int) (*StatsQueriesOutput, error) {
	if days < 1 {
		days = 1
	}
	to := time.Now()
	from := to.AddDate(0, 0, -(days - 1))

	typeCounts, err := store.GetQueryTypeCounts(from.Format(statsDateLayout), to.Format(statsDateLayout))
	if err != nil {
		return nil, fmt.Errorf("get query type counts: %w", err)
	}

	topTerms, err := store.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}

	zeroResults, err := store.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}

	latency, err := store.GetLatencyCounts(from.Format(statsDateLayout), to.Format(statsDateLayout))
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	stats := &StatsQueriesOutput{
		Summary:             StatsQueriesSummary{Days: days},
		QueryTypeCounts:     make(map[string]int64, len(typeCounts)),
		TopTerms:            topTerms,
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: make(map[string]int64, len(latency)),
	}
	for qt, count := range typeCounts {
		stats.QueryTypeCounts[string(qt)] = count
		stats.Summary.TotalQueries += count
	}
	for bucket, count := range latency {
		stats.LatencyDistribution[string(bucket)] = count
	}
	return stats, nil
}

func printStatsFormatted(cmd *cobra.Command, stats *StatsQueriesOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Query Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Queries (last %dd): %d\n", stats.Summary.Days, stats.Summary.TotalQueries)
	fmt.Fprintln(w)

	if len(stats.QueryTypeCounts) > 0 {
		fmt.Fprintln(w, "Query Type Distribution:")
		for _, qt := range []telemetry.QueryType{telemetry.QueryTypeLexical, telemetry.QueryTypeVector, telemetry.QueryTypeHybrid} {
			if count, ok := stats.QueryTypeCounts[string(qt)]; ok {
				fmt.Fprintf(w, "  %s: %d\n", qt, count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(stats.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range stats.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
		fmt.Fprintln(w)
	}

	if len(stats.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range stats.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
		fmt.Fprintln(w)
	}

	if len(stats.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		buckets := []telemetry.LatencyBucket{
			telemetry.BucketP10,
			telemetry.BucketP50,
			telemetry.BucketP100,
			telemetry.BucketP500,
			telemetry.BucketP1000,
		}
		labels := map[telemetry.LatencyBucket]string{
			telemetry.BucketP10:   "<10ms",
			telemetry.BucketP50:   "10-50ms",
			telemetry.BucketP100:  "50-100ms",
			telemetry.BucketP500:  "100-500ms",
			telemetry.BucketP1000: ">=500ms",
		}
		for _, b := range buckets {
			if count, ok := stats.LatencyDistribution[string(b)]; ok {
				fmt.Fprintf(w, "  %s: %d\n", labels[b], count)
			}
		}
	}

	return nil
}
