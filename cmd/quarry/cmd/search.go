package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
	"github.com/quarrysearch/quarry/internal/search"
)

// searchOptions holds flags for the search command.
type searchOptions struct {
	searchType string
	limit      int
	jsonOut    bool
}

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed project",
		Long: `Search runs a query against the published index and prints ranked
results. By default both the lexical and vector indexes are queried and
results found by both are merged; use --type to restrict the query to
one index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.searchType, "type", "t", "all", "Which indexes to query: lexical, vector, or all")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")

	return cmd
}

// runSearch executes a query against the cached index and renders the
// results.
func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts *searchOptions) error {
	cleanup := setupCLILogging()
	defer cleanup()

	root, cfg, err := resolveProject(".")
	if err != nil {
		return err
	}
	if err := requireIndex(root, cfg.DataDir(root)); err != nil {
		return err
	}

	typ, ok := search.ParseType(opts.searchType)
	if !ok {
		return fmt.Errorf("unknown search type %q (supported: lexical, vector, all)", opts.searchType)
	}

	a, err := buildApp(root, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Load publishes the cached index; unchanged files are not re-read.
	if err := a.engine.Load(ctx); err != nil {
		return err
	}

	results, err := a.engine.Search(ctx, query, search.Options{Type: typ, Limit: opts.limit})
	if err != nil {
		return err
	}

	if opts.jsonOut {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Statusf("🔍", "No results for %q", query)
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()
	for i, r := range results {
		out.Statusf("", "%d. %s (score: %.3f, %s)", i+1, r.Path, r.Score, r.Provenance)
		if snippet := snippetLine(r.Snippet); snippet != "" {
			out.Statusf("", "   %s", snippet)
		}
	}
	return nil
}

// snippetLine flattens a stored snippet to a single display line.
func snippetLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
