package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrysearch/quarry/internal/search"
	"github.com/quarrysearch/quarry/pkg/version"
)

// Server bridges MCP clients with the hybrid search engine. It exposes
// two tools: search (query the indexes) and status (build progress and
// readiness).
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	root   string
	logger *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Type  string `json:"type,omitempty" jsonschema:"which indexes to query: lexical, vector, or all (default all)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []ResultOutput `json:"results" jsonschema:"ranked search results"`
}

// ResultOutput is a single search result.
type ResultOutput struct {
	Path       string  `json:"path" jsonschema:"document path relative to the corpus root"`
	Snippet    string  `json:"snippet,omitempty" jsonschema:"matched content snippet"`
	Score      float64 `json:"score" jsonschema:"relevance score, higher is better"`
	Provenance string  `json:"provenance" jsonschema:"which index found the document: lexical, vector, or merged"`
}

// StatusInput defines the input schema for the status tool. The tool
// takes no parameters.
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	Root         string                 `json:"root" jsonschema:"absolute path of the indexed corpus"`
	IsIndexing   bool                   `json:"is_indexing" jsonschema:"true while any index is building"`
	Progress     int                    `json:"progress" jsonschema:"aggregate build progress, 0-100"`
	CurrentItem  string                 `json:"current_item,omitempty" jsonschema:"document currently being indexed"`
	TotalItems   int                    `json:"total_items" jsonschema:"total documents across indexes"`
	IndexedItems int                    `json:"indexed_items" jsonschema:"documents indexed so far"`
	Error        string                 `json:"error,omitempty" jsonschema:"build errors, empty when healthy"`
	Indexes      map[string]IndexStatus `json:"indexes" jsonschema:"per-index status keyed by kind"`
}

// IndexStatus is the status of one index.
type IndexStatus struct {
	State        string `json:"state" jsonschema:"lifecycle state: empty, building, ready, or failed"`
	TotalItems   int    `json:"total_items" jsonschema:"documents in the current or last build"`
	IndexedItems int    `json:"indexed_items" jsonschema:"documents indexed so far"`
	Error        string `json:"error,omitempty" jsonschema:"last build error"`
}

// NewServer creates a new MCP server over the given engine. rootPath is
// reported by the status tool so clients know which corpus they are
// querying.
func NewServer(engine *search.Engine, rootPath string) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}

	s := &Server{
		engine: engine,
		root:   rootPath,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "quarry",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "quarry", version.Version
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed corpus. Combines exact term matching with semantic similarity, so documents are found by meaning as well as by keyword. Results are ranked and deduplicated across both indexes.",
	}, s.mcpSearchHandler)
	s.logger.Debug("registered tool", slog.String("name", "search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Check whether the corpus index is ready and report build progress. Searches issued during a build return results from the last published index, so use this to tell partial results from complete ones.",
	}, s.mcpStatusHandler)
	s.logger.Debug("registered tool", slog.String("name", "status"))

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be non-empty")
	}
	typ, ok := search.ParseType(input.Type)
	if !ok {
		return nil, SearchOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown search type %q (supported: lexical, vector, all)", input.Type))
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("type", string(typ)),
		slog.Int("limit", input.Limit))

	results, err := s.engine.Search(ctx, input.Query, search.Options{
		Type:  typ,
		Limit: input.Limit,
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	output := SearchOutput{
		Results: make([]ResultOutput, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, ResultOutput{
			Path:       r.Path,
			Snippet:    r.Snippet,
			Score:      r.Score,
			Provenance: string(r.Provenance),
		})
	}

	return nil, output, nil
}

// mcpStatusHandler is the MCP SDK handler for the status tool.
func (s *Server) mcpStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	st := s.engine.Status()

	output := StatusOutput{
		Root:         s.root,
		IsIndexing:   st.IsIndexing,
		Progress:     st.Progress,
		CurrentItem:  st.CurrentItem,
		TotalItems:   st.TotalItems,
		IndexedItems: st.IndexedItems,
		Error:        st.Error,
		Indexes:      make(map[string]IndexStatus, len(st.Indexes)),
	}
	for kind, idx := range st.Indexes {
		output.Indexes[kind] = IndexStatus{
			State:        string(idx.State),
			TotalItems:   idx.TotalItems,
			IndexedItems: idx.IndexedItems,
			Error:        idx.Error,
		}
	}

	return nil, output, nil
}

// Serve starts the server with the specified transport and blocks until
// the context is cancelled or the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("root", s.root))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
