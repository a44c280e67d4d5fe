package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandy-sachin7/contextd/internal/query"
	"github.com/sandy-sachin7/contextd/internal/store"
)

const defaultSearchLimit = 10

// addSearchContextTool registers search_context: §6's
// search_context(query, limit?, file_types?, min_score?), wrapping the same
// Query Engine call POST /query makes.
func addSearchContextTool(s *server.MCPServer, searcher Searcher) {
	tool := mcp.NewTool(
		"search_context",
		mcp.WithDescription("Search indexed project context (code, docs, config) by natural-language query. Returns ranked excerpts with file paths and relevance scores."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default 10)")),
		mcp.WithArray("file_types",
			mcp.Description("Restrict results to these file extensions, e.g. ['.go', '.md']")),
		mcp.WithNumber("min_score",
			mcp.Description("Drop results scoring below this threshold (0.0-1.0)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(tool, createSearchContextHandler(searcher))
}

func createSearchContextHandler(searcher Searcher) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		queryText, err := parseStringArg(argsMap, "query", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		limit := parseIntArg(argsMap, "limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		hits, err := searcher.Search(ctx, query.Request{
			Query: queryText,
			Limit: limit,
			Predicates: store.Predicates{
				FileTypes: parseStringArrayArg(argsMap, "file_types"),
				MinScore:  parseFloatArg(argsMap, "min_score"),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		results := make([]searchHit, len(hits))
		for i, h := range hits {
			results[i] = searchHit{
				Path: h.Path, Score: h.Score, LastModified: h.Mtime,
				Kind: h.Kind, Symbol: h.Symbol, HeadingPath: h.HeadingPath, Content: h.Text,
			}
		}

		jsonData, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// addGetStatusTool registers get_status: §6's get_status(), wrapping the
// same Store stats GET /status reports.
func addGetStatusTool(s *server.MCPServer, stats StatsSource, modelType string, modelDim int) {
	tool := mcp.NewTool(
		"get_status",
		mcp.WithDescription("Report indexing status: file and chunk counts, store size, and the active embedding model."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(tool, createGetStatusHandler(stats, modelType, modelDim))
}

func createGetStatusHandler(stats StatsSource, modelType string, modelDim int) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := stats.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("stats failed: %w", err)
		}
		result := statusResult{
			IndexedFiles: st.FileCount, TotalChunks: st.ChunkCount, DBSizeBytes: st.SizeBytes,
			ModelType: modelType, ModelDim: modelDim,
		}
		jsonData, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}
