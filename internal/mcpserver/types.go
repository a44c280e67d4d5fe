// Package mcpserver implements the daemon's stdio agent-protocol surface
// (§6): two tools, search_context and get_status, registered against
// mark3labs/mcp-go and served over stdio, grounded on the teacher's
// internal/mcp tool-registration idiom (mcp.NewTool/server.AddTool, argument
// maps parsed by hand, JSON text results).
package mcpserver

import (
	"context"

	"github.com/sandy-sachin7/contextd/internal/query"
	"github.com/sandy-sachin7/contextd/internal/store"
)

// Searcher is the narrow slice of *query.Engine search_context depends on.
type Searcher interface {
	Search(ctx context.Context, req query.Request) ([]query.Hit, error)
}

// StatsSource is the narrow slice of *store.Store get_status depends on.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// statusResult is get_status's JSON payload, mirroring GET /status.
type statusResult struct {
	IndexedFiles int    `json:"indexed_files"`
	TotalChunks  int    `json:"total_chunks"`
	DBSizeBytes  int64  `json:"db_size_bytes"`
	ModelType    string `json:"model_type"`
	ModelDim     int    `json:"model_dim"`
}

// searchHit is one ranked excerpt in search_context's rendered output.
type searchHit struct {
	Path        string  `json:"path"`
	Score       float32 `json:"score"`
	LastModified int64  `json:"last_modified"`
	Kind        string  `json:"kind,omitempty"`
	Symbol      string  `json:"symbol,omitempty"`
	HeadingPath string  `json:"heading_path,omitempty"`
	Content     string  `json:"content"`
}
