// Package httpapi implements the daemon's HTTP transport (§6): three thin
// endpoints over the Query Engine and the Store, using the standard
// library's net/http and ServeMux — no router dependency is justified for a
// surface this small.
package httpapi

import (
	"context"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// QueryRequest is POST /query's request body.
type QueryRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	StartTime int64    `json:"start_time,omitempty"`
	EndTime   int64    `json:"end_time,omitempty"`
	FileTypes []string `json:"file_types,omitempty"`
	MinScore  float32  `json:"min_score,omitempty"`
}

// ResultDTO is one ranked hit in /query's response.
type ResultDTO struct {
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
	Path         string  `json:"path"`
	LastModified int64   `json:"last_modified"`
	Kind         string  `json:"kind,omitempty"`
	Symbol       string  `json:"symbol,omitempty"`
	HeadingPath  string  `json:"heading_path,omitempty"`
}

// QueryResponse is POST /query's response body.
type QueryResponse struct {
	Results []ResultDTO `json:"results"`
}

// StatusResponse is GET /status's response body.
type StatusResponse struct {
	IndexedFiles int    `json:"indexed_files"`
	TotalChunks  int    `json:"total_chunks"`
	DBSizeBytes  int64  `json:"db_size_bytes"`
	ModelType    string `json:"model_type"`
	ModelDim     int    `json:"model_dim"`
}

// ErrorResponse is the body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsSource is the narrow slice of *store.Store the HTTP surface depends on.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}
