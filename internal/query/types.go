// Package query implements C7: normalization, fingerprint caching, and
// hybrid fusion of the Store's dense and lexical result sets.
package query

import (
	"context"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// Request is a user query plus the predicates narrowing it.
type Request struct {
	Query      string
	Limit      int
	Predicates store.Predicates
}

// Hit is one ranked result returned to the caller, matching §4.7's
// {path, chunk_text, score, mtime, chunk_kind, symbol?} shape.
type Hit struct {
	Path        string
	Text        string
	Score       float32
	Mtime       int64
	Kind        string
	Symbol      string
	HeadingPath string
}

// Embedder is the subset of embedder.Embedder the query engine needs, kept
// narrow so tests can substitute a fake without an ONNX model on disk.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the subset of *store.Store the query engine needs.
type Searcher interface {
	Query(ctx context.Context, vector []float32, k int, pred store.Predicates) ([]store.Result, error)
	QueryLexical(ctx context.Context, query string, k int, pred store.Predicates) ([]store.Result, error)
}
