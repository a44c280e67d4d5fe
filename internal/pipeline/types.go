// Package pipeline implements the file-change pipeline's concurrency model
// (§5): a fixed-size worker pool consuming debounced Watcher events through
// a per-path single-flight map, driving each accepted file through filter,
// parse, chunk, embed, and store in order.
package pipeline

import (
	"context"
	"time"

	"github.com/sandy-sachin7/contextd/internal/chunker"
	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
	"github.com/sandy-sachin7/contextd/internal/filter"
	"github.com/sandy-sachin7/contextd/internal/parser"
	"github.com/sandy-sachin7/contextd/internal/store"
)

// Filterer is the narrow slice of *filter.Filter the pipeline depends on.
type Filterer interface {
	ShouldIgnore(path string, isDir bool, size int64, peek []byte) filter.Decision
}

// Extractor is the narrow slice of *parser.Parser the pipeline depends on.
type Extractor interface {
	Parse(ctx context.Context, path string) (parser.ExtractedText, error)
}

// Splitter is the narrow slice of *chunker.Chunker the pipeline depends on.
type Splitter interface {
	Chunk(path string, extracted parser.ExtractedText) []chunker.Chunk
}

// Embedder is the narrow slice of embedder.Embedder the pipeline depends on.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

// Store is the narrow slice of *store.Store the pipeline depends on.
type Store interface {
	GetFile(ctx context.Context, path string) (store.FileRecord, bool, error)
	UpsertFile(ctx context.Context, f store.FileRecord) error
	ReplaceChunks(ctx context.Context, path string, chunks []store.Chunk) error
	DeleteFile(ctx context.Context, path string) error
}

// CacheInvalidator is the narrow slice of *query.Engine the pipeline depends
// on: every committed write invalidates the query cache, per §4.7.
type CacheInvalidator interface {
	InvalidateCache()
}

// Config controls the worker pool and shutdown behavior.
type Config struct {
	Workers       int
	MaxFileSize   int64
	ShutdownGrace time.Duration
	RetryConfig   ctxerrors.RetryConfig
}

// Dependencies bundles everything a Pipeline needs to process one event.
type Dependencies struct {
	Filter   Filterer
	Parser   Extractor
	Chunker  Splitter
	Embedder Embedder
	Store    Store
	Cache    CacheInvalidator
}
