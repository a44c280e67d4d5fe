// Package store implements C6: the single on-disk SQLite file holding file
// records, chunks, their embeddings, and the FTS5 lexical mirror, plus the
// dense vector index (exact scan by default, HNSW as a drop-in replacement).
package store

import (
	"context"
	"time"
)

// FileState mirrors a File record's indexing state per §3.
type FileState string

const (
	FileStatePending FileState = "pending"
	FileStateIndexed FileState = "indexed"
	FileStateFailed  FileState = "failed"
)

// FileRecord is one row of the files table.
type FileRecord struct {
	Path    string
	Mtime   int64
	Size    int64
	Hash    string
	FileExt string
	State   FileState
}

// Chunk is one semantic unit of a file, carrying its embedding inline since
// the two are one-to-one and always written together by ReplaceChunks.
type Chunk struct {
	ID          string
	FilePath    string
	Ordinal     int
	StartOffset int
	EndOffset   int
	Kind        string
	Symbol      string
	HeadingPath string
	Page        int
	Text        string

	Embedding  []float32
	ModelName  string
	ModelDim   int
	Stale      bool
}

// Predicates narrows a query by file type, modification window, and score
// floor, pushed down into the SQL before scoring where possible.
type Predicates struct {
	FileTypes []string
	MTimeFrom int64
	MTimeTo   int64 // 0 means unbounded
	MinScore  float32
}

// Result is one ranked hit returned by Query or QueryLexical.
type Result struct {
	ChunkID     string
	FilePath    string
	Text        string
	Score       float32
	Mtime       int64
	Kind        string
	Symbol      string
	HeadingPath string
}

// Stats summarizes the store for the /status endpoint.
type Stats struct {
	FileCount  int
	ChunkCount int
	SizeBytes  int64
}

// ScoredChunk is one hit returned by a DenseIndex search, before the store
// joins it back against chunk metadata.
type ScoredChunk struct {
	ChunkID string
	Score   float32
}

// DenseIndex is the vector search backend. The default implementation is an
// exact brute-force scan (sqlite-vec's vec0); storage.vector_index = "hnsw"
// selects a pure-Go approximate index instead, per §4.6.
type DenseIndex interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Delete(ctx context.Context, ids []string) error
	// Search returns the top-k chunks by similarity. pred is pushed down
	// ahead of scoring where the index's storage allows it (§4.6); an index
	// with no predicate-capable storage of its own may instead apply it as
	// a post-score filter before truncating to k.
	Search(ctx context.Context, query []float32, k int, pred Predicates) ([]ScoredChunk, error)
	Count() int
	Close() error
}

// now is a package-level clock hook; nothing in the package, tests
// included, calls or overrides it at present.
var now = time.Now
