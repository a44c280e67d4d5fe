package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, vectorIndex string) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{
		DBPath:      filepath.Join(dir, "contextd.db"),
		Dimensions:  4,
		VectorIndex: vectorIndex,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitVec(major int, dims int) []float32 {
	v := make([]float32, dims)
	v[major] = 1
	return v
}

// TestReplaceChunks_RoundTrip grounds scenario 1: a basic semantic hit after
// indexing a file produces a chunk back out of Query.
func TestReplaceChunks_RoundTrip(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{
		Path: "a.md", Mtime: 100, Size: 10, Hash: "h1", FileExt: ".md", State: FileStateIndexed,
	}))

	chunks := []Chunk{{
		ID: "a.md#0", FilePath: "a.md", Ordinal: 0, StartOffset: 0, EndOffset: 5,
		Kind: "paragraph", Text: "hello world", Embedding: unitVec(0, 4),
		ModelName: "all-minilm-l6-v2", ModelDim: 4,
	}}
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", chunks))

	results, err := s.Query(ctx, unitVec(0, 4), 5, Predicates{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.md#0", results[0].ChunkID)
	require.Equal(t, "hello world", results[0].Text)
}

// TestReplaceChunks_IsAtomicPerFile asserts that replacing one file's chunks
// never disturbs another file's chunks, grounding the per-path delete-then-
// insert transaction.
func TestReplaceChunks_IsAtomicPerFile(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	for _, p := range []string{"a.md", "b.md"} {
		require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: p, FileExt: ".md", State: FileStateIndexed}))
		require.NoError(t, s.ReplaceChunks(ctx, p, []Chunk{{
			ID: p + "#0", FilePath: p, Text: "content of " + p, Embedding: unitVec(0, 4),
		}}))
	}

	// Replacing a.md with zero chunks must not touch b.md's chunk.
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", nil))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE file_path = ?`, "a.md").Scan(&count))
	require.Equal(t, 0, count)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE file_path = ?`, "b.md").Scan(&count))
	require.Equal(t, 1, count)
}

// TestDeleteFile_Cascades asserts chunks disappear from both the relational
// table and the dense index once their owning file is deleted.
func TestDeleteFile_Cascades(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "a.md", FileExt: ".md"}))
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", []Chunk{{
		ID: "a.md#0", FilePath: "a.md", Text: "hello", Embedding: unitVec(0, 4),
	}}))

	require.NoError(t, s.DeleteFile(ctx, "a.md"))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count))
	require.Equal(t, 0, count)
	require.Equal(t, 0, s.dense.Count())
}

// TestQuery_PredicatesFilterByFileTypeAndMinScore grounds scenario 6: query
// predicate correctness.
func TestQuery_PredicatesFilterByFileTypeAndMinScore(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "a.md", FileExt: ".md", Mtime: 1000}))
	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "b.rs", FileExt: ".rs", Mtime: 2000}))
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", []Chunk{{
		ID: "a.md#0", FilePath: "a.md", Text: "markdown chunk", Embedding: unitVec(0, 4),
	}}))
	require.NoError(t, s.ReplaceChunks(ctx, "b.rs", []Chunk{{
		ID: "b.rs#0", FilePath: "b.rs", Text: "rust chunk", Embedding: unitVec(0, 4),
	}}))

	results, err := s.Query(ctx, unitVec(0, 4), 5, Predicates{FileTypes: []string{".rs"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b.rs#0", results[0].ChunkID)

	results, err = s.Query(ctx, unitVec(0, 4), 5, Predicates{MinScore: 2})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestQueryLexical_MatchesOnText(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "a.md", FileExt: ".md"}))
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", []Chunk{{
		ID: "a.md#0", FilePath: "a.md", Text: "the quick brown fox",
	}}))

	results, err := s.QueryLexical(ctx, "quick", 5, Predicates{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.md#0", results[0].ChunkID)
}

func TestStats_ReportsCounts(t *testing.T) {
	s := openTestStore(t, "exact")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "a.md", FileExt: ".md"}))
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", []Chunk{
		{ID: "a.md#0", FilePath: "a.md", Text: "one"},
		{ID: "a.md#1", FilePath: "a.md", Text: "two"},
	}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.FileCount)
	require.Equal(t, 2, st.ChunkCount)
}

// TestHNSWIndex_SelectableAsDropInReplacement grounds §4.6's requirement
// that the approximate index preserve the same interface as the exact scan.
func TestHNSWIndex_SelectableAsDropInReplacement(t *testing.T) {
	s := openTestStore(t, "hnsw")
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileRecord{Path: "a.md", FileExt: ".md"}))
	require.NoError(t, s.ReplaceChunks(ctx, "a.md", []Chunk{{
		ID: "a.md#0", FilePath: "a.md", Text: "hello", Embedding: unitVec(0, 4),
	}}))

	results, err := s.Query(ctx, unitVec(0, 4), 5, Predicates{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.md#0", results[0].ChunkID)
}

func TestOpen_SecondInstanceFailsLockAcquisition(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DBPath: filepath.Join(dir, "contextd.db"), Dimensions: 4}

	first, err := Open(cfg)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(cfg)
	require.Error(t, err)
}
