package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// fakeSearcher lets tests script exactly what the dense and lexical fan-outs
// return, independent of a real SQLite/sqlite-vec store.
type fakeSearcher struct {
	dense       []store.Result
	lexical     []store.Result
	denseCalls  int
	lexicalCalls int
}

func (f *fakeSearcher) Query(ctx context.Context, vector []float32, k int, pred store.Predicates) ([]store.Result, error) {
	f.denseCalls++
	return filterByPred(f.dense, pred), nil
}

func (f *fakeSearcher) QueryLexical(ctx context.Context, q string, k int, pred store.Predicates) ([]store.Result, error) {
	f.lexicalCalls++
	return filterByPred(f.lexical, pred), nil
}

func filterByPred(results []store.Result, pred store.Predicates) []store.Result {
	if len(pred.FileTypes) == 0 {
		return results
	}
	var out []store.Result
	for _, r := range results {
		for _, t := range pred.FileTypes {
			if hasSuffix(r.FilePath, t) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

// TestSearch_BasicSemanticHit grounds scenario 1.
func TestSearch_BasicSemanticHit(t *testing.T) {
	searcher := &fakeSearcher{
		dense: []store.Result{
			{ChunkID: "auth.md#0", FilePath: "notes/auth.md", Text: "The authentication subsystem issues JWT tokens", Score: 0.9},
		},
	}
	e := New(searcher, fakeEmbedder{}, Config{HybridWeight: 0.7})

	hits, err := e.Search(context.Background(), Request{Query: "how does authentication work", Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "authentication subsystem")
	assert.GreaterOrEqual(t, hits[0].Score, float32(0.4))
	assert.Equal(t, "notes/auth.md", hits[0].Path)
}

// TestSearch_HybridBeatsPureSemantic grounds scenario 2: a literal lexical
// match for "nonce" outranks a merely-related semantic hit once lexical and
// semantic scores are fused at the default weight.
func TestSearch_HybridBeatsPureSemantic(t *testing.T) {
	searcher := &fakeSearcher{
		// Pure semantic ranking alone would put a.md first (sem score 0.85
		// normalizes to 1.0 vs b.md's 0.933); lexical fusion flips the order.
		dense: []store.Result{
			{ChunkID: "a#0", FilePath: "a.md", Text: "cryptographic nonce generation", Score: 0.85},
			{ChunkID: "b#0", FilePath: "b.md", Text: "nonce", Score: 0.80},
			{ChunkID: "c#0", FilePath: "c.md", Text: "unrelated", Score: 0.10},
		},
		lexical: []store.Result{
			{ChunkID: "b#0", FilePath: "b.md", Text: "nonce", Score: 5.0},
		},
	}
	e := New(searcher, fakeEmbedder{}, Config{HybridWeight: 0.7})

	hits, err := e.Search(context.Background(), Request{Query: "nonce", Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b.md", hits[0].Path)
}

// TestFuse_MinMaxNormalizationDirectly isolates the fusion formula itself
// against the same scores used above, independent of caching/embedding.
func TestFuse_MinMaxNormalizationDirectly(t *testing.T) {
	dense := []store.Result{
		{ChunkID: "a", FilePath: "a.md", Score: 0.85},
		{ChunkID: "b", FilePath: "b.md", Score: 0.80},
		{ChunkID: "c", FilePath: "c.md", Score: 0.10},
	}
	lexical := []store.Result{{ChunkID: "b", FilePath: "b.md", Score: 5.0}}

	hits := fuse(dense, lexical, 0.7)
	require.Len(t, hits, 3)
	assert.Equal(t, "b.md", hits[0].Path)
}

// TestSearch_PredicatesAreEnforced grounds scenario 6.
func TestSearch_PredicatesAreEnforced(t *testing.T) {
	searcher := &fakeSearcher{
		dense: []store.Result{
			{ChunkID: "r#0", FilePath: "x.rs", Text: "x", Score: 0.5},
			{ChunkID: "m#0", FilePath: "x.md", Text: "x", Score: 0.6},
		},
	}
	e := New(searcher, fakeEmbedder{}, Config{HybridWeight: 0.7})

	hits, err := e.Search(context.Background(), Request{
		Query: "x", Limit: 100,
		Predicates: store.Predicates{FileTypes: []string{".rs"}},
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, ".rs", h.Path[len(h.Path)-3:])
	}
}

// TestSearch_CacheHitSkipsSearcher asserts a repeated identical query never
// reaches the dense/lexical fan-out, per §4.7 step 2.
func TestSearch_CacheHitSkipsSearcher(t *testing.T) {
	searcher := &fakeSearcher{
		dense: []store.Result{{ChunkID: "a#0", FilePath: "a.md", Text: "hello", Score: 0.5}},
	}
	e := New(searcher, fakeEmbedder{}, Config{EnableCache: true, CacheSize: 100, CacheTTL: time.Minute, HybridWeight: 0.7})

	_, err := e.Search(context.Background(), Request{Query: "hello", Limit: 1})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), Request{Query: "hello", Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.denseCalls)
	assert.Equal(t, 1, searcher.lexicalCalls)
}

// TestInvalidateCache_ForcesRefetch asserts a write-triggered invalidation
// makes the next identical query reach the searcher again.
func TestInvalidateCache_ForcesRefetch(t *testing.T) {
	searcher := &fakeSearcher{
		dense: []store.Result{{ChunkID: "a#0", FilePath: "a.md", Text: "hello", Score: 0.5}},
	}
	e := New(searcher, fakeEmbedder{}, Config{EnableCache: true, CacheSize: 100, CacheTTL: time.Minute, HybridWeight: 0.7})

	_, err := e.Search(context.Background(), Request{Query: "hello", Limit: 1})
	require.NoError(t, err)
	e.InvalidateCache()
	_, err = e.Search(context.Background(), Request{Query: "hello", Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, searcher.denseCalls)
}

func TestSearch_MinScoreFiltersAfterFusion(t *testing.T) {
	searcher := &fakeSearcher{
		dense: []store.Result{
			{ChunkID: "a#0", FilePath: "a.md", Text: "weak", Score: 0.1},
			{ChunkID: "b#0", FilePath: "b.md", Text: "strong", Score: 0.9},
		},
	}
	e := New(searcher, fakeEmbedder{}, Config{HybridWeight: 1.0})

	hits, err := e.Search(context.Background(), Request{
		Query: "x", Limit: 10, Predicates: store.Predicates{MinScore: 1.5},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
