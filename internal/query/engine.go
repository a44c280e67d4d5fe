package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// Config controls the Query Engine's cache and fusion behavior, bound from
// the daemon's [search] config table.
type Config struct {
	EnableCache  bool
	CacheSize    int
	CacheTTL     time.Duration
	HybridWeight float32
}

// Engine is C7: normalizes a query, consults the cache, fans out to the
// Store's dense and lexical search, fuses the two result sets, and caches
// the fused result.
type Engine struct {
	searcher Searcher
	embedder Embedder
	cache    *resultCache
	weight   float32
}

// New builds a Query Engine over searcher (normally *store.Store) and
// embedder (normally the daemon's embedder.Embedder).
func New(searcher Searcher, embedder Embedder, cfg Config) *Engine {
	e := &Engine{
		searcher: searcher,
		embedder: embedder,
		weight:   cfg.HybridWeight,
	}
	if cfg.EnableCache {
		e.cache = newResultCache(cfg.CacheSize, cfg.CacheTTL)
	}
	return e
}

// Search runs §4.7's full algorithm: normalize, cache lookup, embed, dual
// fan-out at k*2, hybrid fusion, top-k with min_score filter, cache insert.
func (e *Engine) Search(ctx context.Context, req Request) ([]Hit, error) {
	norm := normalize(req.Query)
	key := fingerprint(norm, req.Predicates, req.Limit)

	if e.cache != nil {
		if hits, ok := e.cache.get(key); ok {
			return hits, nil
		}
	}

	vector, err := e.embedder.EmbedOne(ctx, norm)
	if err != nil {
		return nil, err
	}

	fetchK := req.Limit * 2
	if fetchK < 1 {
		fetchK = 1
	}

	// Predicate push-down (file type, mtime) applies to both fan-outs; the
	// min_score filter is deferred until after fusion, since a chunk's raw
	// per-index score isn't the score the caller asked to filter on.
	searchPred := req.Predicates
	searchPred.MinScore = 0

	var dense, lexical []store.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = e.searcher.Query(gctx, vector, fetchK, searchPred)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = e.searcher.QueryLexical(gctx, norm, fetchK, searchPred)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := fuse(dense, lexical, e.weight)
	hits = filterMinScore(hits, req.Predicates.MinScore)
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	if e.cache != nil {
		e.cache.put(key, hits)
	}
	return hits, nil
}

// InvalidateCache evicts every cached entry. The pipeline calls this after
// every committed ReplaceChunks/DeleteFile, since §4.7 prizes correctness
// over cache hit rate.
func (e *Engine) InvalidateCache() {
	if e.cache == nil {
		return
	}
	e.cache.invalidateAll()
}

func filterMinScore(hits []Hit, minScore float32) []Hit {
	if minScore <= 0 {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	return out
}
