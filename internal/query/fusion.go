package query

import (
	"sort"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// fusionCandidate accumulates a chunk's raw semantic and lexical scores
// across both result sets before either is normalized.
type fusionCandidate struct {
	result  store.Result
	semRaw  float32
	lexRaw  float32
	hasSem  bool
	hasLex  bool
}

// fuse combines dense and lexical result sets per §4.7 step 5: each score is
// min-max normalized within its own result set, then combined as
// w*sem + (1-w)*lex; a candidate missing from one set contributes 0 for
// that component. Structurally grounded on the teacher's map-keyed,
// rank-accumulating fusion (pkg/searcher/fusion.go), with RRF's rank-based
// score replaced by the spec's min-max-normalized weighted sum.
func fuse(dense, lexical []store.Result, weight float32) []Hit {
	candidates := make(map[string]*fusionCandidate)

	for _, r := range dense {
		candidates[r.ChunkID] = &fusionCandidate{result: r, semRaw: r.Score, hasSem: true}
	}
	for _, r := range lexical {
		if c, ok := candidates[r.ChunkID]; ok {
			c.lexRaw = r.Score
			c.hasLex = true
		} else {
			candidates[r.ChunkID] = &fusionCandidate{result: r, lexRaw: r.Score, hasLex: true}
		}
	}

	semMin, semMax := minMax(dense)
	lexMin, lexMax := minMax(lexical)

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		var sem, lex float32
		if c.hasSem {
			sem = normalizeScore(c.semRaw, semMin, semMax)
		}
		if c.hasLex {
			lex = normalizeScore(c.lexRaw, lexMin, lexMax)
		}
		final := weight*sem + (1-weight)*lex

		hits = append(hits, Hit{
			Path:        c.result.FilePath,
			Text:        c.result.Text,
			Score:       final,
			Mtime:       c.result.Mtime,
			Kind:        c.result.Kind,
			Symbol:      c.result.Symbol,
			HeadingPath: c.result.HeadingPath,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Mtime > hits[j].Mtime // ties broken by mtime descending
	})
	return hits
}

func minMax(results []store.Result) (min, max float32) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

// normalizeScore min-max scales v into [0,1]. A zero-width range (every
// score tied, or a single-element set) maps to 1 rather than dividing by
// zero, since a tie shouldn't be penalized relative to an untied set.
func normalizeScore(v, min, max float32) float32 {
	if max == min {
		return 1
	}
	return (v - min) / (max - min)
}
