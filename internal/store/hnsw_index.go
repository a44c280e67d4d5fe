package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	sq "github.com/Masterminds/squirrel"
)

// hnswOverfetch is the multiple of k the graph is asked for when a
// predicate is present: the graph itself has no file/mtime
// metadata to filter on, so Search overfetches and filters against the
// files/chunks tables before truncating to k.
const hnswOverfetch = 4

// hnswIndex is the approximate DenseIndex selected by storage.vector_index =
// "hnsw": a pure-Go graph, a drop-in replacement for exactIndex beyond the
// ~10^5 chunk range where a brute-force scan stops being cheap, per §4.6.
type hnswIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	path  string // persistence path, empty means in-memory only
	db    *sql.DB // for predicate filtering only; the graph itself is unaware of file metadata

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64
}

type hnswMetadata struct {
	IDToKey map[string]uint64
	NextKey uint64
}

func newHNSWIndex(persistPath string, db *sql.DB) (*hnswIndex, error) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	idx := &hnswIndex{
		graph:   graph,
		path:    persistPath,
		db:      db,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}
	if persistPath != "" {
		if err := idx.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load hnsw index: %w", err)
		}
	}
	return idx, nil
}

func (h *hnswIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, id := range ids {
		// Embeddings arrive already L2-normalized (§4.5); lazily orphan any
		// prior key rather than deleting from the graph, which coder/hnsw
		// mishandles when the removed node is the last one.
		if oldKey, exists := h.idToKey[id]; exists {
			delete(h.keyToID, oldKey)
			delete(h.idToKey, id)
		}

		key := h.nextKey
		h.nextKey++

		node := hnsw.MakeNode(key, vectors[i])
		h.graph.Add(node)

		h.idToKey[id] = key
		h.keyToID[key] = id
	}
	return h.persistLocked()
}

func (h *hnswIndex) Delete(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range ids {
		if key, exists := h.idToKey[id]; exists {
			delete(h.keyToID, key)
			delete(h.idToKey, id)
		}
	}
	return h.persistLocked()
}

func (h *hnswIndex) Search(ctx context.Context, query []float32, k int, pred Predicates) ([]ScoredChunk, error) {
	h.mu.RLock()
	if h.graph.Len() == 0 {
		h.mu.RUnlock()
		return nil, nil
	}

	fetchK := k
	hasPred := len(pred.FileTypes) > 0 || pred.MTimeFrom > 0 || pred.MTimeTo > 0
	if hasPred {
		fetchK = k * hnswOverfetch
		if fetchK > h.graph.Len() {
			fetchK = h.graph.Len()
		}
	}

	nodes := h.graph.Search(query, fetchK)
	candidates := make([]ScoredChunk, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyToID[node.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		distance := h.graph.Distance(query, node.Value)
		candidates = append(candidates, ScoredChunk{ChunkID: id, Score: 1 - distance/2})
	}
	h.mu.RUnlock()

	if !hasPred {
		return candidates, nil
	}

	allowed, err := h.allowedByPredicate(ctx, candidates, pred)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredChunk, 0, k)
	for _, c := range candidates {
		if !allowed[c.ChunkID] {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// allowedByPredicate is the graph index's stand-in for SQL predicate
// push-down: it asks the files/chunks tables which of the candidate IDs
// satisfy pred, since the in-memory graph carries no file metadata itself.
func (h *hnswIndex) allowedByPredicate(ctx context.Context, candidates []ScoredChunk, pred Predicates) (map[string]bool, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	qb := sq.Select("chunks.id").
		From("chunks").
		Join("files ON files.path = chunks.file_path").
		Where(sq.Eq{"chunks.id": ids})
	qb = applyPredicateWhere(qb, pred)

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hnsw predicate filter: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("hnsw predicate filter: %w", err)
	}
	defer rows.Close()

	allowed := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		allowed[id] = true
	}
	return allowed, rows.Err()
}

func (h *hnswIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToKey)
}

func (h *hnswIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistLocked()
}

func (h *hnswIndex) persistLocked() error {
	if h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create hnsw index dir: %w", err)
	}

	tmp := h.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create hnsw index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export hnsw graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return err
	}

	return h.saveMetadata()
}

func (h *hnswIndex) saveMetadata() error {
	metaPath := h.path + ".meta"
	tmp := metaPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create hnsw metadata file: %w", err)
	}
	meta := hnswMetadata{IDToKey: h.idToKey, NextKey: h.nextKey}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode hnsw metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, metaPath)
}

func (h *hnswIndex) load() error {
	metaPath := h.path + ".meta"
	mf, err := os.Open(metaPath)
	if err != nil {
		return err
	}
	defer mf.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}
	h.idToKey = meta.IDToKey
	h.nextKey = meta.NextKey
	h.keyToID = make(map[uint64]string, len(meta.IDToKey))
	for id, key := range meta.IDToKey {
		h.keyToID[key] = id
	}

	gf, err := os.Open(h.path)
	if err != nil {
		return err
	}
	defer gf.Close()

	return h.graph.Import(bufio.NewReader(gf))
}

var _ DenseIndex = (*hnswIndex)(nil)
