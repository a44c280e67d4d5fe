package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sandy-sachin7/contextd/internal/store"
)

// cacheEntry pairs a cached result set with the time it was inserted, so a
// read can check it against the configured TTL, per §4.7's cache policy.
type cacheEntry struct {
	hits      []Hit
	insertedAt time.Time
}

// resultCache is the query cache: an LRU keyed by the fingerprint of
// (normalized query, predicates, limit), evicted wholesale on any write to
// the store, since §4.7 prizes correctness over hit rate.
type resultCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, cacheEntry](size)
	return &resultCache{cache: c, ttl: ttl}
}

// fingerprint hashes the normalized query, predicates, and limit into one
// cache key, matching the teacher's sha256-hex-of-combined-fields idiom.
func fingerprint(normalizedQuery string, pred store.Predicates, limit int) string {
	types := append([]string(nil), pred.FileTypes...)
	sort.Strings(types)

	combined := fmt.Sprintf("%s\x00%v\x00%d\x00%d\x00%f\x00%d",
		normalizedQuery, types, pred.MTimeFrom, pred.MTimeTo, pred.MinScore, limit)
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

func (c *resultCache) get(key string) ([]Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.insertedAt) > c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.hits, true
}

func (c *resultCache) put(key string, hits []Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, cacheEntry{hits: hits, insertedAt: time.Now()})
}

// invalidateAll evicts every cached entry; called after any ReplaceChunks or
// DeleteFile commit so a stale result is never served.
func (c *resultCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
