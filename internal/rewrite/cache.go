package rewrite

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

type cacheEntry struct {
	query     string
	rewritten bool
	createdAt time.Time
}

// rewriteCache short-circuits repeat queries. Writes are idempotent:
// concurrent identical requests may both compute and redundantly store the
// same value, last writer wins.
type rewriteCache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	maxSize int
	ttl     time.Duration
}

func newRewriteCache(maxSize int, ttl time.Duration) *rewriteCache {
	if maxSize <= 0 {
		maxSize = 512
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &rewriteCache{
		entries: make(map[uint64]cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(query string, history []domain.ChatTurn, maxTurns int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(query))
	for _, turn := range recentTurns(history, maxTurns) {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(turn.Role))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(turn.Text))
	}
	return h.Sum64()
}

func (c *rewriteCache) get(key uint64) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *rewriteCache) put(key uint64, query string, rewritten bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{query: query, rewritten: rewritten, createdAt: time.Now()}
}

func (c *rewriteCache) evictOldestLocked() {
	var oldestKey uint64
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *rewriteCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
