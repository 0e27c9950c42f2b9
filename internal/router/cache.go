package router

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry stamps a cached decision with its insertion time so Get can
// enforce the TTL. Grounded on internal/embed's CachedEmbedder wrap of
// hashicorp/golang-lru.
type cacheEntry struct {
	decision  Decision
	timestamp time.Time
}

// DecisionCache is a bounded, TTL'd LRU cache of routing decisions keyed
// by (tool, argument-hash).
type DecisionCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

// NewDecisionCache creates a decision cache of the given capacity and TTL.
func NewDecisionCache(size int, ttl time.Duration) *DecisionCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, cacheEntry](size)
	return &DecisionCache{cache: c, ttl: ttl}
}

// Get returns the cached decision for key if present and not expired. A
// hit reinserts the entry at the MRU position (lru.Cache.Get already does
// this). An expired entry is treated as a miss and evicted.
func (c *DecisionCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return Decision{}, false
	}
	if time.Since(entry.timestamp) > c.ttl {
		c.cache.Remove(key)
		return Decision{}, false
	}
	return entry.decision, true
}

// Set inserts or updates the cached decision for key, stamping the
// current time. At capacity, the LRU library evicts the least-recently-used
// entry.
func (c *DecisionCache) Set(key string, decision Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, cacheEntry{decision: decision, timestamp: time.Now()})
}

// Len returns the current number of cached entries.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Purge drops every cached decision. Called when ToolWeights change
// underneath the router, since a cached Decision was scored against
// the old weights and would otherwise survive until its TTL expires.
func (c *DecisionCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
