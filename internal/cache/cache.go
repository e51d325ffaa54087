// Package cache memoizes evaluator scores by quantized configuration key.
//
// Entries are never evicted and live for the lifetime of the process. The
// annealer is the only writer; the control channel reads Stats concurrently.
package cache

import (
	"sync"

	"github.com/inantubek/rmnist/pkg/models"
)

// Stats is a point-in-time view of cache usage
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache maps configuration keys to scores
type Cache struct {
	keyer Keyer

	mu      sync.RWMutex
	entries map[Key]models.Score
	hits    int64
	misses  int64
}

// New creates an empty cache with the given quantization resolution
func New(quantum float64) *Cache {
	return &Cache{
		keyer:   NewKeyer(quantum),
		entries: make(map[Key]models.Score),
	}
}

// KeyOf returns the cache key for config
func (c *Cache) KeyOf(config models.Configuration) Key {
	return c.keyer.KeyOf(config)
}

// Lookup returns the cached score for config and records a hit or miss.
func (c *Cache) Lookup(config models.Configuration) (models.Score, bool) {
	key := c.keyer.KeyOf(config)

	c.mu.Lock()
	defer c.mu.Unlock()
	score, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return score, ok
}

// Contains reports whether config has a cached score without touching the hit counters.
func (c *Cache) Contains(config models.Configuration) bool {
	key := c.keyer.KeyOf(config)

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Insert stores score for config. The first write for a key wins; Insert
// returns false and leaves the entry untouched if the key is already present.
func (c *Cache) Insert(config models.Configuration, score models.Score) bool {
	key := c.keyer.KeyOf(config)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return false
	}
	c.entries[key] = score
	return true
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns entry count and hit/miss counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
