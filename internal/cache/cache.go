// Package cache provides a bounded, time-limited cache of search results.
//
// Eviction is deliberately FIFO, not LRU: when the cache is full, the entry
// inserted earliest is dropped regardless of how recently it was read. This
// reproduces the behavior thresholds and tests depend on; see DESIGN.md
// before "upgrading" it to recency-based eviction.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/hyperjump/kura/internal/models"
)

// SearchCache caches query results keyed by (knowledge base, query vector, k).
// A hit requires exact vector equality; the key is a hash over the exact
// float bits, with no tolerance.
type SearchCache struct {
	maxSize int
	ttl     time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	order   []string // insertion order, oldest first
	hits    uint64
	misses  uint64

	now func() time.Time // test hook
}

type entry struct {
	results   []models.RAGResult
	createdAt time.Time
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
func New(maxSize int, ttl time.Duration) *SearchCache {
	return &SearchCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*entry),
		order:   make([]string, 0, maxSize),
		now:     time.Now,
	}
}

// key fingerprints (kb, query vector, k) deterministically.
func key(kb string, vec []float32, k int) string {
	h := sha256.New()
	h.Write([]byte(kb))
	h.Write([]byte{0})
	var buf [4]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(k))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached results for (kb, vec, k), or false on a miss.
// Entries older than the TTL count as misses and are evicted on the spot.
func (c *SearchCache) Get(kb string, vec []float32, k int) ([]models.RAGResult, bool) {
	ck := key(kb, vec, k)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ck]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, ck)
		c.dropFromOrder(ck)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.results, true
}

// Put stores results for (kb, vec, k). When the cache is full the
// earliest-inserted entry is evicted. Re-putting an existing key refreshes the
// value and timestamp but keeps its original insertion position.
func (c *SearchCache) Put(kb string, vec []float32, k int, results []models.RAGResult) {
	ck := key(kb, vec, k)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[ck]; ok {
		e.results = results
		e.createdAt = c.now()
		return
	}
	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[ck] = &entry{results: results, createdAt: c.now()}
	c.order = append(c.order, ck)
}

func (c *SearchCache) dropFromOrder(ck string) {
	for i, k := range c.order {
		if k == ck {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Len returns the number of live entries.
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries. Counters are preserved.
func (c *SearchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = c.order[:0]
}

// Stats returns the hit and miss counters.
func (c *SearchCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (c *SearchCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
