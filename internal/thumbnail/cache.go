package thumbnail

import (
	"container/list"
	"os"
	"sync"
	"time"

	"media-browser/internal/filesystem"
	"media-browser/internal/logging"
	"media-browser/internal/metrics"
)

// memoryEvictTarget is the fraction of the memory bound eviction drains
// to. Evicting below the bound by a margin avoids an eviction per Set
// when the cache hovers at capacity.
const memoryEvictTarget = 0.8

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"maxSize"`
	HitRate     float64 `json:"hitRate"`
	MemoryUsage int64   `json:"memoryUsage"`
}

type cacheEntry struct {
	key        string
	path       string
	payload    string
	fileSize   int64
	modTime    time.Time
	cachedAt   time.Time
	lastAccess time.Time
}

// Cache is a bounded in-memory LRU store for encoded thumbnail payloads.
// Entries are invalidated when the source file disappears or its
// modification time moves past the one recorded at insertion.
//
// All exported methods are safe for concurrent use. The payload memory
// estimate is the encoded payload length, which for base64 data URLs
// overestimates the decoded size and so errs on the safe side.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front = most recently used
	memoryUsage int64
	hits        uint64
	misses      uint64

	maxEntries int
	maxMemory  int64
	ttl        time.Duration

	statFn  func(string) (os.FileInfo, error)
	onEvict func(key, path string)
}

// NewCache creates a cache bounded by entry count and payload memory.
// Entries older than ttl are removed by Cleanup regardless of use.
func NewCache(maxEntries int, maxMemoryBytes int64, ttl time.Duration) *Cache {
	retry := filesystem.DefaultRetryConfig()
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		maxMemory:  maxMemoryBytes,
		ttl:        ttl,
		statFn: func(path string) (os.FileInfo, error) {
			return filesystem.Stat(path, retry)
		},
	}
}

// SetEvictionCallback registers fn to be called for every entry removed
// from the cache, whatever the reason. fn runs with the cache lock held
// and must not call back into the cache.
func (c *Cache) SetEvictionCallback(fn func(key, path string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the payload for key if present and still fresh. A missing
// source file or a modification time newer than the recorded one purges
// the entry and counts as a miss.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		return "", false
	}
	path := elem.Value.(*cacheEntry).path
	c.mu.Unlock()

	// Stat outside the lock; it may touch a slow network mount.
	info, statErr := c.statFn(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok = c.entries[key]
	if !ok {
		// Removed while we were stating.
		c.misses++
		metrics.CacheMissesTotal.Inc()
		return "", false
	}

	ent := elem.Value.(*cacheEntry)
	if statErr != nil || info.ModTime().After(ent.modTime) {
		c.removeElement(elem, "stale")
		c.misses++
		metrics.CacheMissesTotal.Inc()
		return "", false
	}

	ent.lastAccess = time.Now()
	c.order.MoveToFront(elem)
	c.hits++
	metrics.CacheHitsTotal.Inc()
	return ent.payload, true
}

// Set stores payload under key, recording the source file's current size
// and modification time for later staleness checks. It reports whether
// the entry was stored: payloads larger than the whole memory bound and
// sources that cannot be stated are declined.
func (c *Cache) Set(key, path, payload string) bool {
	size := int64(len(payload))
	if size > c.maxMemory {
		logging.Warn("Thumbnail payload for %s (%d bytes) exceeds cache memory bound, not caching", path, size)
		return false
	}

	info, err := c.statFn(path)
	if err != nil {
		// The source vanished between generation and caching; an entry
		// for it would be purged on first Get anyway.
		logging.Debug("Not caching thumbnail for %s: %v", path, err)
		return false
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*cacheEntry)
		c.memoryUsage += size - int64(len(ent.payload))
		ent.payload = payload
		ent.fileSize = info.Size()
		ent.modTime = info.ModTime()
		ent.lastAccess = now
		c.order.MoveToFront(elem)
	} else {
		ent := &cacheEntry{
			key:        key,
			path:       path,
			payload:    payload,
			fileSize:   info.Size(),
			modTime:    info.ModTime(),
			cachedAt:   now,
			lastAccess: now,
		}
		c.entries[key] = c.order.PushFront(ent)
		c.memoryUsage += size
	}

	c.enforceBounds()
	c.updateGauges()
	return true
}

// enforceBounds evicts least-recently-used entries until both the memory
// and entry-count bounds hold. Must be called with the lock held.
func (c *Cache) enforceBounds() {
	if c.memoryUsage > c.maxMemory {
		target := int64(float64(c.maxMemory) * memoryEvictTarget)
		for c.memoryUsage > target && c.order.Len() > 1 {
			c.removeElement(c.order.Back(), "memory")
		}
	}

	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back(), "lru")
	}
}

// Has reports whether key is present, without a staleness check and
// without touching the hit/miss counters or LRU order.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Delete removes key from the cache. Returns true if an entry was removed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem, "explicit")
	c.updateGauges()
	return true
}

// Invalidate applies the same staleness check as Get but counts neither
// a hit nor a miss. Returns true if the entry was stale and removed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	path := elem.Value.(*cacheEntry).path
	c.mu.Unlock()

	info, statErr := c.statFn(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok = c.entries[key]
	if !ok {
		return false
	}

	ent := elem.Value.(*cacheEntry)
	if statErr != nil || info.ModTime().After(ent.modTime) {
		c.removeElement(elem, "stale")
		c.updateGauges()
		return true
	}
	return false
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.Len() > 0 {
		c.removeElement(c.order.Back(), "explicit")
	}
	c.updateGauges()
}

// Cleanup removes entries whose age since insertion exceeds the TTL,
// regardless of how recently they were used. Safe to run concurrently
// with other operations; it is invoked by the manager's background sweep.
// Returns the number of entries removed.
func (c *Cache) Cleanup() int {
	cutoff := time.Now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry).cachedAt.Before(cutoff) {
			c.removeElement(elem, "ttl")
			removed++
		}
		elem = prev
	}

	if removed > 0 {
		logging.Debug("Thumbnail cache TTL sweep removed %d entries", removed)
		c.updateGauges()
	}
	return removed
}

// Stats returns a snapshot of cache counters. The hit rate is 0 before
// any requests have been made.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:        c.order.Len(),
		MaxSize:     c.maxEntries,
		HitRate:     hitRate,
		MemoryUsage: c.memoryUsage,
	}
}

// removeElement unlinks an entry and updates accounting. Must be called
// with the lock held.
func (c *Cache) removeElement(elem *list.Element, reason string) {
	ent := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, ent.key)
	c.memoryUsage -= int64(len(ent.payload))
	metrics.CacheEvictionsTotal.WithLabelValues(reason).Inc()

	if c.onEvict != nil {
		c.onEvict(ent.key, ent.path)
	}
}

// updateGauges refreshes the exported size gauges. Must be called with
// the lock held.
func (c *Cache) updateGauges() {
	metrics.CacheEntries.Set(float64(c.order.Len()))
	metrics.CacheMemoryBytes.Set(float64(c.memoryUsage))
}
