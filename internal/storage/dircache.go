package storage

import (
	"sync"
	"time"

	"github.com/stardustai/dataset-viewer/internal/metrics"
)

// DirCache is a path-keyed directory listing cache with TTL expiry and a
// max-entry bound evicted oldest-access first. It is owned by the caller
// and injected into the Client; storage logic never touches it except
// through Get/Put/Clear.
type DirCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]*dirCacheEntry
}

type dirCacheEntry struct {
	result     *ListResult
	fetchedAt  time.Time
	lastAccess time.Time
}

// NewDirCache creates a directory cache. ttl <= 0 disables expiry;
// maxEntries <= 0 disables the size bound.
func NewDirCache(ttl time.Duration, maxEntries int) *DirCache {
	return &DirCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*dirCacheEntry),
	}
}

// Get returns a cached listing for path, or nil.
func (c *DirCache) Get(path string) *ListResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		metrics.RecordDirCache(false)
		return nil
	}
	if c.ttl > 0 && time.Since(e.fetchedAt) > c.ttl {
		delete(c.entries, path)
		metrics.RecordDirCache(false)
		return nil
	}
	e.lastAccess = time.Now()
	metrics.RecordDirCache(true)
	return e.result
}

// Put stores a listing for path, evicting the oldest-accessed entries
// when the bound is exceeded.
func (c *DirCache) Put(path string, result *ListResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[path] = &dirCacheEntry{result: result, fetchedAt: now, lastAccess: now}

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		if !c.evictOldest() {
			break
		}
	}
}

// Invalidate drops the entry for path.
func (c *DirCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Clear drops all entries.
func (c *DirCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*dirCacheEntry)
}

// Len returns the number of cached listings.
func (c *DirCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently accessed entry.
// Must be called with the lock held.
func (c *DirCache) evictOldest() bool {
	var oldestKey string
	var oldest *dirCacheEntry

	for k, e := range c.entries {
		if oldest == nil || e.lastAccess.Before(oldest.lastAccess) {
			oldest = e
			oldestKey = k
		}
	}
	if oldest == nil {
		return false
	}
	delete(c.entries, oldestKey)
	return true
}
