package riskmap

import (
	"errors"
	"sync"
)

// errBuildAborted is seen by callers waiting on a build that panicked.
var errBuildAborted = errors.New("surface build aborted")

// cacheKey identifies a surface by table content and georeference.
type cacheKey struct {
	fingerprint string
	geo         Georeference
}

// cacheEntry is one surface, possibly still being built. ready is closed
// once surface and err are set.
type cacheEntry struct {
	ready   chan struct{}
	surface *Surface
	err     error
}

// SurfaceCache memoizes grid construction, which is the only expensive
// stage. Entries are never evicted; a new entry appears only when a table
// with different content (or a different georeference) is loaded. Builds run
// outside the cache lock: callers asking for the same key wait for the one
// build in flight, other keys and Stats are not held up.
type SurfaceCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	hits    int
	misses  int
}

// NewSurfaceCache returns an empty cache.
func NewSurfaceCache() *SurfaceCache {
	return &SurfaceCache{entries: make(map[cacheKey]*cacheEntry)}
}

// GetOrBuild returns the cached surface for (fingerprint, geo) or calls build
// and stores its result. Build errors are returned to every waiting caller
// but not cached.
func (c *SurfaceCache) GetOrBuild(fingerprint string, geo Georeference, build func() (*Surface, error)) (*Surface, error) {
	key := cacheKey{fingerprint: fingerprint, geo: geo}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		<-e.ready
		return e.surface, e.err
	}
	c.misses++
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.err = errBuildAborted
	defer func() {
		if e.err != nil {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		close(e.ready)
	}()
	e.surface, e.err = build()
	return e.surface, e.err
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// Stats returns a snapshot of the counters.
func (c *SurfaceCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
