package store

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ProbeCache remembers recent chunk existence probes keyed by
// (endpoint, blobId, chunkIndex). A zero TTL disables caching.
type ProbeCache struct {
	cache *ttlcache.Cache[string, bool]
	ttl   time.Duration
}

// NewProbeCache creates a probe cache and starts its expiry loop when enabled.
func NewProbeCache(ttl time.Duration) *ProbeCache {
	if ttl <= 0 {
		return &ProbeCache{}
	}
	cache := ttlcache.New[string, bool](
		ttlcache.WithTTL[string, bool](ttl),
		// A hit must not extend the entry, or a frequently probed chunk would never be re-checked.
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	go cache.Start()
	return &ProbeCache{cache: cache, ttl: ttl}
}

func probeKey(endpoint, blobID string, chunkIndex int) string {
	return fmt.Sprintf("%s|%s|%d", endpoint, blobID, chunkIndex)
}

// Get returns a cached probe result.
func (p *ProbeCache) Get(endpoint, blobID string, chunkIndex int) (exists bool, ok bool) {
	if p.cache == nil {
		return false, false
	}
	item := p.cache.Get(probeKey(endpoint, blobID, chunkIndex))
	if item == nil {
		return false, false
	}
	return item.Value(), true
}

// Set records a probe result.
func (p *ProbeCache) Set(endpoint, blobID string, chunkIndex int, exists bool) {
	if p.cache == nil {
		return
	}
	p.cache.Set(probeKey(endpoint, blobID, chunkIndex), exists, ttlcache.DefaultTTL)
}

// Invalidate drops the cached result for a chunk on endpoint.
func (p *ProbeCache) Invalidate(endpoint, blobID string, chunkIndex int) {
	if p.cache == nil {
		return
	}
	p.cache.Delete(probeKey(endpoint, blobID, chunkIndex))
}

// Len returns the number of cached entries.
func (p *ProbeCache) Len() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Len()
}

// Stop stops the expiry loop.
func (p *ProbeCache) Stop() {
	if p.cache != nil {
		p.cache.Stop()
	}
}
