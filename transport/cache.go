// ABOUTME: Read-through response cache keyed by request signature
// ABOUTME: Fixed TTL entries; mutating operations invalidate matching endpoints
package transport

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached read result is served before it
// is treated as absent.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	payload  *Payload
	storedAt time.Time
}

// responseCache is a session-scoped request cache. It is constructor
// injected, never a package singleton, so each authenticated session
// (and each test) owns an isolated instance.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// cacheKey is method + ":" + url + ":" + serialized body.
func cacheKey(method, url, body string) string {
	return method + ":" + url + ":" + body
}

func (c *responseCache) get(key string) (*Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payload, true
}

func (c *responseCache) set(key string, payload *Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, storedAt: c.now()}
}

// invalidate drops every entry whose key contains the given fragment.
// Mutations pass their endpoint so stale reads of the same collection
// cannot be served afterward.
func (c *responseCache) invalidate(fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.Contains(key, fragment) {
			delete(c.entries, key)
		}
	}
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
