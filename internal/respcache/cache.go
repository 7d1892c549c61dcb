// Package respcache provides a TTL keyed cache for idempotent outbound
// research API responses. Status polls and result fetches bypass it; the
// gateway decides eligibility per operation.
package respcache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Cache is a process-wide TTL cache safe for concurrent use. Expired
// entries are evicted lazily on Get; there is no capacity bound.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// New creates a Cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithNow sets the clock, for tests.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached value for key. An entry past its expiry behaves
// as a miss and is removed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of retained entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MakeKey derives a stable cache key from an operation name and its
// parameters. Parameters are canonicalized through JSON (map keys are
// sorted by encoding/json) and string content is NFC-normalized and
// trimmed, so logically identical requests hash identically.
func MakeKey(operation string, params any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// Unmarshalable params cannot be cached meaningfully; fall back
		// to a key unique to the operation.
		canonical = []byte(fmt.Sprintf("%+v", params))
	}

	normalized := norm.NFC.String(strings.TrimSpace(string(canonical)))
	h := sha256.Sum256([]byte(operation + "\x00" + normalized))
	return fmt.Sprintf("%x", h)
}
