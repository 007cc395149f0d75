package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// fallbackEntry is a value held in the in-process tier.
type fallbackEntry struct {
	Value     string
	ExpiresAt time.Time
}

// fallbackCache is the in-process tier used when the primary tier is
// unavailable. It is local to one process and is a continuity mechanism,
// never a cross-instance consistency substitute.
type fallbackCache struct {
	mu      sync.RWMutex
	entries map[string]fallbackEntry
	maxSize int
	now     func() time.Time
}

func newFallbackCache(maxSize int, now func() time.Time) *fallbackCache {
	if now == nil {
		now = time.Now
	}
	return &fallbackCache{
		entries: make(map[string]fallbackEntry),
		maxSize: maxSize,
		now:     now,
	}
}

// get returns the value for key, lazily evicting it when expired.
func (c *fallbackCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return "", false
	}
	if c.now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.Value, true
}

func (c *fallbackCache) set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.sweepLocked()
	}

	c.entries[key] = fallbackEntry{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

func (c *fallbackCache) delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.entries[key]
	delete(c.entries, key)
	return exists
}

// deletePattern removes every key matching the glob pattern, where `*`
// matches any run of characters. Returns the number removed.
func (c *fallbackCache) deletePattern(pattern string) int {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *fallbackCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLocked removes expired entries. Caller must hold the write lock.
func (c *fallbackCache) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// globToRegexp compiles a glob pattern into an anchored regexp.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
