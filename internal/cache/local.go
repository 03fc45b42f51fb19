package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalCache is the in-process tier: an LRU map with per-entry TTL, bounded
// by both an entry count and an approximate memory estimate.
//
// Eviction policy: when either bound is reached on insert, the
// least-recently-accessed 10% of entries (minimum 1) are evicted before the
// new entry is stored. Entries accessed concurrently with an eviction pass
// may still be evicted; that race is an accepted approximation.
type LocalCache struct {
	mu          sync.Mutex
	entries     map[string]*localEntry
	lru         *list.List
	maxEntries  int
	maxMemory   int64
	currentSize int64
	evictions   int64
	logger      *zap.Logger
}

type localEntry struct {
	key     string
	value   []byte
	size    int64
	created time.Time
	expiry  time.Time
	element *list.Element
}

// NewLocalCache creates the local tier with the given bounds.
func NewLocalCache(maxEntries int, maxMemory int64, logger *zap.Logger) *LocalCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalCache{
		entries:    make(map[string]*localEntry),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxMemory:  maxMemory,
		logger:     logger,
	}
}

// Get returns the value for key if present and not expired.
func (c *LocalCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiry) {
		c.removeEntry(e)
		return nil, false, nil
	}
	c.lru.MoveToFront(e.element)

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true, nil
}

// Set stores value under key. Entries are replaced, never updated in place.
func (c *LocalCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(key) + len(value))
	if c.maxMemory > 0 && size > c.maxMemory {
		c.logger.Warn("value exceeds local tier memory bound, skipping",
			zap.String("key", key),
			zap.Int64("size", size),
		)
		return nil
	}

	if existing, ok := c.entries[key]; ok {
		c.removeEntry(existing)
	}

	if c.atCapacity(size) {
		c.evictLeastRecent()
	}

	now := time.Now()
	e := &localEntry{
		key:     key,
		value:   append([]byte(nil), value...),
		size:    size,
		created: now,
		expiry:  now.Add(ttl),
	}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
	c.currentSize += size
	return nil
}

// Delete removes key if present.
func (c *LocalCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeEntry(e)
	}
	return nil
}

// Exists reports whether key is present and live.
func (c *LocalCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(e.expiry) {
		c.removeEntry(e)
		return false, nil
	}
	return true, nil
}

// Clear drops every entry.
func (c *LocalCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*localEntry)
	c.lru.Init()
	c.currentSize = 0
	return nil
}

// DeleteByPattern removes every entry whose key matches the glob pattern.
func (c *LocalCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*localEntry
	for key, e := range c.entries {
		if matchPattern(key, pattern) {
			matched = append(matched, e)
		}
	}
	for _, e := range matched {
		c.removeEntry(e)
	}
	c.logger.Debug("cleared local entries by pattern",
		zap.String("pattern", pattern),
		zap.Int("count", len(matched)),
	)
	return nil
}

// Len returns the live entry count.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MemoryBytes returns the approximate stored size.
func (c *LocalCache) MemoryBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Evictions returns the total number of evicted entries.
func (c *LocalCache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *LocalCache) atCapacity(incomingSize int64) bool {
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		return true
	}
	if c.maxMemory > 0 && c.currentSize+incomingSize > c.maxMemory {
		return true
	}
	return false
}

// evictLeastRecent drops the least-recently-accessed 10% of entries,
// at least one. Caller must hold the lock.
func (c *LocalCache) evictLeastRecent() {
	n := len(c.entries) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.removeEntry(oldest.Value.(*localEntry))
		c.evictions++
	}
}

// removeEntry drops e from both the map and the LRU list. Caller must hold
// the lock.
func (c *LocalCache) removeEntry(e *localEntry) {
	if e.element != nil {
		c.lru.Remove(e.element)
		e.element = nil
	}
	delete(c.entries, e.key)
	c.currentSize -= e.size
}

// matchPattern implements simple glob matching with a single leading or
// trailing '*'.
func matchPattern(str, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) > 0 && pattern[0] == '*' {
		suffix := pattern[1:]
		return len(str) >= len(suffix) && str[len(str)-len(suffix):] == suffix
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(str) >= len(prefix) && str[:len(prefix)] == prefix
	}
	return str == pattern
}
