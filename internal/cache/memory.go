package cache

import (
	"context"
	"sync"
	"time"

	"github.com/momentsapp/moments/internal/domain"
)

// MemoryHotTags is an in-process hot tags cache used when Redis is disabled.
type MemoryHotTags struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[int]memoryEntry
}

type memoryEntry struct {
	tags      []domain.TagCount
	expiresAt time.Time
}

// NewMemoryHotTags creates the cache.
func NewMemoryHotTags(ttl time.Duration) *MemoryHotTags {
	return &MemoryHotTags{ttl: ttl, now: time.Now, entries: make(map[int]memoryEntry)}
}

// Get returns the cached list for limit, if present and fresh.
func (c *MemoryHotTags) Get(ctx context.Context, limit int) ([]domain.TagCount, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[limit]
	if !ok || (c.ttl > 0 && c.now().After(e.expiresAt)) {
		return nil, false, nil
	}
	out := make([]domain.TagCount, len(e.tags))
	copy(out, e.tags)
	return out, true, nil
}

// Set stores the list for limit.
func (c *MemoryHotTags) Set(ctx context.Context, limit int, tags []domain.TagCount) error {
	stored := make([]domain.TagCount, len(tags))
	copy(stored, tags)
	c.mu.Lock()
	c.entries[limit] = memoryEntry{tags: stored, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate drops every cached list.
func (c *MemoryHotTags) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[int]memoryEntry)
	c.mu.Unlock()
	return nil
}
