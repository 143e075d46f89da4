package auth

import (
	"container/list"
	"sync"
	"time"

	"github.com/bluewing/auth-core/models"
	"github.com/google/uuid"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	member     models.Member
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// MemberCache is an in-memory LRU cache with TTL for members resolved by
// Authenticate. Entries are keyed by member id and only returned for the
// organization they were loaded from.
type MemberCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewMemberCache creates a new MemberCache with specified max size and TTL
func NewMemberCache(maxSize int, ttl time.Duration, now func() time.Time) *MemberCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	if now == nil {
		now = time.Now
	}
	return &MemberCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns a copy of the cached member, nil if absent, expired or owned
// by another organization
func (c *MemberCache) Get(orgID, memberID uuid.UUID) *models.Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[memberID]
	if !exists || c.isExpired(entry) || entry.member.OrganizationID != orgID {
		c.misses++
		if exists && c.isExpired(entry) {
			c.removeEntry(memberID)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	member := entry.member
	member.Roles = append([]string(nil), entry.member.Roles...)
	return &member
}

// Set stores a copy of member
func (c *MemberCache) Set(member *models.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *member
	stored.Roles = append([]string(nil), member.Roles...)

	if entry, exists := c.entries[member.ID]; exists {
		entry.member = stored
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		member:     stored,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(member.ID)
	c.entries[member.ID] = entry
}

// Invalidate removes a specific member
func (c *MemberCache) Invalidate(memberID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(memberID)
}

// InvalidateOrg removes all cache entries for an organization
func (c *MemberCache) InvalidateOrg(orgID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		if entry.member.OrganizationID == orgID {
			c.removeEntry(id)
		}
	}
}

// Stats returns cache statistics
func (c *MemberCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *MemberCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if c.isExpired(entry) {
			c.removeEntry(id)
			removed++
		}
	}
	return removed
}

func (c *MemberCache) isExpired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// removeEntry must be called with the lock held
func (c *MemberCache) removeEntry(id uuid.UUID) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// evictLRU must be called with the lock held
func (c *MemberCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(uuid.UUID))
}
