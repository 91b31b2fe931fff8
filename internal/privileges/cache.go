package privileges

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	privs     *RolePrivileges
	expiresAt time.Time
}

// Cache holds per-role privilege views with a TTL. Entries are immutable
// snapshots; expiry drops them atomically.
type Cache struct {
	loader *Loader
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
}

// NewCache creates a privilege cache around the given loader.
func NewCache(loader *Loader, ttl time.Duration) *Cache {
	return &Cache{
		loader:  loader,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the privilege view for a role, loading it on a cache miss.
// Concurrent misses for the same role collapse into one load.
func (c *Cache) Get(ctx context.Context, role string) (*RolePrivileges, error) {
	c.mu.RLock()
	entry, ok := c.entries[role]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.privs, nil
	}

	result, err, _ := c.group.Do(role, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[role]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.privs, nil
		}

		privs, err := c.loader.Load(ctx, role)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[role] = cacheEntry{privs: privs, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()

		return privs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*RolePrivileges), nil
}

// Invalidate drops one role's entry, or every entry when role is empty.
func (c *Cache) Invalidate(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if role == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, role)
}
