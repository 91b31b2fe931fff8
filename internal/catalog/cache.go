package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Cache serves immutable catalog snapshots with a TTL. Concurrent refreshes
// collapse into one reflection pass, and a failed refresh falls back to the
// last good snapshot so readers keep working while the database is unhappy.
type Cache struct {
	reflector *Reflector
	ttl       time.Duration

	mu        sync.RWMutex
	current   *Catalog
	expiresAt time.Time

	group singleflight.Group

	onRefresh func(tables int, err error)
}

// NewCache creates a catalog cache around the given reflector.
func NewCache(reflector *Reflector, ttl time.Duration) *Cache {
	return &Cache{reflector: reflector, ttl: ttl}
}

// OnRefresh installs an observer called after every reflection attempt.
// Must be set before the first Snapshot call.
func (c *Cache) OnRefresh(fn func(tables int, err error)) {
	c.onRefresh = fn
}

// Snapshot returns the current catalog, refreshing it when the TTL expired.
func (c *Cache) Snapshot(ctx context.Context) (*Catalog, error) {
	c.mu.RLock()
	if c.current != nil && time.Now().Before(c.expiresAt) {
		snap := c.current
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("catalog", func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		c.mu.RLock()
		if c.current != nil && time.Now().Before(c.expiresAt) {
			snap := c.current
			c.mu.RUnlock()
			return snap, nil
		}
		stale := c.current
		c.mu.RUnlock()

		snap, err := c.reflector.Reflect(ctx)
		if c.onRefresh != nil {
			tables := 0
			if snap != nil {
				tables = len(snap.Tables)
			}
			c.onRefresh(tables, err)
		}
		if err != nil {
			if stale != nil {
				log.Warn().Err(err).
					Str("snapshot_id", stale.SnapshotID).
					Msg("Schema reflection failed, serving stale catalog")
				return stale, nil
			}
			return nil, err
		}

		c.mu.Lock()
		c.current = snap
		c.expiresAt = time.Now().Add(c.ttl)
		c.mu.Unlock()

		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Catalog), nil
}

// Invalidate forces the next Snapshot call to reflect again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Current returns the cached snapshot without refreshing, or nil when the
// cache has never been filled.
func (c *Cache) Current() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}
