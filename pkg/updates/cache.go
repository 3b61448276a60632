package updates

import (
	"context"
	"sync"

	"github.com/resalt-dev/resalt/pkg/logger"
)

// Cache holds the most recently fetched advisory. A failed refresh keeps
// the previous value so a transient outage never blanks the banner.
type Cache struct {
	client Client

	mu   sync.RWMutex
	info *Info
}

// NewCache wraps a client in a single-slot cache.
func NewCache(client Client) *Cache {
	return &Cache{client: client}
}

// Refresh fetches the advisory and replaces the cached copy on success.
func (c *Cache) Refresh(ctx context.Context) error {
	info, err := c.client.Fetch(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	logger.Debugw("Release advisory refreshed", "version", info.Version)
	return nil
}

// Get returns the cached advisory, or nil before the first successful
// refresh.
func (c *Cache) Get() *Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}
