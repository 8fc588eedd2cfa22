package marketcache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/market"
)

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is an in-process market cache for tests and local runs.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache constructs an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	exp := time.Time{}
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry{payload: append([]byte(nil), value...), expiresAt: exp}
	c.mu.Unlock()
	return nil
}

var _ market.Cache = (*MemoryCache)(nil)
