package review

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a short-TTL Redis cache of the open review issue list. It is an
// explicit dependency of the Client, so every request shares one coherent
// expiry instead of process-global state. Cache failures degrade to a
// miss; they never fail the lookup.
type Cache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Cache{rdb: rdb, key: "stencil:review:open-issues", ttl: ttl}
}

// Get returns the cached issue list, or ok=false on miss or cache error.
func (c *Cache) Get(ctx context.Context) ([]Issue, bool) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	var issues []Issue
	if err := json.Unmarshal(raw, &issues); err != nil {
		return nil, false
	}
	return issues, true
}

// Put stores the issue list for the cache TTL. Errors are dropped.
func (c *Cache) Put(ctx context.Context, issues []Issue) {
	raw, err := json.Marshal(issues)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.key, raw, c.ttl)
}
