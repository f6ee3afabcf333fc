package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value store for upstream lookups.
type Cache interface {
	// Get returns ok=false on a miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}
