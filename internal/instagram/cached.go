package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"insta-relay/internal/cache"
	"insta-relay/internal/models"
)

// CachedClient serves repeated lookups from a cache. Cache errors are logged
// and never fail a lookup.
type CachedClient struct {
	next  Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient wraps next.
func NewCachedClient(next Client, c cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, cache: c, ttl: ttl}
}

func (c *CachedClient) Profile(ctx context.Context, username string) (*models.Profile, error) {
	key := "profile:" + username
	var profile models.Profile
	if c.load(ctx, key, &profile) {
		return &profile, nil
	}

	p, err := c.next.Profile(ctx, username)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, p)
	return p, nil
}

func (c *CachedClient) RecentPosts(ctx context.Context, username string, limit int) ([]models.Post, error) {
	key := fmt.Sprintf("posts:%s:%d", username, limit)
	var posts []models.Post
	if c.load(ctx, key, &posts) {
		return posts, nil
	}

	posts, err := c.next.RecentPosts(ctx, username, limit)
	if err != nil {
		return nil, err
	}
	// Empty feeds are not cached.
	if len(posts) > 0 {
		c.store(ctx, key, posts)
	}
	return posts, nil
}

func (c *CachedClient) load(ctx context.Context, key string, out interface{}) bool {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logrus.WithField("key", key).Warnf("Cache read failed: %v", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logrus.WithField("key", key).Warnf("Dropping undecodable cache entry: %v", err)
		return false
	}
	logrus.WithField("key", key).Debug("Cache hit")
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("Failed to marshal cache entry: %v", err)
		return
	}
	if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
		logrus.WithField("key", key).Warnf("Cache write failed: %v", err)
	}
}
