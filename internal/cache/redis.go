// Package cache keeps rendered rule tree snapshots in Redis, keyed by the
// rules revision. A revision is never reused, even when an import moves the
// version backwards, so entries are written once and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// ErrMiss is returned by Get when no snapshot is cached for the revision.
var ErrMiss = errors.New("cache miss")

// DefaultTTL is how long a snapshot stays cached.
const DefaultTTL = 30 * time.Minute

// RedisCache stores JSON encoded trees under "<prefix><revision>".
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at redisURL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "tagrules:tree:", ttl: DefaultTTL}
}

func (c *RedisCache) key(rev model.Revision) string {
	return c.prefix + rev.String()
}

// Get returns the cached tree for rev, or ErrMiss.
func (c *RedisCache) Get(ctx context.Context, rev model.Revision) (*model.Tree, error) {
	data, err := c.client.Get(ctx, c.key(rev)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", rev, err)
	}

	var tree model.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", rev, err)
	}
	return &tree, nil
}

// Put caches tree under its revision.
func (c *RedisCache) Put(ctx context.Context, tree *model.Tree) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	rev := tree.Revision()
	if err := c.client.Set(ctx, c.key(rev), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("put snapshot %s: %w", rev, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
