// Package refcache caches reference-data list responses (roles, statuses) in Redis.
// Each namespace carries a version counter; writes bump it so stale keys age out by TTL.
package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func New(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: "healpoint:ref:", logger: logger}
}

// Fetch decodes the cached value for (namespace, key) into dst, or calls load and caches its result.
// A nil Cache or a Redis failure falls through to load.
func (c *Cache) Fetch(ctx context.Context, namespace, key string, dst any, load func(context.Context) (any, error)) error {
	if c == nil || c.rdb == nil {
		return loadInto(ctx, dst, load)
	}

	version, err := c.version(ctx, namespace)
	if err != nil {
		c.logger.Warn("refcache version lookup failed", "namespace", namespace, "err", err)
		return loadInto(ctx, dst, load)
	}
	fullKey := c.prefix + namespace + ":" + version + ":" + key

	raw, err := c.rdb.Get(ctx, fullKey).Bytes()
	if err == nil {
		if err := json.Unmarshal(raw, dst); err == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("refcache get failed", "key", fullKey, "err", err)
	}

	v, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, fullKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("refcache set failed", "key", fullKey, "err", err)
	}
	return json.Unmarshal(raw, dst)
}

// Invalidate bumps the namespace version.
func (c *Cache) Invalidate(ctx context.Context, namespace string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, c.prefix+namespace+":v").Err(); err != nil {
		c.logger.Warn("refcache invalidate failed", "namespace", namespace, "err", err)
	}
}

func (c *Cache) version(ctx context.Context, namespace string) (string, error) {
	v, err := c.rdb.Get(ctx, c.prefix+namespace+":v").Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

func loadInto(ctx context.Context, dst any, load func(context.Context) (any, error)) error {
	v, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
