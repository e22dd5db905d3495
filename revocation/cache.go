package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps Redis failures.
var ErrCacheUnavailable = errors.New("revocation: cache unavailable")

const (
	cacheValue    = "1"
	scanBatchSize = 500
)

type cacheEntry struct {
	kind   jwt.Kind
	digest string
	ttl    time.Duration
}

type cache struct {
	redis  redis.UniversalClient
	prefix string
}

func (c *cache) key(kind jwt.Kind, digest string) string {
	return c.prefix + ":" + string(kind) + ":" + digest
}

func (c *cache) set(ctx context.Context, kind jwt.Kind, digest string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, c.key(kind, digest), cacheValue, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (c *cache) setMany(ctx context.Context, entries []cacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, c.key(e.kind, e.digest), cacheValue, e.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (c *cache) exists(ctx context.Context, kind jwt.Kind, digest string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(kind, digest)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

// purge deletes every key under the prefix and returns how many were removed.
func (c *cache) purge(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	match := c.prefix + ":*"
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		if len(keys) > 0 {
			cmds, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, k := range keys {
					pipe.Del(ctx, k)
				}
				return nil
			})
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
			}
			for _, cmd := range cmds {
				if del, ok := cmd.(*redis.IntCmd); ok {
					removed += int(del.Val())
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
