package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	loanCacheVersionKey = "inventory:service_loans:version"
	loanCachePrefix     = "inventory:service_loans:active:"
)

// RedisLoanCache keeps the active service loan listing in Redis. Loans and
// returns bump the version key, which orphans the previous listing.
type RedisLoanCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewLoanCache instantiates the cache helper.
func NewLoanCache(client *redis.Client, ttl time.Duration) *RedisLoanCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLoanCache{client: client, ttl: ttl}
}

func (c *RedisLoanCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, loanCacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// FetchActive returns the cached listing or populates it using loader.
// Concurrent misses for the same version share one loader call.
func (c *RedisLoanCache) FetchActive(ctx context.Context, loader func(context.Context) ([]ServiceLogEntry, error)) ([]ServiceLogEntry, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return nil, err
	}
	key := loanCachePrefix + strconv.FormatInt(ver, 10)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var entries []ServiceLogEntry
		if err := json.Unmarshal(payload, &entries); err == nil {
			return entries, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	ch := c.group.DoChan(key, func() (any, error) {
		entries, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(context.WithoutCancel(ctx), key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return entries, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]ServiceLogEntry), nil
	}
}

// Invalidate bumps the version so the next read reloads from the store.
func (c *RedisLoanCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, loanCacheVersionKey).Err()
}
