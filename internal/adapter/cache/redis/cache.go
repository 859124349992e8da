// Package redis implements domain.SeriesCache on top of Redis.
//
// Entries are namespaced by a generation counter. Invalidate bumps the
// counter, so entries written under an older generation are never read again
// and expire through their TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultPrefix = "nummus"

// commander is the subset of redis.Cmdable the cache uses
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// SeriesCache stores msgpack-encoded series results
type SeriesCache struct {
	client commander
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewSeriesCache creates a cache over client; ttl <= 0 keeps entries until evicted
func NewSeriesCache(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *SeriesCache {
	return &SeriesCache{
		client: client,
		prefix: defaultPrefix,
		ttl:    ttl,
		log:    log.With().Str("component", "series_cache").Logger(),
	}
}

func (c *SeriesCache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *SeriesCache) entryKey(generation int64, key string) string {
	return fmt.Sprintf("%s:series:%d:%s", c.prefix, generation, key)
}

// Generation returns the current generation, 0 before the first Invalidate
func (c *SeriesCache) Generation(ctx context.Context) (int64, error) {
	res, err := c.client.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	gen, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache generation %q: %w", res, err)
	}
	return gen, nil
}

// Load decodes the entry for key in generation gen into dst.
// It reports false on a miss.
func (c *SeriesCache) Load(ctx context.Context, gen int64, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug().Str("key", key).Int64("generation", gen).Msg("Cache miss")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := msgpack.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Int64("generation", gen).Msg("Cache hit")
	return true, nil
}

// Store encodes value under key in generation gen. gen must be the value
// read before the data behind value was loaded.
func (c *SeriesCache) Store(ctx context.Context, gen int64, key string, value any) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	if err := c.client.Set(ctx, c.entryKey(gen, key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Invalidate starts a new generation
func (c *SeriesCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.generationKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	c.log.Debug().Int64("generation", gen).Msg("Cache invalidated")
	return nil
}
