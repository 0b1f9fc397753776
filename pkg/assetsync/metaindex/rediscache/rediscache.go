// Package rediscache caches single-record lookups of a MetadataIndex in
// Redis. Writes go to the wrapped index first and then refresh or evict
// the cached entry, so the wrapped index stays authoritative.
//
// A lookup that misses fills the cache with SET NX, and Delete leaves a
// short-lived tombstone. A reader that loaded a row just before it was
// deleted therefore cannot put it back into the cache. The guard lasts as
// long as the tombstone; a reader stalled for longer can still cache a
// deleted row until the TTL expires.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/assetsync/pkg/assetsync"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultTombstoneTTL = 30 * time.Second
	DefaultPrefix       = "assetsync:meta:"

	tombstone = "deleted"
)

// Cache implements assetsync.MetadataIndex on top of another index
type Cache struct {
	next   assetsync.MetadataIndex
	rdb    redis.UniversalClient
	ttl          time.Duration
	tombstoneTTL time.Duration
	prefix       string
	logger       *slog.Logger
}

// Option configures a Cache
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithTombstoneTTL sets how long a deleted key refuses cache fills
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.tombstoneTTL = ttl }
}

func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New wraps next with a Redis read-through cache
func New(next assetsync.MetadataIndex, rdb redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		next:   next,
		rdb:    rdb,
		ttl:          DefaultTTL,
		tombstoneTTL: DefaultTombstoneTTL,
		prefix:       DefaultPrefix,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) cacheKey(fileKey string) string {
	return c.prefix + fileKey
}

// Cache failures are logged and never fail the call.
func (c *Cache) store(ctx context.Context, rec *assetsync.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to encode cached record", "file_key", rec.FileKey, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, c.cacheKey(rec.FileKey), data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache record", "file_key", rec.FileKey, "err", err)
	}
}

// fill caches a record read after a miss. It never overwrites an entry
// written in the meantime, including a tombstone.
func (c *Cache) fill(ctx context.Context, rec *assetsync.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to encode cached record", "file_key", rec.FileKey, "err", err)
		return
	}
	if err := c.rdb.SetNX(ctx, c.cacheKey(rec.FileKey), data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache record", "file_key", rec.FileKey, "err", err)
	}
}

func (c *Cache) bury(ctx context.Context, fileKey string) {
	if err := c.rdb.Set(ctx, c.cacheKey(fileKey), tombstone, c.tombstoneTTL).Err(); err != nil {
		c.logger.Warn("failed to write tombstone", "file_key", fileKey, "err", err)
		c.evict(ctx, fileKey)
	}
}

func (c *Cache) evict(ctx context.Context, fileKey string) {
	if err := c.rdb.Del(ctx, c.cacheKey(fileKey)).Err(); err != nil {
		c.logger.Warn("failed to evict cached record", "file_key", fileKey, "err", err)
	}
}

func (c *Cache) Insert(ctx context.Context, rec assetsync.Record) (*assetsync.Record, error) {
	saved, err := c.next.Insert(ctx, rec)
	if err != nil {
		c.evict(ctx, rec.FileKey)
		return nil, err
	}
	c.store(ctx, saved)
	return saved, nil
}

// SelectByKey serves from Redis when possible and fills the cache on a miss.
// Absent records are not cached. A tombstone counts as a miss.
func (c *Cache) SelectByKey(ctx context.Context, key string) (*assetsync.Record, bool, error) {
	data, err := c.rdb.Get(ctx, c.cacheKey(key)).Bytes()
	switch {
	case err == nil && string(data) == tombstone:
	case err == nil:
		var rec assetsync.Record
		if err := json.Unmarshal(data, &rec); err == nil {
			if rec.AdditionalData == nil {
				rec.AdditionalData = map[string]any{}
			}
			return &rec, true, nil
		}
		c.logger.Warn("discarding undecodable cached record", "file_key", key)
		c.evict(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache lookup failed", "file_key", key, "err", err)
	}

	rec, found, err := c.next.SelectByKey(ctx, key)
	if err != nil || !found {
		return rec, found, err
	}
	c.fill(ctx, rec)
	return rec, true, nil
}

func (c *Cache) SelectByFilter(ctx context.Context, f assetsync.Filter, opts assetsync.QueryOptions) ([]assetsync.Record, error) {
	return c.next.SelectByFilter(ctx, f, opts)
}

func (c *Cache) Update(ctx context.Context, key string, patch assetsync.RecordPatch) (*assetsync.Record, error) {
	rec, err := c.next.Update(ctx, key, patch)
	if err != nil {
		c.evict(ctx, key)
		return nil, err
	}
	c.store(ctx, rec)
	return rec, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.next.Delete(ctx, key)
	c.bury(ctx, key)
	return err
}
