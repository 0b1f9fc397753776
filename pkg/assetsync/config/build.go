package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/assetsync/pkg/assetsync"
	memoryindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/memory"
	pgindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/postgres"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/rediscache"
	sqliteindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/sqlite"
	fsstorage "github.com/tendant/assetsync/pkg/assetsync/storage/fs"
	memorystorage "github.com/tendant/assetsync/pkg/assetsync/storage/memory"
	s3storage "github.com/tendant/assetsync/pkg/assetsync/storage/s3"
	"github.com/tendant/assetsync/pkg/assetsync/urlstrategy"
)

// Migrator is implemented by indexes that manage their own schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Runtime holds a built service together with the adapters behind it.
type Runtime struct {
	Service assetsync.Service
	Store   assetsync.BlobStore
	Index   assetsync.MetadataIndex
	URLs    urlstrategy.Strategy

	// migrator is the underlying SQL index, nil for the memory index.
	migrator Migrator
	closers  []func() error
}

// Migrate creates the index schema. It is a no-op for the memory index.
func (r *Runtime) Migrate(ctx context.Context) error {
	if r.migrator == nil {
		return nil
	}
	return r.migrator.Migrate(ctx)
}

// Close releases connections held by the adapters
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService creates the blob store, metadata index and service described
// by the configuration. The caller must Close the returned Runtime.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	rt.Store = store

	index, err := c.buildIndex(ctx, rt)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build metadata index %s: %w", c.Index.Type, err)
	}

	if c.Index.AutoMigrate {
		if err := rt.Migrate(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to migrate metadata index: %w", err)
		}
	}

	if c.Cache.RedisURL != "" {
		cached, err := c.buildCache(ctx, index, logger, rt)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to build metadata cache: %w", err)
		}
		index = cached
	}
	rt.Index = index

	urls, err := urlstrategy.NewURLStrategy(urlstrategy.Config{
		Type:       urlstrategy.StrategyType(c.URLs.Strategy),
		CDNBaseURL: c.URLs.CDNBaseURL,
		APIBaseURL: c.URLs.APIBaseURL,
		Store:      store,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build URL strategy: %w", err)
	}
	rt.URLs = urls

	options := []assetsync.Option{
		assetsync.WithBlobStore(store),
		assetsync.WithMetadataIndex(index),
		assetsync.WithURLResolver(urls),
		assetsync.WithLogger(logger),
	}
	if c.EnableEventLogging {
		options = append(options, assetsync.WithEventSink(assetsync.NewLoggingEventSink(logger)))
	}

	svc, err := assetsync.New(options...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// buildStorageBackend creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (assetsync.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		if c.Storage.URLPrefix != "" {
			return memorystorage.NewWithBaseURL(c.Storage.URLPrefix), nil
		}
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.Storage.BaseDir,
			URLPrefix: c.Storage.URLPrefix,
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.Storage.Region,
			Bucket:                 c.Storage.Bucket,
			AccessKeyID:            c.Storage.AccessKeyID,
			SecretAccessKey:        c.Storage.SecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UsePathStyle:           c.Storage.UsePathStyle,
			PresignDuration:        c.Storage.PresignDuration,
			PublicBaseURL:          c.Storage.PublicBaseURL,
			CreateBucketIfNotExist: c.Storage.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
}

// buildIndex creates the MetadataIndex and registers its closer on rt
func (c *ServerConfig) buildIndex(ctx context.Context, rt *Runtime) (assetsync.MetadataIndex, error) {
	switch c.Index.Type {
	case "memory":
		return memoryindex.New(), nil

	case "postgres":
		pool, err := NewPostgresPool(ctx, c.Index.DatabaseURL, c.Index.Schema)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		index := pgindex.NewWithPool(pool, pgindex.WithTable(c.Index.Table))
		rt.migrator = index
		return index, nil

	case "sqlite":
		index, err := sqliteindex.Open(ctx, c.Index.Path, sqliteindex.WithTable(c.Index.Table))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, index.Close)
		rt.migrator = index
		return index, nil

	default:
		return nil, fmt.Errorf("unsupported index type: %s", c.Index.Type)
	}
}

func (c *ServerConfig) buildCache(ctx context.Context, next assetsync.MetadataIndex, logger *slog.Logger, rt *Runtime) (assetsync.MetadataIndex, error) {
	opts, err := redis.ParseURL(c.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	rt.closers = append(rt.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Cache errors fall through to the index.
		logger.Warn("redis ping failed", "error", err)
	}

	cacheOpts := []rediscache.Option{rediscache.WithLogger(logger)}
	if c.Cache.TTL > 0 {
		cacheOpts = append(cacheOpts, rediscache.WithTTL(c.Cache.TTL))
	}
	if c.Cache.KeyPrefix != "" {
		cacheOpts = append(cacheOpts, rediscache.WithKeyPrefix(c.Cache.KeyPrefix))
	}
	return rediscache.New(next, rdb, cacheOpts...), nil
}

// NewPostgresPool connects to Postgres and sets search_path to schema on
// every connection when schema is not empty.
func NewPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}
