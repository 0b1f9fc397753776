package config

import (
	"fmt"
	"strings"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the minimum log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = strings.ToLower(level)
		return nil
	}
}

// WithStorageURL configures the blob store from a storage URL. See ParseStorageURL.
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		return applyStorageURL(raw, &c.Storage)
	}
}

// WithMemoryStorage selects the in-memory blob store
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage.Type = "memory"
		return nil
	}
}

// WithFilesystemStorage selects the filesystem blob store
func WithFilesystemStorage(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage.Type = "fs"
		c.Storage.BaseDir = baseDir
		c.Storage.URLPrefix = urlPrefix
		return nil
	}
}

// WithS3Storage selects the S3 blob store for bucket. Credentials fall back
// to the default AWS chain when left empty.
func WithS3Storage(bucket, region, endpoint string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.Storage.Type = "s3"
		c.Storage.Bucket = bucket
		if region != "" {
			c.Storage.Region = region
		}
		c.Storage.Endpoint = endpoint
		if endpoint != "" {
			c.Storage.UsePathStyle = true
		}
		return nil
	}
}

// WithS3Credentials sets static S3 credentials
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.Storage.AccessKeyID = accessKeyID
		c.Storage.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithIndexURL configures the metadata index from an index URL. See ParseIndexURL.
func WithIndexURL(raw string) Option {
	return func(c *ServerConfig) error {
		return applyIndexURL(raw, &c.Index)
	}
}

// WithIndexTable overrides the metadata table name
func WithIndexTable(table string) Option {
	return func(c *ServerConfig) error {
		if table == "" {
			return fmt.Errorf("index table cannot be empty")
		}
		c.Index.Table = table
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema used as search_path
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.Index.Schema = schema
		return nil
	}
}

// WithAutoMigrate toggles schema creation when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.Index.AutoMigrate = enabled
		return nil
	}
}

// WithRedisCache enables the metadata read-through cache
func WithRedisCache(redisURL string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.Cache.RedisURL = redisURL
		if ttl > 0 {
			c.Cache.TTL = ttl
		}
		return nil
	}
}

// WithPublicBaseURL records public URLs under a CDN base URL
func WithPublicBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		if baseURL == "" {
			return fmt.Errorf("public base URL cannot be empty")
		}
		c.URLs.Strategy = "cdn"
		c.URLs.CDNBaseURL = baseURL
		return nil
	}
}

// WithAPIBaseURL records public URLs that route through this service's download endpoint
func WithAPIBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		if baseURL == "" {
			return fmt.Errorf("API base URL cannot be empty")
		}
		c.URLs.Strategy = "api-routed"
		c.URLs.APIBaseURL = baseURL
		return nil
	}
}

// WithMaxUploadBytes limits upload request bodies
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadBytes = n
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
