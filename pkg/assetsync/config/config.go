package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
		Storage: StorageConfig{
			Type:            "memory",
			Region:          "us-east-1",
			PresignDuration: 3600,
		},
		Index: IndexConfig{
			Type:        "memory",
			Table:       "file_metadata",
			AutoMigrate: true,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		URLs: URLConfig{
			Strategy: "storage-delegated",
		},
		MaxUploadBytes:     100 << 20,
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration for the assetsync service and its binaries
type ServerConfig struct {
	Port        string `validate:"required"`
	Environment string `validate:"oneof=development production testing"`
	LogLevel    string `validate:"oneof=debug info warn error"`

	Storage StorageConfig
	Index   IndexConfig
	Cache   CacheConfig
	URLs    URLConfig

	// MaxUploadBytes limits request bodies on the upload route. Zero disables the limit.
	MaxUploadBytes     int64 `validate:"min=0"`
	EnableEventLogging bool
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type string `validate:"oneof=memory fs s3"`

	// Filesystem
	BaseDir   string `validate:"required_if=Type fs"`
	URLPrefix string

	// S3 and S3-compatible services
	Bucket          string `validate:"required_if=Type s3"`
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
	PresignDuration int `validate:"min=0"`
	PublicBaseURL   string
}

// IndexConfig selects and configures the metadata index
type IndexConfig struct {
	Type        string `validate:"oneof=memory postgres sqlite"`
	DatabaseURL string `validate:"required_if=Type postgres"`
	Path        string `validate:"required_if=Type sqlite"`
	Schema      string
	Table       string `validate:"required"`
	AutoMigrate bool
}

// CacheConfig enables the redis read-through cache when RedisURL is set
type CacheConfig struct {
	RedisURL  string
	TTL       time.Duration
	KeyPrefix string
}

// URLConfig picks how public URLs are recorded
type URLConfig struct {
	Strategy   string `validate:"oneof=cdn api-routed storage-delegated"`
	CDNBaseURL string `validate:"required_if=Strategy cdn"`
	APIBaseURL string `validate:"required_if=Strategy api-routed"`
}

var validate = validator.New()

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid configuration: cache TTL must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the configuration targets local development
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}
