package assetsync

import (
	"context"
)

// Service is the main interface for asset storage with a synchronized
// metadata index.
type Service interface {
	// Mutating operations. The blob store is written first; metadata
	// failures are reported in the result, not as errors.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	Delete(ctx context.Context, key string) (*DeleteResult, error)
	Copy(ctx context.Context, sourceKey, destKey string) (*CopyResult, error)

	// Read operations
	List(ctx context.Context, req ListRequest) (*ListResult, error)
	Search(ctx context.Context, f Filter, opts QueryOptions) ([]Record, error)
	SearchByPrefix(ctx context.Context, prefix string, opts QueryOptions) ([]Record, error)
	Download(ctx context.Context, key string) (*GetResult, error)
	GetObjectMetadata(ctx context.Context, key string) (*ObjectDetails, error)

	// Metadata maintenance
	UpdateMetadata(ctx context.Context, key string, update MetadataUpdate) (*Record, error)
	ResyncMetadata(ctx context.Context, key string, additionalData map[string]any) (*Record, error)
}
