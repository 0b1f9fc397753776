package assetsync

import (
	"context"
	"io"
)

// BlobStore is the capability interface over the binary object backend.
// Every failure, including a missing key, is returned as *BlobStoreError.
type BlobStore interface {
	// Put stores the bytes read from body under key, overwriting any existing object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (*PutResult, error)

	// Get opens the object for reading. The caller must close Body.
	Get(ctx context.Context, key string) (*GetResult, error)

	// Delete removes the object.
	Delete(ctx context.Context, key string) error

	// List returns objects under a prefix in lexicographic key order.
	List(ctx context.Context, req ListRequest) (*ListPage, error)

	// Copy duplicates an object inside the backend without streaming it through the caller.
	Copy(ctx context.Context, sourceKey, destKey string) (*CopyObjectResult, error)

	// Head returns object attributes without the body.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// PublicURL returns the address clients use to fetch key.
	PublicURL(key string) string
}

// MetadataIndex is the capability interface over the store of descriptive
// records, one per object key. Store failures are returned as
// *MetadataIndexError.
type MetadataIndex interface {
	// Insert writes rec, replacing any existing record with the same file key.
	// The existing id and created_at are kept on replacement.
	Insert(ctx context.Context, rec Record) (*Record, error)

	// SelectByKey returns the record for key. A missing record is reported
	// with found == false and a nil error.
	SelectByKey(ctx context.Context, key string) (rec *Record, found bool, err error)

	// SelectByFilter returns records matching every condition in f.
	SelectByFilter(ctx context.Context, f Filter, opts QueryOptions) ([]Record, error)

	// Update applies patch to the record for key. It fails with
	// ErrMetadataNotFound when no record exists.
	Update(ctx context.Context, key string, patch RecordPatch) (*Record, error)

	// Delete removes the record for key. Deleting a missing record succeeds.
	Delete(ctx context.Context, key string) error
}

// EventSink receives notifications after successful blob operations.
// Errors returned by a sink are logged and never fail the operation.
type EventSink interface {
	ObjectUploaded(ctx context.Context, result *UploadResult) error
	ObjectDeleted(ctx context.Context, result *DeleteResult) error
	ObjectCopied(ctx context.Context, result *CopyResult) error
}

// Presigner is implemented by blob stores that can issue time-limited
// download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}
