package assetsync

import (
	"time"

	"github.com/google/uuid"
)

// NewRecord builds the metadata record for key. FilePath mirrors the key and
// OwnerID and Folder are derived from it.
func NewRecord(key, publicURL, contentType string, size int64, data map[string]any, now time.Time) Record {
	return Record{
		ID:             uuid.New(),
		FileKey:        key,
		FilePath:       key,
		PublicURL:      publicURL,
		ContentType:    contentType,
		Size:           size,
		OwnerID:        DeriveOwnerID(key),
		Folder:         DeriveFolder(key),
		AdditionalData: cloneData(data),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// URLResolver maps an object key to its public address.
type URLResolver interface {
	PublicURL(key string) string
}

func asBlobError(backend, op, key string, err error) error {
	if err == nil || IsBlobStoreError(err) {
		return err
	}
	return &BlobStoreError{Backend: backend, Op: op, Key: key, Err: err}
}

func asIndexError(backend, op, key string, err error) error {
	if err == nil || IsMetadataIndexError(err) {
		return err
	}
	return &MetadataIndexError{Backend: backend, Op: op, Key: key, Err: err}
}
