package assetsync

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound indicates the blob store has no object for a key
	ErrObjectNotFound = errors.New("object not found")

	// ErrMetadataNotFound indicates the metadata index has no record for a key
	ErrMetadataNotFound = errors.New("metadata record not found")

	// ErrDuplicateKey indicates the index rejected a second record for a file key
	ErrDuplicateKey = errors.New("duplicate file key")

	// ErrIndexUnavailable indicates the index schema or connection is missing
	ErrIndexUnavailable = errors.New("metadata index unavailable")
)

// BlobStoreError represents a failure reported by the blob backend.
type BlobStoreError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *BlobStoreError) Error() string {
	return fmt.Sprintf("blob store operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *BlobStoreError) Unwrap() error {
	return e.Err
}

// MetadataIndexError represents a failure reported by the metadata index.
type MetadataIndexError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *MetadataIndexError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("metadata index operation %s failed on backend %s: %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("metadata index operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *MetadataIndexError) Unwrap() error {
	return e.Err
}

// ValidationError represents malformed input rejected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err means a missing object or a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrMetadataNotFound)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBlobStoreError reports whether err came from the blob store.
func IsBlobStoreError(err error) bool {
	var be *BlobStoreError
	return errors.As(err, &be)
}

// IsMetadataIndexError reports whether err came from the metadata index.
func IsMetadataIndexError(err error) bool {
	var me *MetadataIndexError
	return errors.As(err, &me)
}
