package assetsync

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// ObjectInfo describes a stored object as reported by the blob store.
type ObjectInfo struct {
	Key          string    `json:"key"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
}

// PutResult is returned by BlobStore.Put.
type PutResult struct {
	ETag     string
	Location string
	Size     int64
}

// GetResult is returned by BlobStore.Get.
type GetResult struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListRequest selects a page of objects. MaxItems <= 0 means the backend default.
type ListRequest struct {
	Prefix            string
	MaxItems          int
	ContinuationToken string
}

// ListPage is one page of a blob listing.
type ListPage struct {
	Items                 []ObjectInfo
	Truncated             bool
	NextContinuationToken string
}

// CopyObjectResult is returned by BlobStore.Copy.
type CopyObjectResult struct {
	ETag         string
	LastModified time.Time
}

// DefaultListLimit is used when a listing does not specify MaxItems.
const DefaultListLimit = 1000

// Record is the descriptive metadata kept for one object key.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	FileKey        string         `json:"file_key"`
	FilePath       string         `json:"file_path"`
	PublicURL      string         `json:"public_url"`
	ContentType    string         `json:"content_type"`
	Size           int64          `json:"size"`
	OwnerID        *string        `json:"owner_id"`
	Folder         *string        `json:"folder"`
	AdditionalData map[string]any `json:"additional_data"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.OwnerID != nil {
		v := *r.OwnerID
		out.OwnerID = &v
	}
	if r.Folder != nil {
		v := *r.Folder
		out.Folder = &v
	}
	out.AdditionalData = cloneData(r.AdditionalData)
	return out
}

// RecordPatch lists the record fields an update may change. Nil fields are
// left untouched. The file key and the fields derived from it cannot be
// patched.
type RecordPatch struct {
	ContentType    *string
	Size           *int64
	PublicURL      *string
	AdditionalData map[string]any
	// MergeAdditionalData merges AdditionalData into the existing value
	// key by key instead of replacing it.
	MergeAdditionalData bool
	UpdatedAt           time.Time
}

// Apply returns a copy of r with the patch applied.
func (p RecordPatch) Apply(r Record) Record {
	out := r.Clone()
	if p.ContentType != nil {
		out.ContentType = *p.ContentType
	}
	if p.Size != nil {
		out.Size = *p.Size
	}
	if p.PublicURL != nil {
		out.PublicURL = *p.PublicURL
	}
	if p.AdditionalData != nil {
		if p.MergeAdditionalData {
			merged := cloneData(out.AdditionalData)
			for k, v := range p.AdditionalData {
				merged[k] = v
			}
			out.AdditionalData = merged
		} else {
			out.AdditionalData = cloneData(p.AdditionalData)
		}
	}
	out.UpdatedAt = p.UpdatedAt
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	return out
}

// cloneData deep-copies a decoded JSON value tree. It always returns a
// non-nil map.
func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// SyncState reports what happened to the metadata index during a mutating operation.
type SyncState string

const (
	// SyncStateSynced means the index reflects the operation.
	SyncStateSynced SyncState = "synced"
	// SyncStateSkipped means no index write was needed.
	SyncStateSkipped SyncState = "skipped"
	// SyncStateFailed means the blob operation succeeded but the index write did not.
	SyncStateFailed SyncState = "failed"
)

// MetadataSync is the secondary outcome of a mutating operation.
type MetadataSync struct {
	State SyncState
	Err   error
}

// Synced reports whether the index was updated.
func (m MetadataSync) Synced() bool {
	return m.State == SyncStateSynced
}

func (m MetadataSync) MarshalJSON() ([]byte, error) {
	out := struct {
		State SyncState `json:"state"`
		Error string    `json:"error,omitempty"`
	}{State: m.State}
	if m.Err != nil {
		out.Error = m.Err.Error()
	}
	return json.Marshal(out)
}

// UploadRequest describes an object to upload.
type UploadRequest struct {
	Key            string
	Body           io.Reader
	ContentType    string
	AdditionalData map[string]any
}

// UploadResult is returned by UploadObject. Metadata is nil unless the
// index write succeeded.
type UploadResult struct {
	Key          string       `json:"key"`
	ETag         string       `json:"etag"`
	URL          string       `json:"url"`
	Size         int64        `json:"size"`
	Metadata     *Record      `json:"metadata"`
	MetadataSync MetadataSync `json:"metadata_sync"`
}

// DeleteResult is returned by DeleteObject.
type DeleteResult struct {
	Key          string       `json:"key"`
	Success      bool         `json:"success"`
	MetadataSync MetadataSync `json:"metadata_sync"`
}

// CopyResult is returned by CopyObject.
type CopyResult struct {
	SourceKey    string       `json:"source_key"`
	DestKey      string       `json:"dest_key"`
	ETag         string       `json:"etag"`
	LastModified time.Time    `json:"last_modified"`
	Metadata     *Record      `json:"metadata"`
	MetadataSync MetadataSync `json:"metadata_sync"`
}

// EnrichedObject is a blob listing entry with its metadata record, if any.
type EnrichedObject struct {
	Object   ObjectInfo `json:"object"`
	Metadata *Record    `json:"metadata"`
}

// ListResult is returned by ListWithMetadata.
type ListResult struct {
	Items                 []EnrichedObject `json:"items"`
	Truncated             bool             `json:"truncated"`
	NextContinuationToken string           `json:"next_continuation_token,omitempty"`
}

// ObjectDetails merges blob attributes with the metadata record. Metadata
// is nil when the object has no record.
type ObjectDetails struct {
	Object   ObjectInfo `json:"object"`
	Metadata *Record    `json:"metadata"`
}

// MetadataUpdate is a caller-initiated change to an object's record.
type MetadataUpdate struct {
	ContentType    *string        `json:"content_type,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
	Merge          bool           `json:"merge"`
}
