package assetsync

import (
	"context"
	"log/slog"
	"mime"
	"strings"
	"time"
)

// DefaultContentType is stored when an upload does not name one.
const DefaultContentType = "application/octet-stream"

// SynchronizerConfig carries the optional collaborators of a Synchronizer.
type SynchronizerConfig struct {
	Logger *slog.Logger
	Events EventSink
	URLs   URLResolver
	Now    func() time.Time
}

// Synchronizer runs the mutating operations. The blob call always completes
// before the metadata call. A metadata failure is logged and reported in the
// result's MetadataSync; it never fails the operation and the blob change is
// never undone.
type Synchronizer struct {
	blobs  BlobStore
	index  MetadataIndex
	events EventSink
	urls   URLResolver
	logger *slog.Logger
	now    func() time.Time
}

// NewSynchronizer creates a Synchronizer over blobs and index.
func NewSynchronizer(blobs BlobStore, index MetadataIndex, cfg SynchronizerConfig) *Synchronizer {
	s := &Synchronizer{
		blobs:  blobs,
		index:  index,
		events: cfg.Events,
		urls:   cfg.URLs,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if s.events == nil {
		s.events = NoopEventSink{}
	}
	if s.urls == nil {
		s.urls = blobs
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return s
}

// UploadObject stores req.Body under req.Key and records its metadata.
func (s *Synchronizer) UploadObject(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := ValidateKey(req.Key); err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, newValidationError("body", "is required")
	}
	contentType, err := normalizeContentType(req.ContentType)
	if err != nil {
		return nil, err
	}

	put, err := s.blobs.Put(ctx, req.Key, req.Body, contentType)
	if err != nil {
		return nil, asBlobError("unknown", "put", req.Key, err)
	}

	result := &UploadResult{
		Key:  req.Key,
		ETag: put.ETag,
		URL:  s.urls.PublicURL(req.Key),
		Size: put.Size,
	}

	rec := NewRecord(req.Key, result.URL, contentType, put.Size, req.AdditionalData, s.now())
	saved, err := s.index.Insert(ctx, rec)
	if err != nil {
		s.logger.Warn("metadata insert failed after upload", "key", req.Key, "error", err)
		result.MetadataSync = MetadataSync{State: SyncStateFailed, Err: err}
	} else {
		result.Metadata = saved
		result.MetadataSync = MetadataSync{State: SyncStateSynced}
	}

	if err := s.events.ObjectUploaded(ctx, result); err != nil {
		s.logger.Warn("event sink rejected upload event", "key", req.Key, "error", err)
	}
	return result, nil
}

// DeleteObject removes the object at key and then its metadata record.
func (s *Synchronizer) DeleteObject(ctx context.Context, key string) (*DeleteResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	if err := s.blobs.Delete(ctx, key); err != nil {
		return nil, asBlobError("unknown", "delete", key, err)
	}

	result := &DeleteResult{Key: key, Success: true, MetadataSync: MetadataSync{State: SyncStateSynced}}
	if err := s.index.Delete(ctx, key); err != nil {
		s.logger.Warn("metadata delete failed after object delete", "key", key, "error", err)
		result.MetadataSync = MetadataSync{State: SyncStateFailed, Err: err}
	}

	if err := s.events.ObjectDeleted(ctx, result); err != nil {
		s.logger.Warn("event sink rejected delete event", "key", key, "error", err)
	}
	return result, nil
}

// CopyObject copies sourceKey to destKey inside the blob store and, when the
// source has a metadata record, writes a matching record for destKey.
func (s *Synchronizer) CopyObject(ctx context.Context, sourceKey, destKey string) (*CopyResult, error) {
	if err := validatePath("source_key", sourceKey, false); err != nil {
		return nil, err
	}
	if err := validatePath("dest_key", destKey, false); err != nil {
		return nil, err
	}
	if sourceKey == destKey {
		return nil, newValidationError("dest_key", "must differ from source_key")
	}

	cp, err := s.blobs.Copy(ctx, sourceKey, destKey)
	if err != nil {
		return nil, asBlobError("unknown", "copy", sourceKey, err)
	}

	result := &CopyResult{
		SourceKey:    sourceKey,
		DestKey:      destKey,
		ETag:         cp.ETag,
		LastModified: cp.LastModified,
	}

	src, found, err := s.index.SelectByKey(ctx, sourceKey)
	switch {
	case err != nil:
		s.logger.Warn("metadata lookup failed during copy", "source_key", sourceKey, "dest_key", destKey, "error", err)
		result.MetadataSync = MetadataSync{State: SyncStateFailed, Err: err}
	case !found:
		s.logger.Debug("source has no metadata, copied blob only", "source_key", sourceKey, "dest_key", destKey)
		result.MetadataSync = MetadataSync{State: SyncStateSkipped}
	default:
		rec := NewRecord(destKey, s.urls.PublicURL(destKey), src.ContentType, src.Size, src.AdditionalData, s.now())
		rec.OwnerID = src.Clone().OwnerID
		saved, err := s.index.Insert(ctx, rec)
		if err != nil {
			s.logger.Warn("metadata insert failed after copy", "source_key", sourceKey, "dest_key", destKey, "error", err)
			result.MetadataSync = MetadataSync{State: SyncStateFailed, Err: err}
		} else {
			result.Metadata = saved
			result.MetadataSync = MetadataSync{State: SyncStateSynced}
		}
	}

	if err := s.events.ObjectCopied(ctx, result); err != nil {
		s.logger.Warn("event sink rejected copy event", "dest_key", destKey, "error", err)
	}
	return result, nil
}

func normalizeContentType(ct string) (string, error) {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return DefaultContentType, nil
	}
	if _, _, err := mime.ParseMediaType(ct); err != nil {
		return "", newValidationError("content_type", "invalid media type %q", ct)
	}
	return ct, nil
}
