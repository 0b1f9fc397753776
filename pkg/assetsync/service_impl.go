package assetsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// service implements the Service interface
type service struct {
	blobs  BlobStore
	index  MetadataIndex
	events EventSink
	urls   URLResolver
	logger *slog.Logger
	now    func() time.Time

	sync     *Synchronizer
	enricher *Enricher
	query    *QueryEngine
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the blob store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobs = store
	}
}

// WithMetadataIndex sets the metadata index
func WithMetadataIndex(index MetadataIndex) Option {
	return func(s *service) {
		s.index = index
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// WithURLResolver overrides how public URLs are built. The blob store is
// used by default.
func WithURLResolver(urls URLResolver) Option {
	return func(s *service) {
		s.urls = urls
	}
}

// WithLogger sets the logger used for partial-failure reports
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock sets the time source for record timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}

	for _, option := range options {
		option(s)
	}

	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.index == nil {
		return nil, fmt.Errorf("metadata index is required")
	}
	if s.events == nil {
		s.events = NoopEventSink{}
	}
	if s.urls == nil {
		s.urls = s.blobs
	}

	s.sync = NewSynchronizer(s.blobs, s.index, SynchronizerConfig{
		Logger: s.logger,
		Events: s.events,
		URLs:   s.urls,
		Now:    s.now,
	})
	s.enricher = NewEnricher(s.blobs, s.index)
	s.query = NewQueryEngine(s.index)

	return s, nil
}

func (s *service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	return s.sync.UploadObject(ctx, req)
}

func (s *service) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	return s.sync.DeleteObject(ctx, key)
}

func (s *service) Copy(ctx context.Context, sourceKey, destKey string) (*CopyResult, error) {
	return s.sync.CopyObject(ctx, sourceKey, destKey)
}

func (s *service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	return s.enricher.ListWithMetadata(ctx, req)
}

func (s *service) Search(ctx context.Context, f Filter, opts QueryOptions) ([]Record, error) {
	return s.query.SearchByMetadata(ctx, f, opts)
}

func (s *service) SearchByPrefix(ctx context.Context, prefix string, opts QueryOptions) ([]Record, error) {
	return s.query.SearchByPrefix(ctx, prefix, opts)
}

func (s *service) Download(ctx context.Context, key string) (*GetResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	res, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, asBlobError("unknown", "get", key, err)
	}
	return res, nil
}

// GetObjectMetadata merges the blob's attributes with its record. A missing
// object is an error; a missing record leaves Metadata nil.
func (s *service) GetObjectMetadata(ctx context.Context, key string) (*ObjectDetails, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	info, err := s.blobs.Head(ctx, key)
	if err != nil {
		return nil, asBlobError("unknown", "head", key, err)
	}

	details := &ObjectDetails{Object: *info}
	rec, found, err := s.index.SelectByKey(ctx, key)
	if err != nil {
		return nil, asIndexError("unknown", "select", key, err)
	}
	if found {
		details.Metadata = rec
	}
	return details, nil
}

// UpdateMetadata changes the descriptive fields of an existing record. The
// object must still exist; its current size is written alongside the update.
func (s *service) UpdateMetadata(ctx context.Context, key string, update MetadataUpdate) (*Record, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if update.ContentType != nil {
		ct, err := normalizeContentType(*update.ContentType)
		if err != nil {
			return nil, err
		}
		update.ContentType = &ct
	}

	info, err := s.blobs.Head(ctx, key)
	if err != nil {
		return nil, asBlobError("unknown", "head", key, err)
	}

	size := info.Size
	rec, err := s.index.Update(ctx, key, RecordPatch{
		ContentType:         update.ContentType,
		Size:                &size,
		AdditionalData:      update.AdditionalData,
		MergeAdditionalData: update.Merge,
		UpdatedAt:           s.now(),
	})
	if err != nil {
		return nil, asIndexError("unknown", "update", key, err)
	}
	return rec, nil
}

// ResyncMetadata rebuilds the record for key from the blob store's view of
// the object. additionalData replaces the stored value when non-nil;
// otherwise the existing value is kept.
func (s *service) ResyncMetadata(ctx context.Context, key string, additionalData map[string]any) (*Record, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	info, err := s.blobs.Head(ctx, key)
	if err != nil {
		return nil, asBlobError("unknown", "head", key, err)
	}

	existing, found, err := s.index.SelectByKey(ctx, key)
	if err != nil {
		return nil, asIndexError("unknown", "select", key, err)
	}
	if additionalData == nil && found {
		additionalData = existing.AdditionalData
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	rec := NewRecord(key, s.urls.PublicURL(key), contentType, info.Size, additionalData, s.now())
	saved, err := s.index.Insert(ctx, rec)
	if err != nil {
		return nil, asIndexError("unknown", "insert", key, err)
	}
	s.logger.Info("metadata resynced", "key", key, "existed", found)
	return saved, nil
}
