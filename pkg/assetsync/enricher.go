package assetsync

import (
	"context"
)

// Enricher joins blob listings with metadata records.
type Enricher struct {
	blobs BlobStore
	index MetadataIndex
}

// NewEnricher creates an Enricher.
func NewEnricher(blobs BlobStore, index MetadataIndex) *Enricher {
	return &Enricher{blobs: blobs, index: index}
}

// ListWithMetadata lists objects under req.Prefix and attaches each one's
// metadata record when it has one. The blob listing decides which keys are
// returned and in what order; records without a listed object are never
// returned. A metadata failure fails the listing.
func (e *Enricher) ListWithMetadata(ctx context.Context, req ListRequest) (*ListResult, error) {
	if err := ValidatePrefix(req.Prefix); err != nil {
		return nil, err
	}
	if req.MaxItems < 0 {
		return nil, newValidationError("max_items", "must not be negative")
	}
	if req.MaxItems == 0 || req.MaxItems > DefaultListLimit {
		req.MaxItems = DefaultListLimit
	}

	page, err := e.blobs.List(ctx, req)
	if err != nil {
		return nil, asBlobError("unknown", "list", req.Prefix, err)
	}

	byKey, err := e.recordsFor(ctx, page.Items)
	if err != nil {
		return nil, asIndexError("unknown", "select", req.Prefix, err)
	}

	result := &ListResult{
		Items:                 make([]EnrichedObject, 0, len(page.Items)),
		Truncated:             page.Truncated,
		NextContinuationToken: page.NextContinuationToken,
	}
	for _, obj := range page.Items {
		item := EnrichedObject{Object: obj}
		if rec, ok := byKey[obj.Key]; ok {
			item.Metadata = rec
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// recordsFor fetches records whose file_key is one of the listed keys, in
// batches no larger than MaxQueryLimit.
func (e *Enricher) recordsFor(ctx context.Context, objects []ObjectInfo) (map[string]*Record, error) {
	byKey := make(map[string]*Record, len(objects))
	for start := 0; start < len(objects); start += MaxQueryLimit {
		end := min(start+MaxQueryLimit, len(objects))
		keys := make([]any, 0, end-start)
		for _, obj := range objects[start:end] {
			keys = append(keys, obj.Key)
		}

		f, err := NewFilter(In("file_key", keys...))
		if err != nil {
			return nil, err
		}
		recs, err := e.index.SelectByFilter(ctx, f, QueryOptions{Limit: len(keys), OrderBy: "file_key", Ascending: true})
		if err != nil {
			return nil, err
		}
		for i := range recs {
			byKey[recs[i].FileKey] = &recs[i]
		}
	}
	return byKey, nil
}
