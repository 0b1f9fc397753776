package assetsync

import (
	"context"
)

// QueryEngine runs searches against the metadata index only. Results may
// describe objects that no longer exist in the blob store.
type QueryEngine struct {
	index MetadataIndex
}

// NewQueryEngine creates a QueryEngine.
func NewQueryEngine(index MetadataIndex) *QueryEngine {
	return &QueryEngine{index: index}
}

// SearchByMetadata returns the records matching f, paginated and ordered by opts.
func (q *QueryEngine) SearchByMetadata(ctx context.Context, f Filter, opts QueryOptions) ([]Record, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	recs, err := q.index.SelectByFilter(ctx, f, opts)
	if err != nil {
		return nil, asIndexError("unknown", "search", "", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// SearchByPrefix returns records whose file_key starts with prefix. It is a
// pattern match on the index and does not consult the blob store.
func (q *QueryEngine) SearchByPrefix(ctx context.Context, prefix string, opts QueryOptions) ([]Record, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	var f Filter
	if prefix != "" {
		var err error
		f, err = NewFilter(Like("file_key", PrefixPattern(prefix)))
		if err != nil {
			return nil, err
		}
	}
	return q.SearchByMetadata(ctx, f, opts)
}
