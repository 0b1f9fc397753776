package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
)

const backendName = "memory"

// Index is an in-memory implementation of assetsync.MetadataIndex. Filters
// are evaluated with the same semantics the SQL indexes use: byte-order
// text comparison, case-sensitive LIKE and nulls sorted last.
type Index struct {
	mu      sync.RWMutex
	records map[string]assetsync.Record
	now     func() time.Time
}

// New creates a new in-memory metadata index
func New() *Index {
	return &Index{
		records: make(map[string]assetsync.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a copy of rec, keeping id and created_at of an existing
// record with the same file key.
func (x *Index) Insert(ctx context.Context, rec assetsync.Record) (*assetsync.Record, error) {
	if rec.FileKey == "" {
		return nil, &assetsync.ValidationError{Field: "file_key", Reason: "must not be empty"}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	data, err := canonical(rec.AdditionalData)
	if err != nil {
		return nil, &assetsync.MetadataIndexError{Backend: backendName, Op: "insert", Key: rec.FileKey, Err: err}
	}

	now := x.now()
	stored := rec.Clone()
	stored.AdditionalData = data
	if existing, ok := x.records[rec.FileKey]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	}
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	x.records[rec.FileKey] = stored

	out := stored.Clone()
	return &out, nil
}

// SelectByKey returns a copy of the record for key
func (x *Index) SelectByKey(ctx context.Context, key string) (*assetsync.Record, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.records[key]
	if !ok {
		return nil, false, nil
	}
	out := rec.Clone()
	return &out, true, nil
}

// SelectByFilter scans every record
func (x *Index) SelectByFilter(ctx context.Context, f assetsync.Filter, opts assetsync.QueryOptions) ([]assetsync.Record, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	conds := f.Conditions()

	x.mu.RLock()
	matched := make([]assetsync.Record, 0)
	for _, rec := range x.records {
		if matchesAll(rec, conds) {
			matched = append(matched, rec.Clone())
		}
	}
	x.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], opts)
	})

	if opts.Offset >= len(matched) {
		return []assetsync.Record{}, nil
	}
	end := min(opts.Offset+opts.Limit, len(matched))
	return matched[opts.Offset:end], nil
}

// Update applies patch to the stored record
func (x *Index) Update(ctx context.Context, key string, patch assetsync.RecordPatch) (*assetsync.Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rec, ok := x.records[key]
	if !ok {
		return nil, &assetsync.MetadataIndexError{Backend: backendName, Op: "update", Key: key, Err: assetsync.ErrMetadataNotFound}
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = x.now()
	}
	updated := patch.Apply(rec)
	data, err := canonical(updated.AdditionalData)
	if err != nil {
		return nil, &assetsync.MetadataIndexError{Backend: backendName, Op: "update", Key: key, Err: err}
	}
	updated.AdditionalData = data
	x.records[key] = updated

	out := updated.Clone()
	return &out, nil
}

// Delete removes the record for key
func (x *Index) Delete(ctx context.Context, key string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.records, key)
	return nil
}

// canonical stores additional data the way a JSON column would return it:
// numbers as float64, arrays as []any and objects as map[string]any.
func canonical(data map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if data == nil {
		return out, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored records
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}
