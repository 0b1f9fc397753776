// Package indextest holds a behavioural test suite shared by every
// assetsync.MetadataIndex implementation.
package indextest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
)

// Factory returns an empty index. It is called once per subtest.
type Factory func(t *testing.T) assetsync.MetadataIndex

var base = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func record(key, contentType string, size int64, data map[string]any, created time.Time) assetsync.Record {
	return assetsync.NewRecord(key, "https://cdn.example.com/"+key, contentType, size, data, created)
}

func keys(recs []assetsync.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.FileKey
	}
	return out
}

func mustFilter(t *testing.T, conds ...assetsync.Condition) assetsync.Filter {
	t.Helper()
	f, err := assetsync.NewFilter(conds...)
	require.NoError(t, err)
	return f
}

// seed inserts a fixed catalogue used by the filter tests.
func seed(t *testing.T, idx assetsync.MetadataIndex) {
	t.Helper()
	ctx := context.Background()
	recs := []assetsync.Record{
		record("user123/products/1700000000000-shirt.png", "image/png", 2048, map[string]any{"color": "red", "tags": []any{"summer", "sale"}, "rank": 5}, base),
		record("user123/products/hat.jpg", "image/jpeg", 512, map[string]any{"color": "blue", "featured": true}, base.Add(time.Minute)),
		record("user123/banners/home_top.png", "image/png", 4096, map[string]any{"color": "red"}, base.Add(2*time.Minute)),
		record("user456/avatar.png", "image/png", 100, map[string]any{}, base.Add(3*time.Minute)),
		record("readme.txt", "text/plain", 10, nil, base.Add(4*time.Minute)),
	}
	for _, r := range recs {
		_, err := idx.Insert(ctx, r)
		require.NoError(t, err)
	}
}

// Run exercises the MetadataIndex contract.
func Run(t *testing.T, newIndex Factory) {
	ctx := context.Background()

	t.Run("InsertAndSelectByKey", func(t *testing.T) {
		idx := newIndex(t)
		in := record("user123/products/1700000000000-shirt.png", "image/png", 2048,
			map[string]any{"description": "cotton", "dims": map[string]any{"w": float64(10)}}, base)

		saved, err := idx.Insert(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, in.ID, saved.ID)

		got, found, err := idx.SelectByKey(ctx, in.FileKey)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, in.ID, got.ID)
		assert.Equal(t, in.FileKey, got.FilePath)
		assert.Equal(t, "image/png", got.ContentType)
		assert.Equal(t, int64(2048), got.Size)
		require.NotNil(t, got.OwnerID)
		assert.Equal(t, "user123", *got.OwnerID)
		require.NotNil(t, got.Folder)
		assert.Equal(t, "products", *got.Folder)
		assert.Equal(t, "cotton", got.AdditionalData["description"])
		assert.Equal(t, map[string]any{"w": float64(10)}, got.AdditionalData["dims"])
		assert.True(t, got.CreatedAt.Equal(base), "created_at %v", got.CreatedAt)
	})

	t.Run("SelectByKeyMissing", func(t *testing.T) {
		idx := newIndex(t)
		got, found, err := idx.SelectByKey(ctx, "nobody/none.png")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("InsertUpsertsByKey", func(t *testing.T) {
		idx := newIndex(t)
		first := record("user123/products/a.png", "image/png", 1, map[string]any{"v": "1"}, base)
		_, err := idx.Insert(ctx, first)
		require.NoError(t, err)

		second := record("user123/products/a.png", "image/webp", 2, map[string]any{"v": "2"}, base.Add(time.Hour))
		saved, err := idx.Insert(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, saved.ID)
		assert.True(t, saved.CreatedAt.Equal(base))
		assert.True(t, saved.UpdatedAt.Equal(base.Add(time.Hour)))
		assert.Equal(t, "image/webp", saved.ContentType)

		all, err := idx.SelectByFilter(ctx, mustFilter(t, assetsync.Eq("file_key", "user123/products/a.png")), assetsync.QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("UpdateReplaceAndMerge", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Insert(ctx, record("user123/products/a.png", "image/png", 1, map[string]any{"a": "1", "b": "2"}, base))
		require.NoError(t, err)

		merged, err := idx.Update(ctx, "user123/products/a.png", assetsync.RecordPatch{
			AdditionalData:      map[string]any{"b": "3", "c": "4"},
			MergeAdditionalData: true,
			UpdatedAt:           base.Add(time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": "1", "b": "3", "c": "4"}, merged.AdditionalData)
		assert.True(t, merged.UpdatedAt.Equal(base.Add(time.Minute)))
		assert.True(t, merged.CreatedAt.Equal(base))

		ct := "image/webp"
		replaced, err := idx.Update(ctx, "user123/products/a.png", assetsync.RecordPatch{
			ContentType:    &ct,
			AdditionalData: map[string]any{"z": "9"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"z": "9"}, replaced.AdditionalData)
		assert.Equal(t, "image/webp", replaced.ContentType)
		require.NotNil(t, replaced.Folder)
		assert.Equal(t, "products", *replaced.Folder)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Update(ctx, "nobody/none.png", assetsync.RecordPatch{AdditionalData: map[string]any{}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, assetsync.ErrMetadataNotFound))
		assert.True(t, assetsync.IsMetadataIndexError(err))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Insert(ctx, record("user123/x.png", "image/png", 1, nil, base))
		require.NoError(t, err)
		require.NoError(t, idx.Delete(ctx, "user123/x.png"))
		require.NoError(t, idx.Delete(ctx, "user123/x.png"))

		_, found, err := idx.SelectByKey(ctx, "user123/x.png")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Filters", func(t *testing.T) {
		idx := newIndex(t)
		seed(t, idx)
		asc := assetsync.QueryOptions{OrderBy: "file_key", Ascending: true}

		tests := []struct {
			name  string
			conds []assetsync.Condition
			want  []string
		}{
			{
				name:  "eq content_type",
				conds: []assetsync.Condition{assetsync.Eq("content_type", "image/png")},
				want:  []string{"user123/banners/home_top.png", "user123/products/1700000000000-shirt.png", "user456/avatar.png"},
			},
			{
				name:  "gt size",
				conds: []assetsync.Condition{assetsync.Gt("size", 1000)},
				want:  []string{"user123/banners/home_top.png", "user123/products/1700000000000-shirt.png"},
			},
			{
				name:  "size range",
				conds: []assetsync.Condition{assetsync.Gte("size", 100), assetsync.Lte("size", 2048)},
				want:  []string{"user123/products/1700000000000-shirt.png", "user123/products/hat.jpg", "user456/avatar.png"},
			},
			{
				name:  "lt size",
				conds: []assetsync.Condition{assetsync.Lt("size", 100)},
				want:  []string{"readme.txt"},
			},
			{
				name:  "in content_type",
				conds: []assetsync.Condition{assetsync.In("content_type", "image/jpeg", "text/plain")},
				want:  []string{"readme.txt", "user123/products/hat.jpg"},
			},
			{
				name:  "eq folder",
				conds: []assetsync.Condition{assetsync.Eq("folder", "products")},
				want:  []string{"user123/products/1700000000000-shirt.png", "user123/products/hat.jpg"},
			},
			{
				name:  "null owner",
				conds: []assetsync.Condition{assetsync.Eq("owner_id", nil)},
				want:  []string{"readme.txt"},
			},
			{
				name:  "null folder excludes comparisons",
				conds: []assetsync.Condition{assetsync.Gte("folder", "a")},
				want:  []string{"user123/banners/home_top.png", "user123/products/1700000000000-shirt.png", "user123/products/hat.jpg"},
			},
			{
				name:  "contains substring",
				conds: []assetsync.Condition{assetsync.Contains("file_key", "shirt")},
				want:  []string{"user123/products/1700000000000-shirt.png"},
			},
			{
				name:  "like prefix",
				conds: []assetsync.Condition{assetsync.Like("file_key", assetsync.PrefixPattern("user123/products/"))},
				want:  []string{"user123/products/1700000000000-shirt.png", "user123/products/hat.jpg"},
			},
			{
				name:  "like escapes underscore",
				conds: []assetsync.Condition{assetsync.Like("file_key", "%"+assetsync.EscapeLikePattern("home_")+"%")},
				want:  []string{"user123/banners/home_top.png"},
			},
			{
				name:  "like is case sensitive",
				conds: []assetsync.Condition{assetsync.Like("file_key", "USER123/%")},
				want:  []string{},
			},
			{
				name:  "json containment",
				conds: []assetsync.Condition{assetsync.Contains("additional_data", map[string]any{"color": "red"})},
				want:  []string{"user123/banners/home_top.png", "user123/products/1700000000000-shirt.png"},
			},
			{
				name:  "json array containment",
				conds: []assetsync.Condition{assetsync.Contains("additional_data", map[string]any{"tags": []any{"sale"}, "rank": 5})},
				want:  []string{"user123/products/1700000000000-shirt.png"},
			},
			{
				name:  "json containment type mismatch",
				conds: []assetsync.Condition{assetsync.Contains("additional_data", map[string]any{"rank": "5"})},
				want:  []string{},
			},
			{
				name:  "json property eq",
				conds: []assetsync.Condition{assetsync.Eq("additional_data.color", "blue")},
				want:  []string{"user123/products/hat.jpg"},
			},
			{
				name:  "json property number as text",
				conds: []assetsync.Condition{assetsync.Eq("additional_data.rank", 5)},
				want:  []string{"user123/products/1700000000000-shirt.png"},
			},
			{
				name:  "json property boolean as text",
				conds: []assetsync.Condition{assetsync.Eq("additional_data.featured", true)},
				want:  []string{"user123/products/hat.jpg"},
			},
			{
				name:  "created_at after",
				conds: []assetsync.Condition{assetsync.Gt("created_at", base.Add(2*time.Minute))},
				want:  []string{"readme.txt", "user456/avatar.png"},
			},
			{
				name:  "combined and",
				conds: []assetsync.Condition{assetsync.Eq("owner_id", "user123"), assetsync.Eq("content_type", "image/png"), assetsync.Lt("size", 3000)},
				want:  []string{"user123/products/1700000000000-shirt.png"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := idx.SelectByFilter(ctx, mustFilter(t, tt.conds...), asc)
				require.NoError(t, err)
				assert.Equal(t, tt.want, keys(got))
			})
		}
	})

	t.Run("OrderingAndPaging", func(t *testing.T) {
		idx := newIndex(t)
		seed(t, idx)

		got, err := idx.SelectByFilter(ctx, assetsync.Filter{}, assetsync.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "readme.txt", got[0].FileKey, "default order is created_at descending")

		got, err = idx.SelectByFilter(ctx, assetsync.Filter{}, assetsync.QueryOptions{OrderBy: "size", Ascending: true, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"user456/avatar.png", "user123/products/hat.jpg"}, keys(got))

		got, err = idx.SelectByFilter(ctx, assetsync.Filter{}, assetsync.QueryOptions{OrderBy: "folder", Ascending: false})
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "user123/products/1700000000000-shirt.png", got[0].FileKey)
		assert.Nil(t, got[3].Folder, "nulls sort last")
		assert.Nil(t, got[4].Folder)

		got, err = idx.SelectByFilter(ctx, assetsync.Filter{}, assetsync.QueryOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ManyKeysIn", func(t *testing.T) {
		idx := newIndex(t)
		var wanted []any
		for i := 0; i < 30; i++ {
			key := fmt.Sprintf("bulk/items/%02d.png", i)
			_, err := idx.Insert(ctx, record(key, "image/png", int64(i), nil, base))
			require.NoError(t, err)
			if i%3 == 0 {
				wanted = append(wanted, key)
			}
		}
		got, err := idx.SelectByFilter(ctx, mustFilter(t, assetsync.In("file_key", wanted...)), assetsync.QueryOptions{OrderBy: "file_key", Ascending: true})
		require.NoError(t, err)
		assert.Len(t, got, 10)
	})
}
