package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/indextest"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/sqlite"
)

var testTime = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func openIndex(t *testing.T) *sqlite.Index {
	t.Helper()
	ctx := context.Background()
	idx, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Migrate(ctx), "failed to migrate")
	return idx
}

func TestSQLiteIndex(t *testing.T) {
	indextest.Run(t, func(t *testing.T) assetsync.MetadataIndex {
		return openIndex(t)
	})
}

func TestInMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.Open(ctx, ":memory:", sqlite.WithTable("assets"))
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Migrate(ctx))

	rec := assetsync.NewRecord("user1/docs/a.txt", "memory://user1/docs/a.txt", "text/plain", 3, map[string]any{"k": "v"}, testTime)
	_, err = idx.Insert(ctx, rec)
	require.NoError(t, err)

	got, found, err := idx.SelectByKey(ctx, "user1/docs/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", got.AdditionalData["k"])
}

func TestMigrateIsRepeatable(t *testing.T) {
	idx := openIndex(t)
	assert.NoError(t, idx.Migrate(context.Background()))
}

func TestMissingTableIsUnavailable(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer idx.Close()

	_, _, err = idx.SelectByKey(ctx, "a/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, assetsync.ErrIndexUnavailable)
	assert.True(t, assetsync.IsMetadataIndexError(err))
}

func TestNestedContainment(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)

	_, err := idx.Insert(ctx, assetsync.NewRecord("u/f/one.json", "", "application/json", 1, map[string]any{
		"dims":   map[string]any{"w": 10, "h": 20},
		"labels": []any{map[string]any{"name": "cat", "score": 0.9}, "plain"},
		"draft":  nil,
	}, testTime))
	require.NoError(t, err)
	_, err = idx.Insert(ctx, assetsync.NewRecord("u/f/two.json", "", "application/json", 1, map[string]any{
		"dims": map[string]any{"w": 10},
	}, testTime))
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  map[string]any
		want int
	}{
		{"nested object", map[string]any{"dims": map[string]any{"w": 10}}, 2},
		{"nested object both keys", map[string]any{"dims": map[string]any{"w": 10, "h": 20}}, 1},
		{"object inside array", map[string]any{"labels": []any{map[string]any{"name": "cat"}}}, 1},
		{"scalar inside array", map[string]any{"labels": []any{"plain"}}, 1},
		{"json null", map[string]any{"draft": nil}, 1},
		{"no match", map[string]any{"labels": []any{"dog"}}, 0},
		{"property with quote", map[string]any{"it's": "ok"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := assetsync.NewFilter(assetsync.Contains("additional_data", tt.doc))
			require.NoError(t, err)
			got, err := idx.SelectByFilter(ctx, f, assetsync.QueryOptions{})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=busy_timeout(5000)&_pragma=case_sensitive_like(1)", sqlite.DSN(":memory:"))
	assert.Contains(t, sqlite.DSN("/tmp/a.db"), "file:/tmp/a.db?")
	assert.Contains(t, sqlite.DSN("/tmp/a.db"), "journal_mode(WAL)")
}
