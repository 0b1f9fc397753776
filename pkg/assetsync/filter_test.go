package assetsync_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
)

func TestNewFilterNormalizesValues(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	f, err := assetsync.NewFilter(
		assetsync.Gt("size", 10),
		assetsync.Lt("created_at", ts),
		assetsync.Eq("id", id.String()),
		assetsync.In("size", []int{1, 2}),
		assetsync.Eq("additional_data.rank", 5),
		assetsync.Eq("additional_data.featured", false),
	)
	require.NoError(t, err)
	conds := f.Conditions()
	require.Len(t, conds, 6)

	assert.Equal(t, int64(10), conds[0].Value)
	assert.Equal(t, ts.UTC(), conds[1].Value)
	assert.Equal(t, time.UTC, conds[1].Value.(time.Time).Location())
	assert.Equal(t, id, conds[2].Value)
	assert.Equal(t, []any{int64(1), int64(2)}, conds[3].Value)
	assert.Equal(t, "5", conds[4].Value)
	assert.Equal(t, "false", conds[5].Value)
}

func TestNewFilterRejects(t *testing.T) {
	tests := []struct {
		name string
		cond assetsync.Condition
	}{
		{"unknown field", assetsync.Eq("colour", "red")},
		{"bad json property name", assetsync.Eq("additional_data.a.b", "x")},
		{"unknown operator", assetsync.Condition{Field: "size", Op: "between", Value: 1}},
		{"like on integer", assetsync.Like("size", "1%")},
		{"gt on uuid", assetsync.Gt("id", uuid.NewString())},
		{"contains on time", assetsync.Contains("created_at", "2024")},
		{"eq on whole json", assetsync.Eq("additional_data", map[string]any{})},
		{"null on non-nullable", assetsync.Eq("content_type", nil)},
		{"string for integer", assetsync.Eq("size", "big")},
		{"fractional integer", assetsync.Eq("size", 1.5)},
		{"integer above int64", assetsync.Gt("size", 1e19)},
		{"integer below int64", assetsync.Lt("size", -1e19)},
		{"json number above int64", assetsync.Gte("size", json.Number("10000000000000000000"))},
		{"bad timestamp", assetsync.Gt("created_at", "yesterday")},
		{"bad uuid", assetsync.Eq("id", "not-a-uuid")},
		{"empty in", assetsync.In("content_type")},
		{"json contains needs object", assetsync.Contains("additional_data", "red")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assetsync.NewFilter(tt.cond)
			require.Error(t, err)
			assert.True(t, assetsync.IsValidation(err), "got %v", err)
		})
	}
}

func TestNullableEq(t *testing.T) {
	f, err := assetsync.NewFilter(assetsync.Eq("owner_id", nil), assetsync.Eq("folder", nil))
	require.NoError(t, err)
	for _, c := range f.Conditions() {
		assert.Nil(t, c.Value)
	}
}

func TestParseFilter(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"content_type": "image/png",
		"size": {"gte": 1024},
		"additional_data": {"contains": {"color": "red"}},
		"additional_data.tag": {"in": ["a", "b"]},
		"created_at": {"lt": "2024-06-01T00:00:00Z"}
	}`), &raw))

	f, err := assetsync.ParseFilter(raw)
	require.NoError(t, err)
	conds := f.Conditions()
	require.Len(t, conds, 5)

	// fields are sorted for a deterministic query
	assert.Equal(t, "additional_data", conds[0].Field)
	assert.Equal(t, assetsync.OpContains, conds[0].Op)
	assert.Equal(t, map[string]any{"color": "red"}, conds[0].Value)
	assert.Equal(t, "additional_data.tag", conds[1].Field)
	assert.Equal(t, []any{"a", "b"}, conds[1].Value)
	assert.Equal(t, "content_type", conds[2].Field)
	assert.Equal(t, assetsync.OpEq, conds[2].Op)
	assert.Equal(t, "created_at", conds[3].Field)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), conds[3].Value)
	assert.Equal(t, "size", conds[4].Field)
	assert.Equal(t, int64(1024), conds[4].Value)
}

func TestParseFilterRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown operator", map[string]any{"size": map[string]any{"between": 1}}},
		{"two operators", map[string]any{"size": map[string]any{"gt": 1, "lt": 5}}},
		{"empty operator object", map[string]any{"size": map[string]any{}}},
		{"unknown field", map[string]any{"name": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assetsync.ParseFilter(tt.raw)
			require.Error(t, err)
			assert.True(t, assetsync.IsValidation(err))
		})
	}
}

func TestParseOperator(t *testing.T) {
	for _, name := range []string{"eq", "gt", "lt", "gte", "lte", "in", "contains", "like"} {
		op, err := assetsync.ParseOperator(name)
		require.NoError(t, err)
		assert.Equal(t, assetsync.Operator(name), op)
	}
	_, err := assetsync.ParseOperator("EQ")
	assert.Error(t, err)
}

func TestParseFilterRejectsOutOfRangeSize(t *testing.T) {
	for _, raw := range []string{`{"size":{"gt":1e19}}`, `{"size":{"lt":-1e19}}`, `{"size":9223372036854775808}`} {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		_, err := assetsync.ParseFilter(m)
		assert.True(t, assetsync.IsValidation(err), "%s: got %v", raw, err)
	}

	f, err := assetsync.ParseFilter(map[string]any{"size": map[string]any{"lte": float64(1 << 53)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53), f.Conditions()[0].Value)
}
