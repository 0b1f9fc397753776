package memory

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
	"golang.org/x/exp/constraints"
)

func matchesAll(rec assetsync.Record, conds []assetsync.Condition) bool {
	for _, c := range conds {
		if !matches(rec, c) {
			return false
		}
	}
	return true
}

// fieldValue returns the value of field as string, int64, time.Time,
// uuid.UUID or map[string]any. ok is false when the value is SQL NULL.
func fieldValue(rec assetsync.Record, field string) (any, bool) {
	switch field {
	case "id":
		return rec.ID, true
	case "file_key":
		return rec.FileKey, true
	case "file_path":
		return rec.FilePath, true
	case "public_url":
		return rec.PublicURL, true
	case "content_type":
		return rec.ContentType, true
	case "size":
		return rec.Size, true
	case "owner_id":
		if rec.OwnerID == nil {
			return nil, false
		}
		return *rec.OwnerID, true
	case "folder":
		if rec.Folder == nil {
			return nil, false
		}
		return *rec.Folder, true
	case "additional_data":
		if rec.AdditionalData == nil {
			return map[string]any{}, true
		}
		return rec.AdditionalData, true
	case "created_at":
		return rec.CreatedAt, true
	case "updated_at":
		return rec.UpdatedAt, true
	}

	name, ok := assetsync.JSONFieldName(field)
	if !ok {
		return nil, false
	}
	v, ok := rec.AdditionalData[name]
	if !ok || v == nil {
		return nil, false
	}
	if s, ok := assetsync.JSONScalarText(v); ok {
		return s, true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return string(data), true
}

func matches(rec assetsync.Record, c assetsync.Condition) bool {
	have, present := fieldValue(rec, c.Field)
	if c.Op == assetsync.OpEq && c.Value == nil {
		return !present
	}
	if !present {
		return false
	}

	switch c.Op {
	case assetsync.OpEq, assetsync.OpGt, assetsync.OpLt, assetsync.OpGte, assetsync.OpLte:
		cmp, ok := compareValues(have, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case assetsync.OpEq:
			return cmp == 0
		case assetsync.OpGt:
			return cmp > 0
		case assetsync.OpLt:
			return cmp < 0
		case assetsync.OpGte:
			return cmp >= 0
		default:
			return cmp <= 0
		}
	case assetsync.OpIn:
		for _, v := range c.Value.([]any) {
			if cmp, ok := compareValues(have, v); ok && cmp == 0 {
				return true
			}
		}
		return false
	case assetsync.OpContains:
		if doc, ok := have.(map[string]any); ok {
			return jsonContains(doc, c.Value)
		}
		s, _ := have.(string)
		return strings.Contains(s, c.Value.(string))
	case assetsync.OpLike:
		s, _ := have.(string)
		return likeMatch(c.Value.(string), s)
	}
	return false
}

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues compares two values of the same normalized type. ok is
// false when the types differ.
func compareValues(a, b any) (cmp int, ok bool) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return compareOrdered(av, bv), true
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareOrdered(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case uuid.UUID:
		if bv, ok := b.(uuid.UUID); ok {
			return compareOrdered(av.String(), bv.String()), true
		}
	}
	return 0, false
}

// less orders records by column with nulls last in either direction, then
// by file key.
func less(a, b assetsync.Record, opts assetsync.QueryOptions) bool {
	av, aok := fieldValue(a, opts.OrderBy)
	bv, bok := fieldValue(b, opts.OrderBy)
	switch {
	case aok && !bok:
		return true
	case !aok && bok:
		return false
	case aok && bok:
		if cmp, ok := compareValues(av, bv); ok && cmp != 0 {
			if opts.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
	}
	return a.FileKey < b.FileKey
}

func jsonContains(have, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			hv, ok := h[k]
			if !ok || !jsonContains(hv, wv) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok {
			return false
		}
		for _, wv := range w {
			found := false
			for _, hv := range h {
				if jsonContains(hv, wv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return jsonScalarEqual(have, want)
}

func jsonScalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var likeCache sync.Map

// likeMatch reports whether s matches a SQL LIKE pattern with backslash
// escapes. Matching is case-sensitive.
func likeMatch(pattern, s string) bool {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(s)
	}

	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(`.*`)
		case r == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)

	re := regexp.MustCompile(b.String())
	likeCache.Store(pattern, re)
	return re.MatchString(s)
}
