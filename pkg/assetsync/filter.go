package assetsync

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operator is one of the closed set of comparison operators a filter
// condition may use.
type Operator string

const (
	OpEq       Operator = "eq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpLike     Operator = "like"
)

var operators = map[Operator]struct{}{
	OpEq: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {}, OpIn: {}, OpContains: {}, OpLike: {},
}

// ParseOperator converts a wire operator name into an Operator.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if _, ok := operators[op]; !ok {
		return "", newValidationError("filter", "unknown operator %q", s)
	}
	return op, nil
}

// FieldKind is the value type of a filterable record field.
type FieldKind int

const (
	KindText FieldKind = iota + 1
	KindInteger
	KindTime
	KindUUID
	// KindJSON is the whole additional_data document.
	KindJSON
	// KindJSONField is one top-level additional_data property, compared as text.
	KindJSONField
)

// JSONFieldPrefix selects a single additional_data property in a filter,
// for example "additional_data.color".
const JSONFieldPrefix = "additional_data."

var recordFields = map[string]FieldKind{
	"id":              KindUUID,
	"file_key":        KindText,
	"file_path":       KindText,
	"public_url":      KindText,
	"content_type":    KindText,
	"size":            KindInteger,
	"owner_id":        KindText,
	"folder":          KindText,
	"additional_data": KindJSON,
	"created_at":      KindTime,
	"updated_at":      KindTime,
}

var nullableFields = map[string]bool{"owner_id": true, "folder": true}

var allowedOps = map[FieldKind]map[Operator]bool{
	KindText:      {OpEq: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true, OpIn: true, OpContains: true, OpLike: true},
	KindInteger:   {OpEq: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true, OpIn: true},
	KindTime:      {OpEq: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true},
	KindUUID:      {OpEq: true, OpIn: true},
	KindJSON:      {OpContains: true},
	KindJSONField: {OpEq: true, OpIn: true, OpContains: true, OpLike: true},
}

var jsonFieldName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LookupField returns the kind of a filterable field.
func LookupField(field string) (FieldKind, bool) {
	if kind, ok := recordFields[field]; ok {
		return kind, true
	}
	if _, ok := JSONFieldName(field); ok {
		return KindJSONField, true
	}
	return 0, false
}

// JSONFieldName extracts the property name from an "additional_data.<name>" field.
func JSONFieldName(field string) (string, bool) {
	name, ok := strings.CutPrefix(field, JSONFieldPrefix)
	if !ok || !jsonFieldName.MatchString(name) {
		return "", false
	}
	return name, true
}

// IsNullable reports whether field may hold SQL NULL.
func IsNullable(field string) bool {
	return nullableFields[field]
}

// Condition binds an operator and a literal to a record field.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

func Eq(field string, value any) Condition  { return Condition{Field: field, Op: OpEq, Value: value} }
func Gt(field string, value any) Condition  { return Condition{Field: field, Op: OpGt, Value: value} }
func Lt(field string, value any) Condition  { return Condition{Field: field, Op: OpLt, Value: value} }
func Gte(field string, value any) Condition { return Condition{Field: field, Op: OpGte, Value: value} }
func Lte(field string, value any) Condition { return Condition{Field: field, Op: OpLte, Value: value} }

// In matches records whose field equals any of values. A single slice
// argument is expanded.
func In(field string, values ...any) Condition {
	if len(values) == 1 {
		if expanded, err := toSlice(values[0]); err == nil {
			return Condition{Field: field, Op: OpIn, Value: expanded}
		}
	}
	return Condition{Field: field, Op: OpIn, Value: values}
}

// Contains is a substring match on text fields and a containment match on
// additional_data.
func Contains(field string, value any) Condition {
	return Condition{Field: field, Op: OpContains, Value: value}
}

// Like is a case-sensitive SQL LIKE match using % and _ wildcards and a
// backslash escape.
func Like(field string, pattern string) Condition {
	return Condition{Field: field, Op: OpLike, Value: pattern}
}

// Filter is a validated conjunction of conditions. The zero Filter matches
// every record.
type Filter struct {
	conditions []Condition
}

// NewFilter validates conds and normalizes their values. Unknown fields,
// operators outside the closed set, operators the field does not support,
// and values of the wrong type are rejected.
func NewFilter(conds ...Condition) (Filter, error) {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		nc, err := c.normalize()
		if err != nil {
			return Filter{}, err
		}
		out = append(out, nc)
	}
	return Filter{conditions: out}, nil
}

// Conditions returns the normalized conditions.
func (f Filter) Conditions() []Condition {
	out := make([]Condition, len(f.conditions))
	copy(out, f.conditions)
	return out
}

// Len returns the number of conditions.
func (f Filter) Len() int {
	return len(f.conditions)
}

// ParseFilter builds a Filter from its decoded JSON form: a map from field
// name to either a literal (meaning eq) or an object with exactly one
// operator key.
func ParseFilter(raw map[string]any) (Filter, error) {
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]Condition, 0, len(raw))
	for _, field := range fields {
		value := raw[field]
		obj, ok := value.(map[string]any)
		if !ok {
			conds = append(conds, Condition{Field: field, Op: OpEq, Value: value})
			continue
		}
		if len(obj) != 1 {
			return Filter{}, newValidationError(field, "operator object must have exactly one key, got %d", len(obj))
		}
		for name, operand := range obj {
			op, err := ParseOperator(name)
			if err != nil {
				return Filter{}, &ValidationError{Field: field, Reason: fmt.Sprintf("unknown operator %q", name)}
			}
			conds = append(conds, Condition{Field: field, Op: op, Value: operand})
		}
	}
	return NewFilter(conds...)
}

func (c Condition) normalize() (Condition, error) {
	if _, ok := operators[c.Op]; !ok {
		return c, newValidationError(c.Field, "unknown operator %q", c.Op)
	}
	kind, ok := LookupField(c.Field)
	if !ok {
		return c, newValidationError(c.Field, "unknown filter field")
	}
	if !allowedOps[kind][c.Op] {
		return c, newValidationError(c.Field, "operator %s is not supported on this field", c.Op)
	}

	switch c.Op {
	case OpIn:
		values, err := toSlice(c.Value)
		if err != nil {
			return c, newValidationError(c.Field, "in: %v", err)
		}
		if len(values) == 0 {
			return c, newValidationError(c.Field, "in: needs at least one value")
		}
		normalized := make([]any, len(values))
		for i, v := range values {
			nv, err := normalizeValue(kind, v)
			if err != nil {
				return c, newValidationError(c.Field, "in: %v", err)
			}
			normalized[i] = nv
		}
		c.Value = normalized
	case OpLike:
		s, ok := c.Value.(string)
		if !ok {
			return c, newValidationError(c.Field, "like: pattern must be a string")
		}
		c.Value = s
	case OpContains:
		if kind == KindJSON {
			obj, ok := c.Value.(map[string]any)
			if !ok {
				return c, newValidationError(c.Field, "contains: value must be an object")
			}
			doc, err := canonicalJSON(obj)
			if err != nil {
				return c, newValidationError(c.Field, "contains: %v", err)
			}
			c.Value = doc
			break
		}
		s, ok := c.Value.(string)
		if !ok {
			return c, newValidationError(c.Field, "contains: value must be a string")
		}
		c.Value = s
	case OpEq:
		if c.Value == nil {
			if !IsNullable(c.Field) {
				return c, newValidationError(c.Field, "eq: null is only allowed on nullable fields")
			}
			return c, nil
		}
		fallthrough
	default:
		v, err := normalizeValue(kind, c.Value)
		if err != nil {
			return c, newValidationError(c.Field, "%s: %v", c.Op, err)
		}
		c.Value = v
	}
	return c, nil
}

// normalizeValue converts v into the canonical Go type for kind: string,
// int64, time.Time (UTC) or uuid.UUID.
func normalizeValue(kind FieldKind, v any) (any, error) {
	switch kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case KindJSONField:
		s, ok := JSONScalarText(v)
		if !ok {
			return nil, fmt.Errorf("expected string, number or boolean, got %T", v)
		}
		return s, nil
	case KindInteger:
		return toInt64(v)
	case KindTime:
		return toTime(v)
	case KindUUID:
		switch t := v.(type) {
		case uuid.UUID:
			return t, nil
		case string:
			id, err := uuid.Parse(t)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid %q", t)
			}
			return id, nil
		}
		return nil, fmt.Errorf("expected uuid, got %T", v)
	}
	return nil, fmt.Errorf("field does not accept literals")
}

// JSONScalarText renders a decoded JSON scalar the way a text extraction of
// a JSON property does: strings verbatim, numbers in shortest form and
// booleans as true or false.
func JSONScalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// canonicalJSON round-trips obj through encoding/json so that nested values
// are limited to map[string]any, []any, string, float64, bool and nil.
func canonicalJSON(obj map[string]any) (map[string]any, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, fmt.Errorf("integer %v is out of range", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp, got %q", t)
		}
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
}

func toSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
