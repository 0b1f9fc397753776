package sqlite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
)

type dialect struct{}

func (dialect) Placeholder(int) string { return "?" }

// JSONText mirrors the ->> operator: booleans render as true or false and
// JSON null becomes SQL NULL.
func (dialect) JSONText(name string) string {
	path := sqlString(`$."` + name + `"`)
	return fmt.Sprintf(`CASE json_type(additional_data, %[1]s) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(additional_data, %[1]s) AS TEXT) END`, path)
}

func (dialect) JSONContains(doc map[string]any, bind func(any) string) (string, error) {
	c := containment{bind: bind}
	return c.object("additional_data", "$", doc)
}

func (dialect) Substring(expr, needle string) string {
	return fmt.Sprintf("instr(%s, %s) > 0", expr, needle)
}

func (dialect) Arg(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatTime(t)
	case uuid.UUID:
		return t.String()
	}
	return v
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// containment compiles a JSON containment test with the same rules as the
// PostgreSQL @> operator: objects match key by key, every element of an
// array must match some element of the stored array, and scalars compare
// by type and value.
type containment struct {
	bind func(any) string
	n    int
}

func (c *containment) object(src, path string, doc map[string]any) (string, error) {
	parts := []string{fmt.Sprintf("json_type(%s, %s) = 'object'", src, sqlString(path))}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.ContainsAny(k, `"\`) {
			return "", &assetsync.ValidationError{Field: "additional_data", Reason: fmt.Sprintf("unsupported property name %q", k)}
		}
		sub := path + `."` + k + `"`
		var (
			p   string
			err error
		)
		switch v := doc[k].(type) {
		case map[string]any:
			p, err = c.object(src, sub, v)
		case []any:
			p, err = c.array(src, sub, v)
		default:
			p, err = c.scalar(
				fmt.Sprintf("json_type(%s, %s)", src, sqlString(sub)),
				fmt.Sprintf("json_extract(%s, %s)", src, sqlString(sub)),
				v)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *containment) array(src, path string, want []any) (string, error) {
	parts := []string{fmt.Sprintf("json_type(%s, %s) = 'array'", src, sqlString(path))}
	for _, elem := range want {
		c.n++
		alias := fmt.Sprintf("j%d", c.n)
		var (
			p   string
			err error
		)
		switch v := elem.(type) {
		case map[string]any:
			p, err = c.object(alias+".value", "$", v)
		case []any:
			p, err = c.array(alias+".value", "$", v)
		default:
			p, err = c.scalar(alias+".type", alias+".atom", v)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s, %s) AS %s WHERE %s)", src, sqlString(path), alias, p))
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *containment) scalar(typeExpr, valueExpr string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return typeExpr + " = 'null'", nil
	case bool:
		return fmt.Sprintf("%s = '%t'", typeExpr, t), nil
	case string:
		return fmt.Sprintf("(%s = 'text' AND %s = %s)", typeExpr, valueExpr, c.bind(t)), nil
	}
	n, ok := number(v)
	if !ok {
		return "", &assetsync.ValidationError{Field: "additional_data", Reason: fmt.Sprintf("unsupported value of type %T", v)}
	}
	return fmt.Sprintf("(%s IN ('integer', 'real') AND %s = %s)", typeExpr, valueExpr, c.bind(n)), nil
}

func number(v any) (any, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		return f, err == nil
	}
	return nil, false
}
