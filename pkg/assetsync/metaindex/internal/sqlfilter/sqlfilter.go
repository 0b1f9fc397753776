// Package sqlfilter compiles assetsync filters and query options into SQL
// for the relational metadata indexes.
package sqlfilter

import (
	"fmt"
	"strings"

	"github.com/tendant/assetsync/pkg/assetsync"
)

// Dialect supplies the database-specific pieces of a query.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th argument, counting from 1.
	Placeholder(n int) string
	// JSONText returns a text expression for one top-level property of the
	// additional_data column, compared in byte order. name matches
	// [A-Za-z0-9_-]+.
	JSONText(name string) string
	// JSONContains returns a predicate matching rows whose additional_data
	// contains doc.
	JSONContains(doc map[string]any, bind func(any) string) (string, error)
	// Substring returns a predicate matching when needle occurs in expr.
	Substring(expr, needle string) string
	// Arg converts a normalized filter value into a driver argument.
	Arg(v any) any
}

// Builder accumulates bind arguments while a statement is assembled.
type Builder struct {
	d    Dialect
	args []any
}

// New creates a Builder for d.
func New(d Dialect) *Builder {
	return &Builder{d: d}
}

// Bind appends v to the argument list and returns its placeholder.
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, b.d.Arg(v))
	return b.d.Placeholder(len(b.args))
}

// Args returns the bound arguments in order.
func (b *Builder) Args() []any {
	return b.args
}

// Where returns " WHERE ..." for f, or the empty string when f has no conditions.
func (b *Builder) Where(f assetsync.Filter) (string, error) {
	conds := f.Conditions()
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		p, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (b *Builder) expr(field string) (string, assetsync.FieldKind, error) {
	kind, ok := assetsync.LookupField(field)
	if !ok {
		return "", 0, &assetsync.ValidationError{Field: field, Reason: "unknown filter field"}
	}
	if kind == assetsync.KindJSONField {
		name, _ := assetsync.JSONFieldName(field)
		return b.d.JSONText(name), kind, nil
	}
	return field, kind, nil
}

var comparisons = map[assetsync.Operator]string{
	assetsync.OpEq:  "=",
	assetsync.OpGt:  ">",
	assetsync.OpLt:  "<",
	assetsync.OpGte: ">=",
	assetsync.OpLte: "<=",
}

func (b *Builder) condition(c assetsync.Condition) (string, error) {
	expr, kind, err := b.expr(c.Field)
	if err != nil {
		return "", err
	}

	switch c.Op {
	case assetsync.OpEq, assetsync.OpGt, assetsync.OpLt, assetsync.OpGte, assetsync.OpLte:
		if c.Op == assetsync.OpEq && c.Value == nil {
			return expr + " IS NULL", nil
		}
		return fmt.Sprintf("%s %s %s", expr, comparisons[c.Op], b.Bind(c.Value)), nil
	case assetsync.OpIn:
		values, ok := c.Value.([]any)
		if !ok || len(values) == 0 {
			return "", &assetsync.ValidationError{Field: c.Field, Reason: "in: needs at least one value"}
		}
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = b.Bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", expr, strings.Join(marks, ", ")), nil
	case assetsync.OpContains:
		if kind == assetsync.KindJSON {
			doc, ok := c.Value.(map[string]any)
			if !ok {
				return "", &assetsync.ValidationError{Field: c.Field, Reason: "contains: value must be an object"}
			}
			return b.d.JSONContains(doc, b.Bind)
		}
		return b.d.Substring(expr, b.Bind(c.Value)), nil
	case assetsync.OpLike:
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, expr, b.Bind(c.Value)), nil
	}
	return "", &assetsync.ValidationError{Field: c.Field, Reason: fmt.Sprintf("unknown operator %q", c.Op)}
}

// OrderBy returns " ORDER BY ..." for normalized opts. Nulls sort last and
// file_key breaks ties.
func (b *Builder) OrderBy(opts assetsync.QueryOptions) (string, error) {
	if !assetsync.IsOrderColumn(opts.OrderBy) {
		return "", &assetsync.ValidationError{Field: "order_by", Reason: fmt.Sprintf("cannot order by %q", opts.OrderBy)}
	}
	expr, _, err := b.expr(opts.OrderBy)
	if err != nil {
		return "", err
	}
	dir := "DESC"
	if opts.Ascending {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, file_key ASC", expr, dir), nil
}

// Page returns " LIMIT ... OFFSET ..." bound to opts.
func (b *Builder) Page(opts assetsync.QueryOptions) string {
	return fmt.Sprintf(" LIMIT %s OFFSET %s", b.Bind(int64(opts.Limit)), b.Bind(int64(opts.Offset)))
}
