package assetsync

const (
	// DefaultQueryLimit is the page size used when QueryOptions.Limit is zero.
	DefaultQueryLimit = 50
	// MaxQueryLimit caps QueryOptions.Limit.
	MaxQueryLimit = 1000
	// DefaultOrderBy is the sort column used when QueryOptions.OrderBy is empty.
	DefaultOrderBy = "created_at"
)

var orderColumns = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"size":         true,
	"file_key":     true,
	"content_type": true,
	"owner_id":     true,
	"folder":       true,
}

// QueryOptions controls pagination and ordering of metadata searches.
// Results are ordered by OrderBy, then by file_key, with nulls last.
type QueryOptions struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	OrderBy   string `json:"order_by"`
	Ascending bool   `json:"ascending"`
}

// Normalize fills defaults, caps the limit and validates the rest.
func (o QueryOptions) Normalize() (QueryOptions, error) {
	if o.Limit < 0 {
		return o, newValidationError("limit", "must not be negative")
	}
	if o.Limit == 0 {
		o.Limit = DefaultQueryLimit
	}
	if o.Limit > MaxQueryLimit {
		o.Limit = MaxQueryLimit
	}
	if o.Offset < 0 {
		return o, newValidationError("offset", "must not be negative")
	}
	if o.OrderBy == "" {
		o.OrderBy = DefaultOrderBy
	}
	if !orderColumns[o.OrderBy] {
		return o, newValidationError("order_by", "cannot order by %q", o.OrderBy)
	}
	return o, nil
}

// IsOrderColumn reports whether column may be used in QueryOptions.OrderBy.
func IsOrderColumn(column string) bool {
	return orderColumns[column]
}
