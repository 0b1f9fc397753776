package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/internal/sqlfilter"
)

const backendName = "postgres"

// DefaultTable is the table used when no WithTable option is given.
const DefaultTable = "file_metadata"

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Index implements assetsync.MetadataIndex using PostgreSQL
type Index struct {
	db    DBTX
	table string
	name  string
}

// Option configures an Index
type Option func(*Index)

// WithTable sets the table name. A "schema.table" name is quoted per part.
func WithTable(name string) Option {
	return func(x *Index) {
		x.name = name
	}
}

// New creates a new PostgreSQL metadata index
func New(db DBTX, opts ...Option) *Index {
	x := &Index{db: db, name: DefaultTable}
	for _, opt := range opts {
		opt(x)
	}
	x.table = pgx.Identifier(strings.Split(x.name, ".")).Sanitize()
	return x
}

// NewWithPool creates a new PostgreSQL metadata index with connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Index {
	return New(pool, opts...)
}

const columns = `id, file_key, file_path, public_url, content_type, size, owner_id, folder, additional_data, created_at, updated_at`

type dialect struct{}

func (dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (dialect) JSONText(name string) string {
	return fmt.Sprintf(`(additional_data->>'%s') COLLATE "C"`, name)
}

func (dialect) JSONContains(doc map[string]any, bind func(any) string) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("additional_data @> %s::jsonb", bind(string(data))), nil
}

func (dialect) Substring(expr, needle string) string {
	return fmt.Sprintf("strpos(%s, %s) > 0", expr, needle)
}

func (dialect) Arg(v any) any { return v }

// handlePostgresError maps driver errors onto the index error taxonomy
func handlePostgresError(op, key string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			err = fmt.Errorf("%w: %s", assetsync.ErrDuplicateKey, pgErr.ConstraintName)
		case "23502": // not_null_violation
			err = fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			err = fmt.Errorf("%w: table does not exist - database migration required", assetsync.ErrIndexUnavailable)
		default:
			err = fmt.Errorf("database error: %s (code: %s)", pgErr.Message, pgErr.Code)
		}
	} else if errors.Is(err, pgx.ErrNoRows) {
		err = assetsync.ErrMetadataNotFound
	}
	return &assetsync.MetadataIndexError{Backend: backendName, Op: op, Key: key, Err: err}
}

func scanRecord(row pgx.Row) (*assetsync.Record, error) {
	var rec assetsync.Record
	err := row.Scan(
		&rec.ID, &rec.FileKey, &rec.FilePath, &rec.PublicURL, &rec.ContentType, &rec.Size,
		&rec.OwnerID, &rec.Folder, &rec.AdditionalData, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rec.AdditionalData == nil {
		rec.AdditionalData = map[string]any{}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// Insert upserts by file_key, keeping id and created_at of an existing row
func (x *Index) Insert(ctx context.Context, rec assetsync.Record) (*assetsync.Record, error) {
	if rec.FileKey == "" {
		return nil, &assetsync.ValidationError{Field: "file_key", Reason: "must not be empty"}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	data := rec.AdditionalData
	if data == nil {
		data = map[string]any{}
	}

	query := `
		INSERT INTO ` + x.table + ` (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (file_key) DO UPDATE SET
			file_path = EXCLUDED.file_path,
			public_url = EXCLUDED.public_url,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			owner_id = EXCLUDED.owner_id,
			folder = EXCLUDED.folder,
			additional_data = EXCLUDED.additional_data,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + columns

	saved, err := scanRecord(x.db.QueryRow(ctx, query,
		rec.ID, rec.FileKey, rec.FilePath, rec.PublicURL, rec.ContentType, rec.Size,
		rec.OwnerID, rec.Folder, data, rec.CreatedAt, rec.UpdatedAt))
	if err != nil {
		return nil, handlePostgresError("insert", rec.FileKey, err)
	}
	return saved, nil
}

// SelectByKey returns the row for key
func (x *Index) SelectByKey(ctx context.Context, key string) (*assetsync.Record, bool, error) {
	query := `SELECT ` + columns + ` FROM ` + x.table + ` WHERE file_key = $1`
	rec, err := scanRecord(x.db.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, handlePostgresError("select", key, err)
	}
	return rec, true, nil
}

// SelectByFilter compiles f into a WHERE clause
func (x *Index) SelectByFilter(ctx context.Context, f assetsync.Filter, opts assetsync.QueryOptions) ([]assetsync.Record, error) {
	query, args, err := x.selectQuery(f, opts)
	if err != nil {
		return nil, err
	}

	rows, err := x.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("select", "", err)
	}
	defer rows.Close()

	recs := make([]assetsync.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, handlePostgresError("select", "", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("select", "", err)
	}
	return recs, nil
}

func (x *Index) selectQuery(f assetsync.Filter, opts assetsync.QueryOptions) (string, []any, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return "", nil, err
	}
	b := sqlfilter.New(dialect{})
	where, err := b.Where(f)
	if err != nil {
		return "", nil, err
	}
	order, err := b.OrderBy(opts)
	if err != nil {
		return "", nil, err
	}
	query := `SELECT ` + columns + ` FROM ` + x.table + where + order + b.Page(opts)
	return query, b.Args(), nil
}

// Update applies patch in a single statement. A merge uses the jsonb ||
// operator, which merges top-level keys.
func (x *Index) Update(ctx context.Context, key string, patch assetsync.RecordPatch) (*assetsync.Record, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var data any
	if patch.AdditionalData != nil {
		data = patch.AdditionalData
	}

	query := `
		UPDATE ` + x.table + ` SET
			content_type = COALESCE($2, content_type),
			size = COALESCE($3, size),
			public_url = COALESCE($4, public_url),
			additional_data = CASE
				WHEN $5::jsonb IS NULL THEN additional_data
				WHEN $6::boolean THEN additional_data || $5::jsonb
				ELSE $5::jsonb
			END,
			updated_at = $7
		WHERE file_key = $1
		RETURNING ` + columns

	rec, err := scanRecord(x.db.QueryRow(ctx, query,
		key, patch.ContentType, patch.Size, patch.PublicURL, data, patch.MergeAdditionalData, updatedAt))
	if err != nil {
		return nil, handlePostgresError("update", key, err)
	}
	return rec, nil
}

// Delete removes the row for key
func (x *Index) Delete(ctx context.Context, key string) error {
	_, err := x.db.Exec(ctx, `DELETE FROM `+x.table+` WHERE file_key = $1`, key)
	if err != nil {
		return handlePostgresError("delete", key, err)
	}
	return nil
}
