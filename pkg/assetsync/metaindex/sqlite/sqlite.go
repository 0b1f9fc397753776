// Package sqlite implements assetsync.MetadataIndex on SQLite
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/internal/sqlfilter"

	_ "modernc.org/sqlite" // SQLite driver
)

const backendName = "sqlite"

// DefaultTable is the table used when no WithTable option is given.
const DefaultTable = "file_metadata"

// timeFormat is fixed width so that text comparison orders timestamps.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const columns = `id, file_key, file_path, public_url, content_type, size, owner_id, folder, additional_data, created_at, updated_at`

// Index implements assetsync.MetadataIndex using SQLite
type Index struct {
	db    *sql.DB
	table string
	name  string
}

// Option configures an Index
type Option func(*Index)

// WithTable sets the table name
func WithTable(name string) Option {
	return func(x *Index) {
		x.name = name
	}
}

// DSN returns a modernc DSN for path with the pragmas the index relies on:
// case-sensitive LIKE, a busy timeout and WAL journaling.
func DSN(path string) string {
	pragmas := "_pragma=busy_timeout(5000)&_pragma=case_sensitive_like(1)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Open opens the database at path. An in-memory database is pinned to a
// single connection.
func Open(ctx context.Context, path string, opts ...Option) (*Index, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an open database. The connection must have been opened with
// the pragmas from DSN.
func New(db *sql.DB, opts ...Option) *Index {
	x := &Index{db: db, name: DefaultTable}
	for _, opt := range opts {
		opt(x)
	}
	x.table = quoteIdentifier(x.name)
	return x
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func wrap(op, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = assetsync.ErrMetadataNotFound
	} else if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		err = fmt.Errorf("%w: %v", assetsync.ErrDuplicateKey, err)
	} else if strings.Contains(err.Error(), "no such table") {
		err = fmt.Errorf("%w: %v", assetsync.ErrIndexUnavailable, err)
	}
	return &assetsync.MetadataIndexError{Backend: backendName, Op: op, Key: key, Err: err}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*assetsync.Record, error) {
	var rec assetsync.Record
	var id, data, createdAt, updatedAt string
	var ownerID, folder sql.NullString

	err := row.Scan(&id, &rec.FileKey, &rec.FilePath, &rec.PublicURL, &rec.ContentType, &rec.Size,
		&ownerID, &folder, &data, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	if ownerID.Valid {
		rec.OwnerID = &ownerID.String
	}
	if folder.Valid {
		rec.Folder = &folder.String
	}
	rec.AdditionalData = map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &rec.AdditionalData); err != nil {
			return nil, fmt.Errorf("parse additional_data: %w", err)
		}
	}
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
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
	data, err := encodeData(rec.AdditionalData)
	if err != nil {
		return nil, wrap("insert", rec.FileKey, err)
	}

	query := fmt.Sprintf( //nolint:gosec // G201: table name is quoted
		`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_key) DO UPDATE SET
			file_path = excluded.file_path,
			public_url = excluded.public_url,
			content_type = excluded.content_type,
			size = excluded.size,
			owner_id = excluded.owner_id,
			folder = excluded.folder,
			additional_data = excluded.additional_data,
			updated_at = excluded.updated_at
		RETURNING %s`, x.table, columns, columns)

	saved, err := scanRecord(x.db.QueryRowContext(ctx, query,
		rec.ID.String(), rec.FileKey, rec.FilePath, rec.PublicURL, rec.ContentType, rec.Size,
		nullable(rec.OwnerID), nullable(rec.Folder), data, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt)))
	if err != nil {
		return nil, wrap("insert", rec.FileKey, err)
	}
	return saved, nil
}

// SelectByKey returns the row for key
func (x *Index) SelectByKey(ctx context.Context, key string) (*assetsync.Record, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE file_key = ?`, columns, x.table) //nolint:gosec // table name is quoted
	rec, err := scanRecord(x.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("select", key, err)
	}
	return rec, true, nil
}

// SelectByFilter compiles f into a WHERE clause
func (x *Index) SelectByFilter(ctx context.Context, f assetsync.Filter, opts assetsync.QueryOptions) ([]assetsync.Record, error) {
	query, args, err := x.selectQuery(f, opts)
	if err != nil {
		return nil, err
	}

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("select", "", err)
	}
	defer func() { _ = rows.Close() }()

	recs := make([]assetsync.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("select", "", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("select", "", err)
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
	return `SELECT ` + columns + ` FROM ` + x.table + where + order + b.Page(opts), b.Args(), nil
}

// Update reads, patches and writes the row inside one transaction
func (x *Index) Update(ctx context.Context, key string, patch assetsync.RecordPatch) (*assetsync.Record, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("update", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE file_key = ?`, columns, x.table) //nolint:gosec // table name is quoted
	current, err := scanRecord(tx.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, wrap("update", key, err)
	}

	next := patch.Apply(*current)
	data, err := encodeData(next.AdditionalData)
	if err != nil {
		return nil, wrap("update", key, err)
	}

	update := fmt.Sprintf( //nolint:gosec // G201: table name is quoted
		`UPDATE %s
		SET content_type = ?, size = ?, public_url = ?, additional_data = ?, updated_at = ?
		WHERE file_key = ?`, x.table)
	_, err = tx.ExecContext(ctx, update,
		next.ContentType, next.Size, next.PublicURL, data, formatTime(next.UpdatedAt), key)
	if err != nil {
		return nil, wrap("update", key, err)
	}
	saved, err := scanRecord(tx.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, wrap("update", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("update", key, err)
	}
	return saved, nil
}

// Delete removes the row for key
func (x *Index) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_key = ?`, x.table) //nolint:gosec // table name is quoted
	if _, err := x.db.ExecContext(ctx, query, key); err != nil {
		return wrap("delete", key, err)
	}
	return nil
}
