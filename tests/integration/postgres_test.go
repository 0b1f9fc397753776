//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/config"
	"github.com/tendant/assetsync/pkg/assetsync/metaindex/indextest"
	pgindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/postgres"
)

var (
	databaseURL string
	testPool    *pgxpool.Pool
	tableSeq    atomic.Int64
)

// TestMain starts one postgres container for the package. Set DATABASE_URL
// to run against an existing server instead.
func TestMain(m *testing.M) {
	ctx := context.Background()

	databaseURL = os.Getenv("DATABASE_URL")
	var container *pgcontainer.PostgresContainer
	if databaseURL == "" {
		var err error
		container, err = pgcontainer.Run(ctx,
			"postgres:16-alpine",
			pgcontainer.WithDatabase("assets"),
			pgcontainer.WithUsername("assets"),
			pgcontainer.WithPassword("assets"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
		databaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = testcontainers.TerminateContainer(container)
			fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
			os.Exit(1)
		}
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to database: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	if container != nil {
		if err := testcontainers.TerminateContainer(container); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
	}
	os.Exit(code)
}

// newTable returns a unique table name and drops the table after the test
func newTable(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("file_metadata_it_%d", tableSeq.Add(1))
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), "DROP TABLE IF EXISTS "+name)
	})
	return name
}

func TestPostgresIndexContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T) assetsync.MetadataIndex {
		idx := pgindex.NewWithPool(testPool, pgindex.WithTable(newTable(t)))
		require.NoError(t, idx.Migrate(context.Background()))
		return idx
	})
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	idx := pgindex.NewWithPool(testPool, pgindex.WithTable(newTable(t)))
	require.NoError(t, idx.Migrate(context.Background()))
	require.NoError(t, idx.Migrate(context.Background()))
}

func TestPostgresMissingTableIsUnavailable(t *testing.T) {
	idx := pgindex.NewWithPool(testPool, pgindex.WithTable(newTable(t)))
	_, _, err := idx.SelectByKey(context.Background(), "a/b.txt")
	assert.ErrorIs(t, err, assetsync.ErrIndexUnavailable)
}

func TestServiceWithPostgres(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load(
		config.WithFilesystemStorage(t.TempDir(), "https://cdn.example.com"),
		config.WithIndexURL(databaseURL),
		config.WithIndexTable(newTable(t)),
	)
	require.NoError(t, err)

	rt, err := cfg.BuildService(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer rt.Close()
	svc := rt.Service

	up, err := svc.Upload(ctx, assetsync.UploadRequest{
		Key:            "acme/brand/logo.png",
		Body:           bytes.NewReader([]byte("png-bytes")),
		ContentType:    "image/png",
		AdditionalData: map[string]any{"color": "red", "tags": []any{"brand"}},
	})
	require.NoError(t, err)
	require.True(t, up.MetadataSync.Synced())
	assert.Equal(t, "https://cdn.example.com/acme/brand/logo.png", up.Metadata.PublicURL)

	f, err := assetsync.ParseFilter(map[string]any{
		"additional_data.color": "red",
		"size":                  map[string]any{"gte": 9},
	})
	require.NoError(t, err)
	found, err := svc.Search(ctx, f, assetsync.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "acme", *found[0].OwnerID)
	assert.Equal(t, "brand", *found[0].Folder)

	cp, err := svc.Copy(ctx, "acme/brand/logo.png", "acme/archive/logo.png")
	require.NoError(t, err)
	require.True(t, cp.MetadataSync.Synced())

	byPrefix, err := svc.SearchByPrefix(ctx, "acme/", assetsync.QueryOptions{OrderBy: "file_key", Ascending: true})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)
	assert.Equal(t, "acme/archive/logo.png", byPrefix[0].FileKey)

	_, err = svc.Upload(ctx, assetsync.UploadRequest{
		Key:  "acme/brand/logo.png",
		Body: bytes.NewReader([]byte("again")),
	})
	require.NoError(t, err, "re-uploading a key replaces its record")

	del, err := svc.Delete(ctx, "acme/brand/logo.png")
	require.NoError(t, err)
	assert.True(t, del.MetadataSync.Synced())

	details, err := svc.GetObjectMetadata(ctx, "acme/archive/logo.png")
	require.NoError(t, err)
	require.NotNil(t, details.Metadata)
	assert.Equal(t, "red", details.Metadata.AdditionalData["color"])
}
