package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
	memoryindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/memory"
	"github.com/tendant/assetsync/pkg/assetsync/objectkey"
	memorystorage "github.com/tendant/assetsync/pkg/assetsync/storage/memory"
	"github.com/tendant/assetsync/pkg/assetsync/urlstrategy"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router  chi.Router
	service assetsync.Service
	store   *memorystorage.Backend
	index   *memoryindex.Index
}

// setupAssetsHandlerTest mounts the handler under /assets over in-memory stores
func setupAssetsHandlerTest(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store: memorystorage.NewWithBaseURL("https://cdn.example.com/"),
		index: memoryindex.New(),
	}
	svc, err := assetsync.New(
		assetsync.WithBlobStore(env.store),
		assetsync.WithMetadataIndex(env.index),
		assetsync.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	env.service = svc

	keys := &objectkey.TimestampGenerator{Now: func() time.Time { return fixedNow }}
	opts = append([]Option{
		WithKeyGenerator(keys),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	handler := NewAssetsHandler(svc, opts...)

	r := chi.NewRouter()
	r.Mount("/assets", handler.Routes())
	env.router = r
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, key, contentType, body string, data map[string]any) {
	t.Helper()
	res, err := e.service.Upload(context.Background(), assetsync.UploadRequest{
		Key:            key,
		Body:           strings.NewReader(body),
		ContentType:    contentType,
		AdditionalData: data,
	})
	require.NoError(t, err)
	require.True(t, res.MetadataSync.Synced())
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestUpload_GeneratesKey(t *testing.T) {
	env := setupAssetsHandlerTest(t)

	req := multipartUpload(t, map[string]string{
		"owner_id":        "user123",
		"folder":          "products",
		"content_type":    "image/png",
		"additional_data": `{"sku":"A-1","price":19.99}`,
	}, "shirt.png", "png-bytes")
	w := env.do(req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[map[string]any](t, w)

	wantKey := "user123/products/1709294400000-shirt.png"
	assert.Equal(t, wantKey, resp["key"])
	assert.Equal(t, "https://cdn.example.com/"+wantKey, resp["url"])
	assert.Equal(t, map[string]any{"state": "synced"}, resp["metadata_sync"])

	meta := resp["metadata"].(map[string]any)
	assert.Equal(t, "user123", meta["owner_id"])
	assert.Equal(t, "products", meta["folder"])
	assert.Equal(t, "image/png", meta["content_type"])
	assert.Equal(t, map[string]any{"sku": "A-1", "price": 19.99}, meta["additional_data"])
}

func TestUpload_ExplicitKey(t *testing.T) {
	env := setupAssetsHandlerTest(t)

	w := env.do(multipartUpload(t, map[string]string{"key": "u1/docs/report.pdf"}, "ignored.pdf", "%PDF"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	obj, err := env.store.Head(context.Background(), "u1/docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(4), obj.Size)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
	}{
		{"missing file", map[string]string{"owner_id": "u1"}, ""},
		{"no key and no owner", map[string]string{}, "a.txt"},
		{"bad additional data", map[string]string{"owner_id": "u1", "additional_data": "[1,2]"}, "a.txt"},
		{"bad key", map[string]string{"key": "/abs/path.txt"}, "a.txt"},
		{"bad content type", map[string]string{"owner_id": "u1", "content_type": "not a type"}, "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupAssetsHandlerTest(t)
			w := env.do(multipartUpload(t, tt.fields, tt.fileName, "data"))

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "validation_error", decode[ErrorResponse](t, w).Code)
			assert.Equal(t, 0, env.index.Len())
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := setupAssetsHandlerTest(t, WithMaxUploadBytes(64))

	w := env.do(multipartUpload(t, map[string]string{"owner_id": "u1"}, "big.bin", strings.Repeat("x", 1024)))

	assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, w.Code)
	assert.Equal(t, 0, env.index.Len())
}

func TestList(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/a.txt", "text/plain", "a", nil)
	env.seed(t, "u1/docs/b.txt", "text/plain", "b", nil)
	env.seed(t, "u2/docs/c.txt", "text/plain", "c", nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/assets?prefix=u1/&max_items=1", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	page := decode[assetsync.ListResult](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u1/docs/a.txt", page.Items[0].Object.Key)
	require.NotNil(t, page.Items[0].Metadata)
	assert.True(t, page.Truncated)

	w = env.do(httptest.NewRequest(http.MethodGet, "/assets?prefix=u1/&max_items=1&continuation_token="+page.NextContinuationToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[assetsync.ListResult](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u1/docs/b.txt", page.Items[0].Object.Key)
}

func TestList_BadMaxItems(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/assets?max_items=lots", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/products/shirt.png", "image/png", "s", map[string]any{"category": "apparel"})
	env.seed(t, "u1/products/mug.png", "image/png", "m", map[string]any{"category": "kitchen"})
	env.seed(t, "u2/docs/readme.txt", "text/plain", "r", nil)

	t.Run("by filter", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPost, "/assets/search", SearchRequest{
			Filters: map[string]any{
				"owner_id": "u1",
				"category": map[string]any{"in": []any{"apparel", "toys"}},
			},
		}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[SearchResponse](t, w)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "u1/products/shirt.png", resp.Items[0].FileKey)
	})

	t.Run("by prefix", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPost, "/assets/search", SearchRequest{
			Prefix:  "u1/products/",
			Options: assetsync.QueryOptions{OrderBy: "file_key", Ascending: true},
		}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[SearchResponse](t, w)
		require.Equal(t, 2, resp.Count)
		assert.Equal(t, "u1/products/mug.png", resp.Items[0].FileKey)
		assert.Equal(t, "u1/products/shirt.png", resp.Items[1].FileKey)
	})

	t.Run("unknown operator", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPost, "/assets/search", SearchRequest{
			Filters: map[string]any{"size": map[string]any{"between": []any{1, 2}}},
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("prefix with filters", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPost, "/assets/search", SearchRequest{
			Prefix:  "u1/",
			Filters: map[string]any{"owner_id": "u1"},
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad order column", func(t *testing.T) {
		w := env.do(jsonRequest(t, http.MethodPost, "/assets/search", SearchRequest{
			Options: assetsync.QueryOptions{OrderBy: "public_url"},
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/assets/search", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDownload(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/hello world.txt", "text/plain", "hello", nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/assets/u1/docs/hello%20world.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "5", w.Header().Get("Content-Length"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = env.do(httptest.NewRequest(http.MethodGet, "/assets/u1/docs/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Code)
}

func TestGetMetadata(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/a.txt", "text/plain", "abc", map[string]any{"lang": "en"})

	w := env.do(httptest.NewRequest(http.MethodGet, "/assets/metadata/u1/docs/a.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	details := decode[assetsync.ObjectDetails](t, w)
	assert.Equal(t, int64(3), details.Object.Size)
	require.NotNil(t, details.Metadata)
	assert.Equal(t, "en", details.Metadata.AdditionalData["lang"])

	// A blob without a record still answers, with null metadata.
	_, err := env.store.Put(context.Background(), "u1/docs/orphan.txt", strings.NewReader("x"), "text/plain")
	require.NoError(t, err)
	w = env.do(httptest.NewRequest(http.MethodGet, "/assets/metadata/u1/docs/orphan.txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[assetsync.ObjectDetails](t, w).Metadata)
}

func TestUpdateMetadata(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/a.txt", "text/plain", "abc", map[string]any{"lang": "en", "draft": true})

	w := env.do(jsonRequest(t, http.MethodPatch, "/assets/metadata/u1/docs/a.txt", assetsync.MetadataUpdate{
		AdditionalData: map[string]any{"draft": false},
		Merge:          true,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[assetsync.Record](t, w)
	assert.Equal(t, map[string]any{"lang": "en", "draft": false}, rec.AdditionalData)

	w = env.do(jsonRequest(t, http.MethodPatch, "/assets/metadata/u1/docs/missing.txt", assetsync.MetadataUpdate{
		AdditionalData: map[string]any{"x": 1},
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResync(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	_, err := env.store.Put(context.Background(), "u1/docs/orphan.txt", strings.NewReader("orphan"), "text/plain")
	require.NoError(t, err)

	w := env.do(httptest.NewRequest(http.MethodPost, "/assets/resync/u1/docs/orphan.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[assetsync.Record](t, w)
	assert.Equal(t, "u1/docs/orphan.txt", rec.FileKey)
	assert.Equal(t, int64(6), rec.Size)

	w = env.do(jsonRequest(t, http.MethodPost, "/assets/resync/u1/docs/orphan.txt", ResyncRequest{
		AdditionalData: map[string]any{"restored": true},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode[assetsync.Record](t, w).AdditionalData["restored"])

	w = env.do(httptest.NewRequest(http.MethodPost, "/assets/resync/u1/docs/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCopy(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/a.txt", "text/plain", "abc", map[string]any{"lang": "en"})

	w := env.do(jsonRequest(t, http.MethodPost, "/assets/copy", CopyRequest{
		SourceKey: "u1/docs/a.txt",
		DestKey:   "u2/archive/a.txt",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := decode[map[string]any](t, w)
	assert.Equal(t, map[string]any{"state": "synced"}, result["metadata_sync"])

	rec, found, err := env.index.SelectByKey(context.Background(), "u2/archive/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u2", *rec.OwnerID)
	assert.Equal(t, "en", rec.AdditionalData["lang"])

	w = env.do(jsonRequest(t, http.MethodPost, "/assets/copy", CopyRequest{
		SourceKey: "u1/docs/missing.txt",
		DestKey:   "u2/archive/missing.txt",
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "u1/docs/a.txt", "text/plain", "abc", nil)

	w := env.do(httptest.NewRequest(http.MethodDelete, "/assets/u1/docs/a.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[map[string]any](t, w)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 0, env.index.Len())

	_, err := env.store.Head(context.Background(), "u1/docs/a.txt")
	assert.True(t, assetsync.IsNotFound(err))
}

func TestDownloadURL(t *testing.T) {
	env := setupAssetsHandlerTest(t, WithURLStrategy(urlstrategy.NewAPIRoutedStrategy("https://api.example.com/api/v1")))
	env.seed(t, "u1/docs/a b.txt", "text/plain", "abc", nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/assets/url/u1/docs/a%20b.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[DownloadURLResponse](t, w)
	assert.Equal(t, "u1/docs/a b.txt", resp.Key)
	assert.Equal(t, "https://api.example.com/api/v1/assets/u1/docs/a%20b.txt", resp.URL)

	w = env.do(httptest.NewRequest(http.MethodGet, "/assets/url/u1/docs/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadURL_DisabledWithoutStrategy(t *testing.T) {
	env := setupAssetsHandlerTest(t)
	env.seed(t, "url/a.txt", "text/plain", "abc", nil)

	// Without a strategy the path is an ordinary object key.
	w := env.do(httptest.NewRequest(http.MethodGet, "/assets/url/a.txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &assetsync.ValidationError{Field: "key", Reason: "bad"}, http.StatusBadRequest},
		{"missing object", &assetsync.BlobStoreError{Backend: "s3", Op: "get", Key: "k", Err: assetsync.ErrObjectNotFound}, http.StatusNotFound},
		{"missing record", &assetsync.MetadataIndexError{Backend: "postgres", Op: "update", Key: "k", Err: assetsync.ErrMetadataNotFound}, http.StatusNotFound},
		{"blob outage", &assetsync.BlobStoreError{Backend: "s3", Op: "put", Key: "k", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway},
		{"index outage", &assetsync.MetadataIndexError{Backend: "postgres", Op: "select", Err: assetsync.ErrIndexUnavailable}, http.StatusServiceUnavailable},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"other", io.ErrClosedPipe, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}
