package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/objectkey"
	"github.com/tendant/assetsync/pkg/assetsync/urlstrategy"
)

// maxMemory is the part of a multipart upload kept in memory before
// spilling to temporary files.
const maxMemory = 32 << 20

// AssetsHandler serves the asset API over an assetsync.Service
type AssetsHandler struct {
	service        assetsync.Service
	keys           objectkey.Generator
	urls           urlstrategy.Strategy
	logger         *slog.Logger
	maxUploadBytes int64
}

// Option configures an AssetsHandler
type Option func(*AssetsHandler)

// WithKeyGenerator sets how keys are built for uploads that do not name one
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(h *AssetsHandler) {
		h.keys = g
	}
}

// WithURLStrategy enables the download URL route
func WithURLStrategy(s urlstrategy.Strategy) Option {
	return func(h *AssetsHandler) {
		h.urls = s
	}
}

// WithLogger sets the request error logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *AssetsHandler) {
		h.logger = logger
	}
}

// WithMaxUploadBytes limits upload bodies. Zero disables the limit.
func WithMaxUploadBytes(n int64) Option {
	return func(h *AssetsHandler) {
		h.maxUploadBytes = n
	}
}

func NewAssetsHandler(service assetsync.Service, opts ...Option) *AssetsHandler {
	h := &AssetsHandler{
		service: service,
		keys:    objectkey.NewTimestampGenerator(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for asset endpoints. Object keys are taken
// from the rest of the path, so they may contain slashes.
func (h *AssetsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(RequestSizeLimit(h.maxUploadBytes)).Post("/", h.Upload)
	r.Get("/", h.List)
	r.Post("/search", h.Search)
	r.Post("/copy", h.Copy)

	r.Get("/metadata/*", h.GetMetadata)
	r.Patch("/metadata/*", h.UpdateMetadata)
	r.Post("/resync/*", h.Resync)
	if h.urls != nil {
		r.Get("/url/*", h.DownloadURL)
	}

	r.Get("/*", h.Download)
	r.Delete("/*", h.Delete)
	return r
}

// keyParam returns the object key from the wildcard route segment.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return key, nil
	}
	unescaped, err := url.PathUnescape(key)
	if err != nil {
		return "", badRequest("key", "is not a valid escaped path")
	}
	return unescaped, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("body", "is required")
		}
		return badRequest("body", err.Error())
	}
	return nil
}

// Upload stores a multipart file. Form fields: file, key, owner_id, folder,
// content_type and additional_data (a JSON object). Without a key one is
// generated from owner_id, folder and the file name.
func (h *AssetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, "Upload too large", err)
			return
		}
		h.writeError(w, r, "Invalid multipart form", badRequest("body", err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, "Missing file", badRequest("file", "is required"))
		return
	}
	defer file.Close()

	key := r.FormValue("key")
	if key == "" {
		key, err = h.keys.GenerateKey(objectkey.KeyMetadata{
			FileName: header.Filename,
			OwnerID:  r.FormValue("owner_id"),
			Folder:   r.FormValue("folder"),
		})
		if err != nil {
			h.writeError(w, r, "Failed to generate key", err)
			return
		}
	}

	var data map[string]any
	if raw := r.FormValue("additional_data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			h.writeError(w, r, "Invalid additional_data", badRequest("additional_data", "must be a JSON object"))
			return
		}
	}

	contentType := r.FormValue("content_type")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	result, err := h.service.Upload(r.Context(), assetsync.UploadRequest{
		Key:            key,
		Body:           file,
		ContentType:    contentType,
		AdditionalData: data,
	})
	if err != nil {
		h.writeError(w, r, "Failed to upload object", err)
		return
	}

	h.logger.Info("Object uploaded", "key", result.Key, "size", result.Size, "metadata", result.MetadataSync.State)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// List returns a page of objects under a prefix with their metadata
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := assetsync.ListRequest{
		Prefix:            q.Get("prefix"),
		ContinuationToken: q.Get("continuation_token"),
	}
	if raw := q.Get("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, "Invalid max_items", badRequest("max_items", "must be a non-negative integer"))
			return
		}
		req.MaxItems = n
	}

	result, err := h.service.List(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "Failed to list objects", err)
		return
	}
	render.JSON(w, r, result)
}

// SearchRequest selects records by filter or by key prefix. Prefix and
// Filters are mutually exclusive.
type SearchRequest struct {
	Filters map[string]any         `json:"filters"`
	Prefix  string                 `json:"prefix,omitempty"`
	Options assetsync.QueryOptions `json:"options"`
}

// SearchResponse wraps search results
type SearchResponse struct {
	Items []assetsync.Record `json:"items"`
	Count int                `json:"count"`
}

// Search queries the metadata index
func (h *AssetsHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Failed to decode request", err)
		return
	}
	if req.Prefix != "" && len(req.Filters) > 0 {
		h.writeError(w, r, "Invalid search", badRequest("prefix", "cannot be combined with filters"))
		return
	}

	var (
		records []assetsync.Record
		err     error
	)
	if req.Prefix != "" {
		records, err = h.service.SearchByPrefix(r.Context(), req.Prefix, req.Options)
	} else {
		var f assetsync.Filter
		f, err = assetsync.ParseFilter(req.Filters)
		if err == nil {
			records, err = h.service.Search(r.Context(), f, req.Options)
		}
	}
	if err != nil {
		h.writeError(w, r, "Failed to search metadata", err)
		return
	}
	render.JSON(w, r, SearchResponse{Items: records, Count: len(records)})
}

// CopyRequest names the source and destination keys of a copy
type CopyRequest struct {
	SourceKey string `json:"source_key"`
	DestKey   string `json:"dest_key"`
}

// Copy duplicates an object and its metadata
func (h *AssetsHandler) Copy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Failed to decode request", err)
		return
	}

	result, err := h.service.Copy(r.Context(), req.SourceKey, req.DestKey)
	if err != nil {
		h.writeError(w, r, "Failed to copy object", err)
		return
	}

	h.logger.Info("Object copied", "source_key", result.SourceKey, "dest_key", result.DestKey, "metadata", result.MetadataSync.State)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Download streams the object bytes
func (h *AssetsHandler) Download(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	obj, err := h.service.Download(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "Failed to download object", err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", strings.Trim(obj.ETag, `"`)))
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("Download interrupted", "key", key, "error", err)
	}
}

// GetMetadata returns blob attributes merged with the metadata record
func (h *AssetsHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	details, err := h.service.GetObjectMetadata(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "Failed to get object metadata", err)
		return
	}
	render.JSON(w, r, details)
}

// UpdateMetadata patches the content type or additional data of a record
func (h *AssetsHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	var update assetsync.MetadataUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.writeError(w, r, "Failed to decode request", err)
		return
	}

	rec, err := h.service.UpdateMetadata(r.Context(), key, update)
	if err != nil {
		h.writeError(w, r, "Failed to update metadata", err)
		return
	}
	render.JSON(w, r, rec)
}

// ResyncRequest optionally replaces the additional data while resyncing
type ResyncRequest struct {
	AdditionalData map[string]any `json:"additional_data"`
}

// Resync rebuilds the record for an object from the blob store. The body
// is optional.
func (h *AssetsHandler) Resync(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	var req ResyncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, r, "Failed to decode request", badRequest("body", err.Error()))
			return
		}
	}

	rec, err := h.service.ResyncMetadata(r.Context(), key, req.AdditionalData)
	if err != nil {
		h.writeError(w, r, "Failed to resync metadata", err)
		return
	}
	h.logger.Info("Metadata resynced", "key", key)
	render.JSON(w, r, rec)
}

// DownloadURLResponse carries a link clients can fetch the object from
type DownloadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// DownloadURL returns a download link for an existing object. For S3 the
// link is presigned.
func (h *AssetsHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	if _, err := h.service.GetObjectMetadata(r.Context(), key); err != nil {
		h.writeError(w, r, "Failed to get object", err)
		return
	}
	link, err := h.urls.DownloadURL(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "Failed to build download URL", err)
		return
	}
	render.JSON(w, r, DownloadURLResponse{Key: key, URL: link})
}

// Delete removes an object and its record
func (h *AssetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.writeError(w, r, "Invalid key", err)
		return
	}

	result, err := h.service.Delete(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "Failed to delete object", err)
		return
	}
	h.logger.Info("Object deleted", "key", key, "metadata", result.MetadataSync.State)
	render.JSON(w, r, result)
}
