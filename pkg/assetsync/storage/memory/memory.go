package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/assetsync/pkg/assetsync"
)

const backendName = "memory"

type object struct {
	data         []byte
	contentType  string
	etag         string
	lastModified time.Time
}

// Backend is an in-memory implementation of the assetsync.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	now     func() time.Time
}

// New creates a new in-memory storage backend. Public URLs are "memory://<key>".
func New() *Backend {
	return NewWithBaseURL("memory://")
}

// NewWithBaseURL creates an in-memory backend whose public URLs are baseURL
// followed by the key.
func NewWithBaseURL(baseURL string) *Backend {
	return &Backend{
		objects: make(map[string]object),
		baseURL: baseURL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func notFound(op, key string) error {
	return &assetsync.BlobStoreError{Backend: backendName, Op: op, Key: key, Err: assetsync.ErrObjectNotFound}
}

// Put stores a copy of the bytes read from body
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, contentType string) (*assetsync.PutResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &assetsync.BlobStoreError{Backend: backendName, Op: "put", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &assetsync.BlobStoreError{Backend: backendName, Op: "put", Key: key, Err: err}
	}

	sum := md5.Sum(data)
	obj := object{
		data:         data,
		contentType:  contentType,
		etag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		lastModified: b.now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = obj

	return &assetsync.PutResult{
		ETag:     obj.etag,
		Location: b.PublicURL(key),
		Size:     int64(len(data)),
	}, nil
}

// Get returns a reader over the stored bytes
func (b *Backend) Get(ctx context.Context, key string) (*assetsync.GetResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, notFound("get", key)
	}

	return &assetsync.GetResult{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:  obj.contentType,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.lastModified,
	}, nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

// List returns keys under the prefix in lexicographic order. The
// continuation token is the last key of the previous page.
func (b *Backend) List(ctx context.Context, req assetsync.ListRequest) (*assetsync.ListPage, error) {
	limit := req.MaxItems
	if limit <= 0 || limit > assetsync.DefaultListLimit {
		limit = assetsync.DefaultListLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if strings.HasPrefix(key, req.Prefix) && key > req.ContinuationToken {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	page := &assetsync.ListPage{Items: make([]assetsync.ObjectInfo, 0, min(limit, len(keys)))}
	for _, key := range keys {
		if len(page.Items) == limit {
			page.Truncated = true
			page.NextContinuationToken = page.Items[len(page.Items)-1].Key
			break
		}
		page.Items = append(page.Items, b.info(key, b.objects[key]))
	}
	return page, nil
}

// Copy duplicates the stored bytes under destKey
func (b *Backend) Copy(ctx context.Context, sourceKey, destKey string) (*assetsync.CopyObjectResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, exists := b.objects[sourceKey]
	if !exists {
		return nil, notFound("copy", sourceKey)
	}

	dst := src
	dst.data = bytes.Clone(src.data)
	dst.lastModified = b.now()
	b.objects[destKey] = dst

	return &assetsync.CopyObjectResult{ETag: dst.etag, LastModified: dst.lastModified}, nil
}

// Head returns object attributes
func (b *Backend) Head(ctx context.Context, key string) (*assetsync.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, notFound("head", key)
	}
	info := b.info(key, obj)
	return &info, nil
}

// PublicURL returns the base URL joined with key
func (b *Backend) PublicURL(key string) string {
	return b.baseURL + key
}

func (b *Backend) info(key string, obj object) assetsync.ObjectInfo {
	return assetsync.ObjectInfo{
		Key:          key,
		ContentType:  obj.contentType,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
		ETag:         obj.etag,
	}
}
