package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
)

const (
	backendName  = "fs"
	objectsDir   = "objects"
	metaDir      = "meta"
	objectSuffix = "@obj"
	metaSuffix   = "@meta.json"
	tmpSuffix    = "@tmp"
)

// Key segments are stored with "%" and "@" percent-encoded, so only leaf
// files carry an "@". A file for key "a/b" can then never sit where key
// "a/b/c" needs a directory.
var (
	segmentEncoder = strings.NewReplacer("%", "%25", "@", "%40")
	segmentDecoder = strings.NewReplacer("%25", "%", "%40", "@")
)

// Backend is a filesystem implementation of the assetsync.BlobStore interface.
// Object bytes live under <BaseDir>/objects/<key>@obj and their attributes in
// a JSON sidecar under <BaseDir>/meta/<key>@meta.json.
type Backend struct {
	mu        sync.RWMutex
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // Prefix for public URLs, e.g. "https://assets.example.com"
}

type sidecar struct {
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	for _, dir := range []string{objectsDir, metaDir} {
		if err := os.MkdirAll(filepath.Join(config.BaseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) objectPath(key string) string {
	return filepath.Join(b.baseDir, objectsDir, encodeKey(key)+objectSuffix)
}

func (b *Backend) metaPath(key string) string {
	return filepath.Join(b.baseDir, metaDir, encodeKey(key)+metaSuffix)
}

func encodeKey(key string) string {
	return filepath.FromSlash(segmentEncoder.Replace(key))
}

func decodeKey(rel string) string {
	return segmentDecoder.Replace(filepath.ToSlash(rel))
}

func tempPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+tmpSuffix)
}

func wrap(op, key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		err = assetsync.ErrObjectNotFound
	}
	return &assetsync.BlobStoreError{Backend: backendName, Op: op, Key: key, Err: err}
}

// Put writes the object to a temporary file, renames it into place and then
// writes its sidecar. If the sidecar cannot be written the key is removed
// entirely, so List and Head never disagree about it.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, contentType string) (*assetsync.PutResult, error) {
	dst := b.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, wrap("put", key, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp := tempPath(dst)
	file, err := os.Create(tmp)
	if err != nil {
		return nil, wrap("put", key, fmt.Errorf("failed to create file: %w", err))
	}
	defer os.Remove(tmp)

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(file, hash), body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, wrap("put", key, fmt.Errorf("failed to write file: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap("put", key, err)
	}

	meta := sidecar{
		ContentType:  contentType,
		ETag:         `"` + hex.EncodeToString(hash.Sum(nil)) + `"`,
		Size:         size,
		LastModified: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.commit(key, tmp, dst, meta); err != nil {
		return nil, wrap("put", key, err)
	}

	return &assetsync.PutResult{ETag: meta.ETag, Location: b.PublicURL(key), Size: size}, nil
}

// commit moves the object file into place and then writes its sidecar.
// Callers hold b.mu.
func (b *Backend) commit(key, tmp, dst string, meta sidecar) error {
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	if err := b.writeMeta(key, meta); err != nil {
		_ = os.Remove(dst)
		_ = os.Remove(b.metaPath(key))
		return err
	}
	return nil
}

// writeMeta replaces the sidecar atomically
func (b *Backend) writeMeta(key string, meta sidecar) error {
	path := b.metaPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create meta directory: %w", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tmp := tempPath(path)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move sidecar into place: %w", err)
	}
	return nil
}

func (b *Backend) readMeta(key string) (sidecar, error) {
	var meta sidecar
	data, err := os.ReadFile(b.metaPath(key))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// Get opens the object file
func (b *Backend) Get(ctx context.Context, key string) (*assetsync.GetResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, err := b.readMeta(key)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	file, err := os.Open(b.objectPath(key))
	if err != nil {
		return nil, wrap("get", key, err)
	}

	return &assetsync.GetResult{
		Body:         file,
		ContentType:  meta.ContentType,
		Size:         meta.Size,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
	}, nil
}

// Delete removes the object and its sidecar. Deleting a missing key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, path := range []string{b.objectPath(key), b.metaPath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return wrap("delete", key, fmt.Errorf("failed to delete file: %w", err))
		}
	}

	b.cleanupEmptyDirectories(filepath.Dir(b.objectPath(key)), filepath.Join(b.baseDir, objectsDir))
	b.cleanupEmptyDirectories(filepath.Dir(b.metaPath(key)), filepath.Join(b.baseDir, metaDir))
	return nil
}

// cleanupEmptyDirectories removes empty directories up to root
func (b *Backend) cleanupEmptyDirectories(dir, root string) {
	if dir == root || !strings.HasPrefix(dir, root) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir), root)
		}
	}
}

// List walks the sidecar tree and returns keys under the prefix in
// lexicographic order.
func (b *Backend) List(ctx context.Context, req assetsync.ListRequest) (*assetsync.ListPage, error) {
	limit := req.MaxItems
	if limit <= 0 || limit > assetsync.DefaultListLimit {
		limit = assetsync.DefaultListLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	root := filepath.Join(b.baseDir, metaDir)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := decodeKey(strings.TrimSuffix(rel, metaSuffix))
		if strings.HasPrefix(key, req.Prefix) && key > req.ContinuationToken {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list", req.Prefix, err)
	}
	sort.Strings(keys)

	page := &assetsync.ListPage{Items: make([]assetsync.ObjectInfo, 0, min(limit, len(keys)))}
	for _, key := range keys {
		if len(page.Items) == limit {
			page.Truncated = true
			page.NextContinuationToken = page.Items[len(page.Items)-1].Key
			break
		}
		meta, err := b.readMeta(key)
		if err != nil {
			return nil, wrap("list", key, err)
		}
		page.Items = append(page.Items, info(key, meta))
	}
	return page, nil
}

// Copy duplicates the object file and its sidecar
func (b *Backend) Copy(ctx context.Context, sourceKey, destKey string) (*assetsync.CopyObjectResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta, err := b.readMeta(sourceKey)
	if err != nil {
		return nil, wrap("copy", sourceKey, err)
	}
	src, err := os.Open(b.objectPath(sourceKey))
	if err != nil {
		return nil, wrap("copy", sourceKey, err)
	}
	defer src.Close()

	dst := b.objectPath(destKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, wrap("copy", destKey, err)
	}
	tmp := tempPath(dst)
	out, err := os.Create(tmp)
	if err != nil {
		return nil, wrap("copy", destKey, err)
	}
	defer os.Remove(tmp)

	_, err = io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, wrap("copy", destKey, err)
	}

	meta.LastModified = time.Now().UTC()
	if err := b.commit(destKey, tmp, dst, meta); err != nil {
		return nil, wrap("copy", destKey, err)
	}

	return &assetsync.CopyObjectResult{ETag: meta.ETag, LastModified: meta.LastModified}, nil
}

// Head reads the sidecar
func (b *Backend) Head(ctx context.Context, key string) (*assetsync.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, err := b.readMeta(key)
	if err != nil {
		return nil, wrap("head", key, err)
	}
	if _, err := os.Stat(b.objectPath(key)); err != nil {
		return nil, wrap("head", key, err)
	}
	obj := info(key, meta)
	return &obj, nil
}

// PublicURL returns the URL prefix joined with key, or a file URL when no
// prefix is configured.
func (b *Backend) PublicURL(key string) string {
	if b.urlPrefix == "" {
		return "file://" + filepath.ToSlash(b.objectPath(key))
	}
	return b.urlPrefix + "/" + key
}

func info(key string, meta sidecar) assetsync.ObjectInfo {
	return assetsync.ObjectInfo{
		Key:          key,
		ContentType:  meta.ContentType,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		ETag:         meta.ETag,
	}
}
