package assetsync_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tendant/assetsync/pkg/assetsync"
)

var errInjected = errors.New("injected failure")

// callLog records the order of backend calls across both stores.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type faultyBlobs struct {
	assetsync.BlobStore
	log  *callLog
	fail map[string]bool
}

func (b *faultyBlobs) Put(ctx context.Context, key string, r io.Reader, contentType string) (*assetsync.PutResult, error) {
	b.log.add("blob.put")
	if b.fail["put"] {
		return nil, errInjected
	}
	return b.BlobStore.Put(ctx, key, r, contentType)
}

func (b *faultyBlobs) Delete(ctx context.Context, key string) error {
	b.log.add("blob.delete")
	if b.fail["delete"] {
		return errInjected
	}
	return b.BlobStore.Delete(ctx, key)
}

func (b *faultyBlobs) Copy(ctx context.Context, src, dst string) (*assetsync.CopyObjectResult, error) {
	b.log.add("blob.copy")
	if b.fail["copy"] {
		return nil, errInjected
	}
	return b.BlobStore.Copy(ctx, src, dst)
}

func (b *faultyBlobs) List(ctx context.Context, req assetsync.ListRequest) (*assetsync.ListPage, error) {
	b.log.add("blob.list")
	if b.fail["list"] {
		return nil, errInjected
	}
	return b.BlobStore.List(ctx, req)
}

type faultyIndex struct {
	assetsync.MetadataIndex
	log  *callLog
	fail map[string]bool
}

func (x *faultyIndex) Insert(ctx context.Context, rec assetsync.Record) (*assetsync.Record, error) {
	x.log.add("index.insert")
	if x.fail["insert"] {
		return nil, &assetsync.MetadataIndexError{Backend: "fake", Op: "insert", Key: rec.FileKey, Err: errInjected}
	}
	return x.MetadataIndex.Insert(ctx, rec)
}

func (x *faultyIndex) SelectByKey(ctx context.Context, key string) (*assetsync.Record, bool, error) {
	x.log.add("index.select")
	if x.fail["select"] {
		return nil, false, errInjected
	}
	return x.MetadataIndex.SelectByKey(ctx, key)
}

func (x *faultyIndex) SelectByFilter(ctx context.Context, f assetsync.Filter, opts assetsync.QueryOptions) ([]assetsync.Record, error) {
	x.log.add("index.filter")
	if x.fail["filter"] {
		return nil, errInjected
	}
	return x.MetadataIndex.SelectByFilter(ctx, f, opts)
}

func (x *faultyIndex) Update(ctx context.Context, key string, patch assetsync.RecordPatch) (*assetsync.Record, error) {
	x.log.add("index.update")
	if x.fail["update"] {
		return nil, errInjected
	}
	return x.MetadataIndex.Update(ctx, key, patch)
}

func (x *faultyIndex) Delete(ctx context.Context, key string) error {
	x.log.add("index.delete")
	if x.fail["delete"] {
		return errInjected
	}
	return x.MetadataIndex.Delete(ctx, key)
}

type recordingSink struct {
	mu       sync.Mutex
	uploaded []*assetsync.UploadResult
	deleted  []*assetsync.DeleteResult
	copied   []*assetsync.CopyResult
	err      error
}

func (s *recordingSink) ObjectUploaded(ctx context.Context, r *assetsync.UploadResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = append(s.uploaded, r)
	return s.err
}

func (s *recordingSink) ObjectDeleted(ctx context.Context, r *assetsync.DeleteResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, r)
	return s.err
}

func (s *recordingSink) ObjectCopied(ctx context.Context, r *assetsync.CopyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copied = append(s.copied, r)
	return s.err
}
