package urlstrategy

import (
	"context"

	"github.com/tendant/assetsync/pkg/assetsync"
)

// StorageDelegatedStrategy delegates URL generation to the blob store.
// Download URLs are presigned when the store supports it.
type StorageDelegatedStrategy struct {
	Store assetsync.URLResolver
}

// NewStorageDelegatedStrategy creates a new storage-delegated URL strategy
func NewStorageDelegatedStrategy(store assetsync.URLResolver) *StorageDelegatedStrategy {
	return &StorageDelegatedStrategy{Store: store}
}

func (s *StorageDelegatedStrategy) PublicURL(key string) string {
	return s.Store.PublicURL(key)
}

func (s *StorageDelegatedStrategy) DownloadURL(ctx context.Context, key string) (string, error) {
	if p, ok := s.Store.(assetsync.Presigner); ok {
		return p.PresignGet(ctx, key)
	}
	return s.Store.PublicURL(key), nil
}
