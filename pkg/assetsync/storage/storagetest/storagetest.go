// Package storagetest holds a behavioural test suite shared by every
// assetsync.BlobStore implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
)

// Run exercises store with keys under prefix. prefix must end in "/" and
// should be unique per run when store is shared.
func Run(t *testing.T, store assetsync.BlobStore, prefix string) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		key := prefix + "roundtrip/a.txt"
		put, err := store.Put(ctx, key, strings.NewReader("hello world"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, int64(11), put.Size)
		assert.NotEmpty(t, put.ETag)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		defer got.Body.Close()
		data, err := io.ReadAll(got.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
		assert.Equal(t, "text/plain", got.ContentType)
		assert.Equal(t, int64(11), got.Size)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		key := prefix + "overwrite/b.bin"
		_, err := store.Put(ctx, key, strings.NewReader("first"), "application/octet-stream")
		require.NoError(t, err)
		_, err = store.Put(ctx, key, strings.NewReader("second!"), "image/png")
		require.NoError(t, err)

		info, err := store.Head(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(7), info.Size)
		assert.Equal(t, "image/png", info.ContentType)
	})

	t.Run("HeadMissing", func(t *testing.T) {
		_, err := store.Head(ctx, prefix+"missing/none.txt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, assetsync.ErrObjectNotFound))
		assert.True(t, assetsync.IsBlobStoreError(err))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing/none.txt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, assetsync.ErrObjectNotFound))
	})

	t.Run("CopyIsByteIdentical", func(t *testing.T) {
		src := prefix + "copy/src.png"
		dst := prefix + "copy/dst.png"
		_, err := store.Put(ctx, src, strings.NewReader("png-bytes"), "image/png")
		require.NoError(t, err)

		cp, err := store.Copy(ctx, src, dst)
		require.NoError(t, err)
		assert.NotEmpty(t, cp.ETag)

		got, err := store.Get(ctx, dst)
		require.NoError(t, err)
		defer got.Body.Close()
		data, err := io.ReadAll(got.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "image/png", got.ContentType)

		// Source is untouched
		_, err = store.Head(ctx, src)
		assert.NoError(t, err)
	})

	t.Run("CopyMissingSource", func(t *testing.T) {
		_, err := store.Copy(ctx, prefix+"copy/none", prefix+"copy/other")
		require.Error(t, err)
		assert.True(t, assetsync.IsBlobStoreError(err))
	})

	t.Run("DeleteThenHead", func(t *testing.T) {
		key := prefix + "delete/c.txt"
		_, err := store.Put(ctx, key, strings.NewReader("x"), "text/plain")
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, key))

		_, err = store.Head(ctx, key)
		assert.True(t, errors.Is(err, assetsync.ErrObjectNotFound))
	})

	t.Run("ListPrefixAndPaging", func(t *testing.T) {
		base := prefix + "list/"
		for i := 0; i < 5; i++ {
			_, err := store.Put(ctx, fmt.Sprintf("%sitem-%d.txt", base, i), strings.NewReader("data"), "text/plain")
			require.NoError(t, err)
		}
		_, err := store.Put(ctx, prefix+"listother/outside.txt", strings.NewReader("data"), "text/plain")
		require.NoError(t, err)

		first, err := store.List(ctx, assetsync.ListRequest{Prefix: base, MaxItems: 3})
		require.NoError(t, err)
		require.Len(t, first.Items, 3)
		assert.True(t, first.Truncated)
		assert.NotEmpty(t, first.NextContinuationToken)
		assert.Equal(t, base+"item-0.txt", first.Items[0].Key)
		assert.Equal(t, int64(4), first.Items[0].Size)

		second, err := store.List(ctx, assetsync.ListRequest{Prefix: base, MaxItems: 3, ContinuationToken: first.NextContinuationToken})
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		assert.False(t, second.Truncated)
		assert.Equal(t, base+"item-3.txt", second.Items[0].Key)

		for _, item := range append(first.Items, second.Items...) {
			assert.True(t, strings.HasPrefix(item.Key, base), item.Key)
		}
	})

	t.Run("KeyAndItsChildrenCoexist", func(t *testing.T) {
		keys := []string{
			prefix + "nest/a",
			prefix + "nest/a/b",
			prefix + "nest2/x/y",
			prefix + "nest2/x",
		}
		for _, key := range keys {
			_, err := store.Put(ctx, key, strings.NewReader(key), "text/plain")
			require.NoError(t, err, key)
		}

		for _, key := range keys {
			got, err := store.Get(ctx, key)
			require.NoError(t, err, key)
			data, err := io.ReadAll(got.Body)
			require.NoError(t, got.Body.Close())
			require.NoError(t, err)
			assert.Equal(t, key, string(data))
		}

		_, err := store.Copy(ctx, prefix+"nest/a/b", prefix+"nest2/x/y/z")
		require.NoError(t, err)

		listed, err := store.List(ctx, assetsync.ListRequest{Prefix: prefix + "nest"})
		require.NoError(t, err)
		var got []string
		for _, item := range listed.Items {
			got = append(got, item.Key)
		}
		assert.Equal(t, []string{
			prefix + "nest/a",
			prefix + "nest/a/b",
			prefix + "nest2/x",
			prefix + "nest2/x/y",
			prefix + "nest2/x/y/z",
		}, got)

		require.NoError(t, store.Delete(ctx, prefix+"nest/a"))
		_, err = store.Head(ctx, prefix+"nest/a/b")
		assert.NoError(t, err, "deleting a key keeps its children")
	})

	t.Run("ReservedCharactersInKeys", func(t *testing.T) {
		key := prefix + "chars/logo@2x 100%.png"
		_, err := store.Put(ctx, key, strings.NewReader("png"), "image/png")
		require.NoError(t, err)

		info, err := store.Head(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, info.Key)

		listed, err := store.List(ctx, assetsync.ListRequest{Prefix: prefix + "chars/"})
		require.NoError(t, err)
		require.Len(t, listed.Items, 1)
		assert.Equal(t, key, listed.Items[0].Key)
	})

	t.Run("PublicURLEndsWithKey", func(t *testing.T) {
		key := prefix + "url/shirt.png"
		assert.True(t, strings.HasSuffix(store.PublicURL(key), "shirt.png"))
	})
}
