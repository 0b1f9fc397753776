package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetsync/pkg/assetsync"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.EqualError(t, err, "bucket name is required")
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		key    string
		want   string
	}{
		{
			name:   "virtual hosted",
			config: Config{Bucket: "assets", Region: "eu-west-1"},
			key:    "user123/products/copy-shirt.png",
			want:   "https://assets.s3.eu-west-1.amazonaws.com/user123/products/copy-shirt.png",
		},
		{
			name:   "custom endpoint",
			config: Config{Bucket: "assets", Region: "us-east-1", Endpoint: "http://localhost:9000/"},
			key:    "user123/a b.png",
			want:   "http://localhost:9000/assets/user123/a%20b.png",
		},
		{
			name:   "cdn base",
			config: Config{Bucket: "assets", PublicBaseURL: "https://cdn.example.com/"},
			key:    "user123/products/shirt.png",
			want:   "https://cdn.example.com/user123/products/shirt.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{bucket: tt.config.Bucket, config: tt.config}
			assert.Equal(t, tt.want, b.PublicURL(tt.key))
		})
	}
}

func TestWrapNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"head not found", &types.NotFound{}, true},
		{"generic api error", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"transport", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap("head", "k", fmt.Errorf("operation error: %w", tt.err))
			var be *assetsync.BlobStoreError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "s3", be.Backend)
			assert.Equal(t, tt.want, errors.Is(err, assetsync.ErrObjectNotFound))
		})
	}
}

func TestCountingReader(t *testing.T) {
	c := &countingReader{r: strings.NewReader(strings.Repeat("x", 2048))}
	buf := make([]byte, 512)
	for {
		if _, err := c.Read(buf); err != nil {
			break
		}
	}
	assert.Equal(t, int64(2048), c.n.Load())
}

func TestSSE(t *testing.T) {
	b := &Backend{config: Config{EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"}}
	alg, keyID := b.sse()
	assert.Equal(t, types.ServerSideEncryptionAwsKms, alg)
	require.NotNil(t, keyID)
	assert.Equal(t, "key-1", *keyID)

	b = &Backend{config: Config{}}
	alg, keyID = b.sse()
	assert.Empty(t, alg)
	assert.Nil(t, keyID)
}
