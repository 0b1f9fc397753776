package urlstrategy

import (
	"context"
	"net/url"
	"strings"
)

// Strategy decides the addresses published for an object. PublicURL is the
// value stored in a record's public_url; DownloadURL may be short-lived.
type Strategy interface {
	PublicURL(key string) string
	DownloadURL(ctx context.Context, key string) (string, error)
}

// escapeKey escapes each path segment of key for use in a URL.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
