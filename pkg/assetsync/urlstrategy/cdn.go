package urlstrategy

import (
	"context"
	"fmt"
	"strings"
)

// CDNStrategy generates URLs that point directly to a CDN
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/")}
}

// PublicURL returns the CDN address of key
func (s *CDNStrategy) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", s.CDNBaseURL, escapeKey(key))
}

// DownloadURL is the same as PublicURL; the CDN serves the bytes
func (s *CDNStrategy) DownloadURL(ctx context.Context, key string) (string, error) {
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	return s.PublicURL(key), nil
}
