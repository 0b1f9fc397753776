package urlstrategy

import (
	"context"
	"fmt"
	"strings"
)

// APIRoutedStrategy points clients at the service's own download route,
// e.g. /api/v1/assets/{key}
type APIRoutedStrategy struct {
	APIBaseURL string
}

// NewAPIRoutedStrategy creates a strategy that routes through the API
func NewAPIRoutedStrategy(apiBaseURL string) *APIRoutedStrategy {
	return &APIRoutedStrategy{APIBaseURL: strings.TrimSuffix(apiBaseURL, "/")}
}

func (s *APIRoutedStrategy) PublicURL(key string) string {
	return fmt.Sprintf("%s/assets/%s", s.APIBaseURL, escapeKey(key))
}

func (s *APIRoutedStrategy) DownloadURL(ctx context.Context, key string) (string, error) {
	return s.PublicURL(key), nil
}
