package urlstrategy

import (
	"fmt"

	"github.com/tendant/assetsync/pkg/assetsync"
)

// StrategyType names a URL strategy
type StrategyType string

const (
	// CDN strategy for direct CDN URLs
	StrategyTypeCDN StrategyType = "cdn"

	// API-routed strategy for URLs served by this service
	StrategyTypeAPIRouted StrategyType = "api-routed"

	// Storage-delegated strategy; the blob store decides
	StrategyTypeStorageDelegated StrategyType = "storage-delegated"
)

// Config holds configuration for URL strategy creation
type Config struct {
	Type       StrategyType
	CDNBaseURL string                // For CDN strategy
	APIBaseURL string                // For API-routed strategy
	Store      assetsync.URLResolver // For storage-delegated strategy
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (Strategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil

	case StrategyTypeAPIRouted:
		if config.APIBaseURL == "" {
			return nil, fmt.Errorf("API base URL is required for api-routed strategy")
		}
		return NewAPIRoutedStrategy(config.APIBaseURL), nil

	case StrategyTypeStorageDelegated, "":
		if config.Store == nil {
			return nil, fmt.Errorf("blob store is required for storage-delegated strategy")
		}
		return NewStorageDelegatedStrategy(config.Store), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}
