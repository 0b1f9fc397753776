// Package scan walks the blob store page by page and hands every object,
// with its metadata record, to a processor. It backs bulk maintenance such
// as indexing objects that were written without a record.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/assetsync/pkg/assetsync"
)

// Scanner lists objects through the service and processes them.
type Scanner struct {
	service assetsync.Service
	logger  *slog.Logger
}

// New creates a new Scanner instance.
func New(service assetsync.Service, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{service: service, logger: logger}
}

// Options configures the scan operation.
type Options struct {
	// Prefix limits the scan to keys under it
	Prefix string

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ObjectProcessor

	// BatchSize controls how many objects are listed at once (default: 100)
	BatchSize int

	// DryRun reports what would be processed without calling the processor
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, found int64)
}

// Result contains statistics about the scan operation.
type Result struct {
	TotalFound     int64    `json:"total_found"`
	TotalProcessed int64    `json:"total_processed"`
	TotalSkipped   int64    `json:"total_skipped"`
	TotalFailed    int64    `json:"total_failed"`
	FailedKeys     []string `json:"failed_keys,omitempty"`
	// Unindexed counts objects listed without a metadata record
	Unindexed int64 `json:"unindexed"`
}

// Scan lists objects under opts.Prefix and processes each one. A listing
// error stops the scan; processor errors are recorded and the scan goes on.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	req := assetsync.ListRequest{Prefix: opts.Prefix, MaxItems: opts.BatchSize}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.service.List(ctx, req)
		if err != nil {
			return result, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Items {
			result.TotalFound++
			if obj.Metadata == nil {
				result.Unindexed++
			}

			if opts.DryRun {
				s.logger.Info("dry run", "key", obj.Object.Key, "indexed", obj.Metadata != nil)
				result.TotalProcessed++
				continue
			}

			err := opts.Processor.Process(ctx, obj)
			switch {
			case errors.Is(err, ErrSkip):
				result.TotalSkipped++
			case err != nil:
				result.TotalFailed++
				result.FailedKeys = append(result.FailedKeys, obj.Object.Key)
				s.logger.Warn("failed to process object", "key", obj.Object.Key, "error", err)
			default:
				result.TotalProcessed++
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalSkipped+result.TotalFailed, result.TotalFound)
		}

		if !page.Truncated || page.NextContinuationToken == "" {
			break
		}
		req.ContinuationToken = page.NextContinuationToken
	}

	return result, nil
}
