package scan

import (
	"context"
	"errors"

	"github.com/tendant/assetsync/pkg/assetsync"
)

// ErrSkip tells the scanner an object needed no work
var ErrSkip = errors.New("skip object")

// ObjectProcessor processes one listed object.
// Return ErrSkip to count the object as skipped; any other error marks it
// as failed and the scan continues with the next object.
type ObjectProcessor interface {
	Process(ctx context.Context, obj assetsync.EnrichedObject) error
}

// ProcessorFunc adapts a function to the ObjectProcessor interface.
type ProcessorFunc func(ctx context.Context, obj assetsync.EnrichedObject) error

func (f ProcessorFunc) Process(ctx context.Context, obj assetsync.EnrichedObject) error {
	return f(ctx, obj)
}

// ResyncProcessor rebuilds metadata records from the blob store. By default
// only objects without a record are touched.
type ResyncProcessor struct {
	Service assetsync.Service
	// All resyncs objects that already have a record too. Their
	// additional_data is kept.
	All bool
}

func (p *ResyncProcessor) Process(ctx context.Context, obj assetsync.EnrichedObject) error {
	if obj.Metadata != nil && !p.All {
		return ErrSkip
	}
	_, err := p.Service.ResyncMetadata(ctx, obj.Object.Key, nil)
	return err
}
