package assetsync

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

func (NoopEventSink) ObjectUploaded(ctx context.Context, result *UploadResult) error { return nil }
func (NoopEventSink) ObjectDeleted(ctx context.Context, result *DeleteResult) error   { return nil }
func (NoopEventSink) ObjectCopied(ctx context.Context, result *CopyResult) error     { return nil }

// LoggingEventSink logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) *LoggingEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// ObjectUploaded logs the upload event
func (l *LoggingEventSink) ObjectUploaded(ctx context.Context, result *UploadResult) error {
	l.logger.InfoContext(ctx, "object uploaded", "key", result.Key, "size", result.Size, "metadata", result.MetadataSync.State)
	return nil
}

// ObjectDeleted logs the delete event
func (l *LoggingEventSink) ObjectDeleted(ctx context.Context, result *DeleteResult) error {
	l.logger.InfoContext(ctx, "object deleted", "key", result.Key, "metadata", result.MetadataSync.State)
	return nil
}

// ObjectCopied logs the copy event
func (l *LoggingEventSink) ObjectCopied(ctx context.Context, result *CopyResult) error {
	l.logger.InfoContext(ctx, "object copied", "source_key", result.SourceKey, "dest_key", result.DestKey, "metadata", result.MetadataSync.State)
	return nil
}
