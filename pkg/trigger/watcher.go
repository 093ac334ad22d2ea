package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/minio/minio-go/v7/pkg/notification"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-analyzer/internal/service/document"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

// Notifier is the subset of *minio.Client the watcher listens on.
type Notifier interface {
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

var createdEvents = []string{"s3:ObjectCreated:*"}

// Watcher subscribes to bucket notifications and ingests new documents.
type Watcher struct {
	client   Notifier
	ingester Ingester
	logger   logger.Logger

	bucket   string
	prefix   string
	suffixes []string

	// ReconnectDelay is waited before listening again after the stream ends.
	ReconnectDelay time.Duration
}

// NewWatcher watches objects under prefix in bucket with one listener per
// suffix.
func NewWatcher(client Notifier, bucket, prefix string, suffixes []string, ingester Ingester, log logger.Logger) *Watcher {
	return &Watcher{
		client:         client,
		ingester:       ingester,
		logger:         log.Named("watcher"),
		bucket:         bucket,
		prefix:         prefix,
		suffixes:       suffixes,
		ReconnectDelay: 5 * time.Second,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, suffix := range w.suffixes {
		suffix := suffix
		g.Go(func() error {
			w.listen(ctx, suffix)
			return nil
		})
	}
	w.logger.Info("Watching bucket",
		logger.String("bucket", w.bucket),
		logger.String("prefix", w.prefix),
		logger.Any("suffixes", w.suffixes),
	)
	return g.Wait()
}

func (w *Watcher) listen(ctx context.Context, suffix string) {
	for {
		for info := range w.client.ListenBucketNotification(ctx, w.bucket, w.prefix, suffix, createdEvents) {
			if info.Err != nil {
				w.logger.Warn("Bucket notification error",
					logger.String("suffix", suffix),
					logger.Error(info.Err),
				)
				continue
			}
			w.Handle(ctx, info)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.ReconnectDelay):
			w.logger.Info("Reconnecting bucket listener", logger.String("suffix", suffix))
		}
	}
}

// Handle ingests the created objects of info and returns how many were queued.
func (w *Watcher) Handle(ctx context.Context, info notification.Info) int {
	queued := 0
	for _, obj := range ObjectsFromNotification(info) {
		task, err := w.ingester.IngestObject(ctx, obj.Ref, obj.Size, document.SourceNotification)
		switch {
		case err == nil:
			queued++
			w.logger.Info("Queued object from notification",
				logger.String("object", obj.Ref.String()),
				logger.String("taskId", task.ID),
			)
		case errors.Is(err, document.ErrSkipped):
			w.logger.Debug("Object skipped", logger.String("object", obj.Ref.String()))
		default:
			w.logger.Error("Failed to ingest object",
				logger.String("object", obj.Ref.String()),
				logger.Error(err),
			)
		}
	}
	return queued
}
