// Package trigger turns object store events into analysis tasks.
package trigger

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
)

// ErrIgnoredEvent is returned for events that do not announce a new object.
var ErrIgnoredEvent = errors.New("event ignored")

// Ingester queues objects that arrived outside the upload API.
type Ingester interface {
	IngestObject(ctx context.Context, ref analysis.ObjectRef, size int64, source string) (*models.ProcessingTask, error)
}

// ObjectEvent is a created object extracted from a notification.
type ObjectEvent struct {
	Ref       analysis.ObjectRef
	Size      int64
	EventName string
}

// ObjectsFromNotification returns the created objects of info. Keys arrive
// URL encoded and are decoded here; other event names are dropped.
func ObjectsFromNotification(info notification.Info) []ObjectEvent {
	var out []ObjectEvent
	for _, record := range info.Records {
		if !strings.HasPrefix(record.EventName, "s3:ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			key = record.S3.Object.Key
		}
		if key == "" {
			continue
		}
		out = append(out, ObjectEvent{
			Ref:       analysis.ObjectRef{Bucket: record.S3.Bucket.Name, Key: key},
			Size:      record.S3.Object.Size,
			EventName: record.EventName,
		})
	}
	return out
}
