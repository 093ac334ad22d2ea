package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
)

// StorageEventData is the data of a storage object CloudEvent.
type StorageEventData struct {
	Bucket string      `json:"bucket"`
	Name   string      `json:"name"`
	Size   json.Number `json:"size,omitempty"`
}

// ObjectFromCloudEvent extracts the created object announced by e. Deletion
// and metadata events return ErrIgnoredEvent.
func ObjectFromCloudEvent(e cloudevents.Event) (ObjectEvent, error) {
	if !createdEventType(e.Type()) {
		return ObjectEvent{}, fmt.Errorf("%w: type %s", ErrIgnoredEvent, e.Type())
	}

	var data StorageEventData
	if err := e.DataAs(&data); err != nil {
		return ObjectEvent{}, fmt.Errorf("failed to decode event data: %w", err)
	}
	if data.Name == "" {
		return ObjectEvent{}, fmt.Errorf("event %s carries no object name", e.ID())
	}

	size, _ := data.Size.Int64()
	return ObjectEvent{
		Ref:       analysis.ObjectRef{Bucket: data.Bucket, Key: data.Name},
		Size:      size,
		EventName: e.Type(),
	}, nil
}

func createdEventType(t string) bool {
	return strings.HasSuffix(t, ".finalized") || strings.Contains(t, "ObjectCreated")
}
