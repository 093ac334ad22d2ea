package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/feichai0017/document-analyzer/internal/service/document"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/trigger"
)

// EventHandler accepts object store notifications pushed over HTTP.
type EventHandler struct {
	ingester trigger.Ingester
	logger   logger.Logger
}

// IngestResponse summarizes the objects of one notification.
type IngestResponse struct {
	Queued  []string `json:"queued"`
	Skipped []string `json:"skipped"`
}

func NewEventHandler(ingester trigger.Ingester, log logger.Logger) *EventHandler {
	return &EventHandler{ingester: ingester, logger: log.Named("events")}
}

// StorageNotification handles the S3 style records posted by a MinIO webhook
// target.
func (h *EventHandler) StorageNotification(c *gin.Context) {
	var info notification.Info
	if err := json.NewDecoder(c.Request.Body).Decode(&info); err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid notification payload", err)
		return
	}

	resp := IngestResponse{Queued: []string{}, Skipped: []string{}}
	for _, obj := range trigger.ObjectsFromNotification(info) {
		task, err := h.ingester.IngestObject(c.Request.Context(), obj.Ref, obj.Size, document.SourceNotification)
		switch {
		case err == nil:
			resp.Queued = append(resp.Queued, task.ID)
		case errors.Is(err, document.ErrSkipped):
			resp.Skipped = append(resp.Skipped, obj.Ref.String())
		default:
			writeError(c, h.logger, http.StatusInternalServerError, "Failed to queue object", err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CloudEvent handles a storage CloudEvent in binary or structured mode.
func (h *EventHandler) CloudEvent(c *gin.Context) {
	event, err := cloudevents.NewEventFromHTTPRequest(c.Request)
	if err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid cloud event", err)
		return
	}

	obj, err := trigger.ObjectFromCloudEvent(*event)
	if errors.Is(err, trigger.ErrIgnoredEvent) {
		h.logger.Debug("Ignoring event", logger.String("type", event.Type()), logger.String("id", event.ID()))
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid cloud event data", err)
		return
	}

	task, err := h.ingester.IngestObject(c.Request.Context(), obj.Ref, obj.Size, document.SourceCloudEvent)
	if err != nil {
		if errors.Is(err, document.ErrSkipped) {
			c.JSON(http.StatusOK, IngestResponse{Queued: []string{}, Skipped: []string{obj.Ref.String()}})
			return
		}
		writeError(c, h.logger, http.StatusInternalServerError, "Failed to queue object", err)
		return
	}

	h.logger.Info("Queued object from cloud event",
		logger.String("eventId", event.ID()),
		logger.String("object", obj.Ref.String()),
		logger.String("taskId", task.ID),
	)
	c.JSON(http.StatusAccepted, IngestResponse{Queued: []string{task.ID}, Skipped: []string{}})
}
