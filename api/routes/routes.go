package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-analyzer/api/handlers"
	"github.com/feichai0017/document-analyzer/api/middleware"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

type Options struct {
	AllowOrigins  []string
	MaxUploadSize int64
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger, opts Options) {
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(middleware.CORS(opts.AllowOrigins...))

	r.GET("/health", h.Health.Check)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.MaxBodySize(opts.MaxUploadSize))

	// 文档处理路由组
	docs := v1.Group("/documents")
	{
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}

	events := v1.Group("/events")
	{
		events.POST("/storage", h.Events.StorageNotification)
		events.POST("/cloudevents", h.Events.CloudEvent)
	}
}
