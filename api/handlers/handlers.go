package handlers

import (
	"github.com/feichai0017/document-analyzer/internal/service/document"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Events   *EventHandler
	Health   *HealthHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	pinger Pinger,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
		Events:   NewEventHandler(documentService, log),
		Health:   NewHealthHandler(pinger),
	}
}
