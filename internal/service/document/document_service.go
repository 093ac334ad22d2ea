package document

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
	"github.com/feichai0017/document-analyzer/internal/utils/validator"
	"github.com/feichai0017/document-analyzer/pkg/converters"
	"github.com/feichai0017/document-analyzer/pkg/queue"
)

var (
	// ErrSkipped marks objects the pipeline ignores, such as unsupported extensions.
	ErrSkipped          = errors.New("object skipped")
	ErrInvalidDocument  = errors.New("invalid document")
	ErrTaskNotCompleted = errors.New("task is not completed")
	ErrTaskNotFound     = queue.ErrTaskNotFound
)

// ValidationError carries the validator findings for a rejected document.
type ValidationError struct {
	Result *validator.ValidationResult
}

func (e *ValidationError) Error() string {
	return "invalid document " + e.Result.FileInfo.Filename + ": " + e.Result.Error()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDocument }

// Analyzer runs one document through the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, doc analysis.Document, opts ...analysis.AnalyzeOption) (*analysis.Result, error)
}

type DocumentProcessor interface {
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	IngestObject(ctx context.Context, ref analysis.ObjectRef, size int64, source string) (*models.ProcessingTask, error)
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
}
