package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
	"github.com/feichai0017/document-analyzer/internal/utils/validator"
	"github.com/feichai0017/document-analyzer/pkg/converters"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/queue"
	"github.com/feichai0017/document-analyzer/pkg/storage"
)

// taskNamespace derives stable task ids from object locations, so an upload
// and the bucket notification it triggers map onto the same task.
var taskNamespace = uuid.MustParse("6f1c8a52-3a55-4c1e-9d5e-2b8f0e4c7a10")

const (
	SourceUpload       = "upload"
	SourceNotification = "notification"
	SourceCloudEvent   = "cloudevent"
)

type DocumentService struct {
	analyzer  Analyzer
	queue     queue.Queue
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter converters.DocumentConverter
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	IncomingPrefix  string
	ResultPrefix    string
	QueuePriority   int
	MaxConcurrent   int
	Model           string
	RetentionPeriod time.Duration
	Validator       *validator.ValidatorConfig
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		IncomingPrefix:  "incoming/",
		ResultPrefix:    "results/",
		QueuePriority:   2,
		MaxConcurrent:   5,
		RetentionPeriod: 24 * time.Hour,
	}
}

func NewService(
	analyzer Analyzer,
	queue queue.Queue,
	storage storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}

	return &DocumentService{
		analyzer:  analyzer,
		queue:     queue,
		storage:   storage,
		validator: validator.NewDocumentValidator(log, cfg.Validator),
		converter: converters.NewJSONConverter(),
		logger:    log.Named("document"),
		config:    cfg,
	}
}

// TaskIDFor returns the task id of the object at ref.
func TaskIDFor(ref analysis.ObjectRef) string {
	return uuid.NewSHA1(taskNamespace, []byte(ref.String())).String()
}

// ResultKey is where the processed document of taskID is stored.
func (s *DocumentService) ResultKey(taskID string) string {
	return s.config.ResultPrefix + taskID + ".json"
}

// ProcessFile 处理单个上传文件
func (s *DocumentService) ProcessFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
) (*models.ProcessingTask, error) {
	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", header.Filename, err)
	}

	result := s.validator.Validate(header.Filename, data, 0)
	if !result.IsValid {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.String("reason", result.Error()),
		)
		return nil, &ValidationError{Result: result}
	}

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	key := fmt.Sprintf("%s%s/%s", s.config.IncomingPrefix, uuid.New().String(), name)
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), key); err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	meta := models.DocumentMetadata{
		FileName:    name,
		FileType:    fileType(name),
		FileSize:    int64(len(data)),
		MimeType:    result.FileInfo.MimeType,
		ContentType: result.FileInfo.ContentType,
		Pages:       result.FileInfo.Pages,
		Hash:        result.FileInfo.Hash,
		Bucket:      s.storage.Bucket(),
		Key:         key,
		Source:      SourceUpload,
		Model:       s.config.Model,
	}
	return s.enqueue(ctx, meta)
}

// ProcessBatch 批量处理文件
func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for _, header := range files {
		header := header
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.ProcessFile(ctx, file, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}

			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tasks, err
	}
	return tasks, nil
}

// IngestObject queues an object that arrived in the bucket outside the API.
// Objects with an unsupported extension, or outside the incoming prefix, are
// skipped with ErrSkipped.
func (s *DocumentService) IngestObject(ctx context.Context, ref analysis.ObjectRef, size int64, source string) (*models.ProcessingTask, error) {
	if ref.Bucket == "" {
		ref.Bucket = s.storage.Bucket()
	}
	if !strings.HasPrefix(ref.Key, s.config.IncomingPrefix) || !s.validator.Supported(ref.Key) {
		s.logger.Info("Skipping object",
			logger.String("object", ref.String()),
			logger.String("source", source),
		)
		return nil, fmt.Errorf("%w: %s", ErrSkipped, ref.String())
	}
	if ref.Bucket != s.storage.Bucket() {
		s.logger.Warn("Skipping object from foreign bucket",
			logger.String("object", ref.String()),
			logger.String("bucket", s.storage.Bucket()),
		)
		return nil, fmt.Errorf("%w: bucket %s is not watched", ErrSkipped, ref.Bucket)
	}

	name := path.Base(ref.Key)
	return s.enqueue(ctx, models.DocumentMetadata{
		FileName: name,
		FileType: fileType(name),
		FileSize: size,
		Bucket:   ref.Bucket,
		Key:      ref.Key,
		Source:   source,
		Model:    s.config.Model,
	})
}

func (s *DocumentService) enqueue(ctx context.Context, meta models.DocumentMetadata) (*models.ProcessingTask, error) {
	now := time.Now()
	task := &models.ProcessingTask{
		ID:        TaskIDFor(analysis.ObjectRef{Bucket: meta.Bucket, Key: meta.Key}),
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentAnalyze,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": meta.FileName,
			"size":     fmt.Sprintf("%d", meta.FileSize),
			"type":     string(meta.FileType),
			"key":      meta.Key,
			"source":   meta.Source,
		},
	}

	queueTask := &queue.Task{
		ID:       task.ID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: queue.DocumentPayload{
			Bucket:   meta.Bucket,
			Key:      meta.Key,
			FileName: meta.FileName,
			Size:     meta.FileSize,
			Model:    meta.Model,
			Source:   meta.Source,
		},
		Metadata:  task.Metadata,
		CreatedAt: now,
	}

	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		if errors.Is(err, queue.ErrDuplicateTask) {
			s.logger.Info("Task already enqueued",
				logger.String("taskId", task.ID),
				logger.String("key", meta.Key),
			)
			return task, nil
		}
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Document task created",
		logger.String("taskId", task.ID),
		logger.String("filename", meta.FileName),
		logger.String("source", meta.Source),
	)
	return task, nil
}

// HandleDocument runs the analysis of a queued task and stores its result.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload.Key == "" {
		return fmt.Errorf("invalid task: missing required data")
	}

	ctx = logger.WithDocument(logger.WithTaskID(ctx, task.ID), task.Payload.Key)
	log := logger.FromContext(ctx, s.logger)
	started := time.Now()

	log.Info("Processing document",
		logger.String("name", task.Payload.FileName),
		logger.Int64("size", task.Payload.Size),
	)

	s.saveStatus(ctx, log, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		StartedAt: started,
	})

	result, meta, err := s.analyze(ctx, log, task, started)
	if err != nil {
		s.recordFailure(ctx, log, task.ID, started, err)
		return err
	}

	processed, err := s.converter.Convert(result, meta)
	if err != nil {
		s.recordFailure(ctx, log, task.ID, started, err)
		return fmt.Errorf("failed to convert document: %w", err)
	}
	processed.TaskID = task.ID
	processed.Metadata.ProcessingMs = time.Since(started).Milliseconds()

	resultData, err := json.MarshalIndent(processed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	log.Debug("Analysis result", logger.String("result", string(resultData)))

	resultKey := s.ResultKey(task.ID)
	if _, err := s.storage.Store(ctx, bytes.NewReader(resultData), resultKey); err != nil {
		s.recordFailure(ctx, log, task.ID, started, err)
		return fmt.Errorf("failed to store result: %w", err)
	}

	s.saveStatus(ctx, log, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1.0,
		ResultKey:  resultKey,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})

	log.Info("Document processing completed",
		logger.String("resultKey", resultKey),
		logger.Int("pages", processed.Metadata.PageCount),
		logger.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (s *DocumentService) analyze(ctx context.Context, log logger.Logger, task *queue.Task, started time.Time) (*analysis.Result, models.DocumentMetadata, error) {
	name := task.Payload.FileName
	if name == "" {
		name = path.Base(task.Payload.Key)
	}
	meta := models.DocumentMetadata{
		FileName: name,
		FileType: fileType(name),
		FileSize: task.Payload.Size,
		Bucket:   task.Payload.Bucket,
		Key:      task.Payload.Key,
		Source:   task.Payload.Source,
		Model:    task.Payload.Model,
	}

	reader, err := s.storage.Get(ctx, task.Payload.Key)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to read file: %w", err)
	}

	validation := s.validator.Validate(name, data, 0)
	if !validation.IsValid {
		return nil, meta, &ValidationError{Result: validation}
	}
	meta.FileSize = int64(len(data))
	meta.MimeType = validation.FileInfo.MimeType
	meta.ContentType = validation.FileInfo.ContentType
	meta.Pages = validation.FileInfo.Pages
	meta.Hash = validation.FileInfo.Hash

	opts := []analysis.AnalyzeOption{
		analysis.WithSink(analysis.MultiSink{
			NewLogSink(log),
			&progressSink{ctx: ctx, queue: s.queue, taskID: task.ID, started: started, logger: log},
		}),
	}
	if meta.Model != "" {
		opts = append(opts, analysis.WithModel(meta.Model))
	}

	result, err := s.analyzer.Analyze(ctx, analysis.Document{
		Name:    name,
		Content: data,
		Source:  &analysis.ObjectRef{Bucket: meta.Bucket, Key: meta.Key},
	}, opts...)
	if err != nil {
		return nil, meta, err
	}
	return result, meta, nil
}

func failedStatus(taskID string, started time.Time, err error) *queue.TaskStatus {
	status := &queue.TaskStatus{
		TaskID:     taskID,
		Status:     queue.StatusFailed,
		Error:      err.Error(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	var ae *analysis.Error
	if errors.As(err, &ae) {
		status.ErrorKind = string(ae.Kind)
		status.Attempt = ae.Attempts
		status.MaxAttempts = ae.MaxAttempts
	}
	if errors.Is(err, ErrInvalidDocument) {
		status.ErrorKind = string(analysis.KindUnsupportedDocumentType)
	}
	return status
}

// recordFailure stores the failed status unless the task was cancelled by a
// user while it ran. An interrupted run that nobody cancelled stays failed so
// the queue retry can pick it up again.
func (s *DocumentService) recordFailure(ctx context.Context, log logger.Logger, taskID string, started time.Time, err error) {
	if analysis.KindOf(err) == analysis.KindCancelled {
		current, getErr := s.queue.GetTaskStatus(context.WithoutCancel(ctx), taskID)
		if getErr == nil && current.Status == queue.StatusCancelled {
			log.Info("Task cancelled while running")
			return
		}
	}
	s.saveStatus(ctx, log, failedStatus(taskID, started, err))
}

func (s *DocumentService) saveStatus(ctx context.Context, log logger.Logger, status *queue.TaskStatus) {
	// a cancelled task context must not prevent recording the final state
	if err := s.queue.SaveStatus(context.WithoutCancel(ctx), status); err != nil {
		log.Error("Failed to save task status",
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

// GetProcessingStatus 获取处理状态
func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	return &models.ProcessingTask{
		ID:              status.TaskID,
		Status:          models.ProcessingStatus(status.Status),
		Type:            queue.TaskTypeDocumentAnalyze,
		Progress:        status.Progress,
		Attempt:         status.Attempt,
		MaxAttempts:     status.MaxAttempts,
		OperationStatus: status.OperationStatus,
		ResultKey:       status.ResultKey,
		ErrorKind:       status.ErrorKind,
		Error:           status.Error,
		Metadata:        make(map[string]string),
		CreatedAt:       status.StartedAt,
		UpdatedAt:       status.FinishedAt,
	}, nil
}

// GetProcessedDocument 获取处理结果
func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotCompleted, status.Status)
	}

	key := status.ResultKey
	if key == "" {
		key = s.ResultKey(taskID)
	}
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// CancelTask 取消任务
func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes stored results and sources older than the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)

	for _, prefix := range []string{s.config.ResultPrefix, s.config.IncomingPrefix} {
		if err := s.storage.CleanupBefore(ctx, prefix, threshold); err != nil {
			return fmt.Errorf("failed to cleanup storage: %w", err)
		}
	}

	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

func fileType(name string) models.FileType {
	if strings.HasSuffix(strings.ToLower(name), ".docx") {
		return models.Word
	}
	return models.PDF
}

var _ DocumentProcessor = (*DocumentService)(nil)
