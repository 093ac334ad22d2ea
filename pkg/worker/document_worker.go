package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/models"
	"github.com/feichai0017/document-analyzer/internal/service/document"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/queue"
)

type DocumentWorker struct {
	BaseWorker
	handler *Handler
}

func NewDocumentWorker(cfg *Config, docService document.DocumentProcessor, log logger.Logger) (*DocumentWorker, error) {
	if docService == nil {
		return nil, errors.New("document processor is required")
	}
	log = log.Named("worker")
	handler := NewHandler(docService, log)

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency:     cfg.Concurrency,
			Queues:          cfg.Queues,
			RetryDelayFunc:  RetryDelay,
			ErrorHandler:    asynq.ErrorHandlerFunc(handler.reportError),
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		handler: handler,
	}

	if cfg.CleanupSchedule != "" {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), nil)
		task := asynq.NewTask(queue.TaskTypeStorageCleanup, nil, asynq.Queue(queue.QueueLow), asynq.MaxRetry(0))
		if _, err := w.scheduler.Register(cfg.CleanupSchedule, task); err != nil {
			return nil, fmt.Errorf("failed to register cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
	}

	// 注册任务处理器
	handler.Register(w.mux)
	return w, nil
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	w.logger.Info("Worker started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// RetryDelay backs off linearly by one minute per retry. asynq passes the
// number of retries already made, so n is 0 before the first retry.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	return time.Duration(n+1) * time.Minute
}

// Handler turns asynq tasks into document service calls.
type Handler struct {
	docService document.DocumentProcessor
	logger     logger.Logger
}

func NewHandler(docService document.DocumentProcessor, log logger.Logger) *Handler {
	return &Handler{docService: docService, logger: log}
}

// Register adds the task handlers to mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypeDocumentAnalyze, h.HandleAnalyze)
	mux.HandleFunc(queue.TaskTypeStorageCleanup, h.HandleCleanup)
}

// HandleAnalyze runs one document:analyze task. Failures a retry cannot fix
// are wrapped with asynq.SkipRetry.
func (h *Handler) HandleAnalyze(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		h.logger.Error("Invalid task payload",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(logger.String("taskId", task.ID))
	log.Info("Processing document task",
		logger.String("key", task.Payload.Key),
		logger.String("source", task.Payload.Source),
	)

	// tasks built outside a server, as in tests, carry no result writer
	rw := t.ResultWriter()

	// asynq retries a task whose processing was cancelled, so a cancellation
	// is only final if the retry refuses to run
	if h.cancelled(ctx, task.ID) {
		log.Info("Skipping cancelled task")
		h.writeResult(rw, `{"status":"cancelled"}`)
		return fmt.Errorf("task %s cancelled: %w", task.ID, asynq.SkipRetry)
	}
	h.writeResult(rw, `{"status":"running"}`)

	if err := h.docService.HandleDocument(ctx, task); err != nil {
		h.writeResult(rw, fmt.Sprintf(`{"status":"failed","kind":%q}`, errorKind(err)))
		if !Retryable(err) {
			log.Warn("Task failed permanently", logger.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.writeResult(rw, `{"status":"completed"}`)
	return nil
}

func (h *Handler) cancelled(ctx context.Context, taskID string) bool {
	status, err := h.docService.GetProcessingStatus(ctx, taskID)
	if err != nil {
		if !errors.Is(err, queue.ErrTaskNotFound) {
			h.logger.Warn("Failed to read task status",
				logger.String("taskId", taskID),
				logger.Error(err),
			)
		}
		return false
	}
	return status.Status == models.StatusCancelled
}

// HandleCleanup removes expired sources and results.
func (h *Handler) HandleCleanup(ctx context.Context, _ *asynq.Task) error {
	return h.docService.CleanupTasks(ctx)
}

func (h *Handler) writeResult(rw *asynq.ResultWriter, body string) {
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(body)); err != nil {
		h.logger.Warn("Failed to write task result", logger.Error(err))
	}
}

func (h *Handler) reportError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)

	h.logger.Error("Task failed",
		logger.String("type", task.Type()),
		logger.String("taskId", taskID),
		logger.Int("retried", retried),
		logger.Int("maxRetry", maxRetry),
		logger.String("kind", errorKind(err)),
		logger.Error(err),
	)
}

// Retryable reports whether running the task again may succeed.
func Retryable(err error) bool {
	if errors.Is(err, document.ErrInvalidDocument) {
		return false
	}
	var ae *analysis.Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return true
}

func errorKind(err error) string {
	if kind := analysis.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, document.ErrInvalidDocument) {
		return string(analysis.KindUnsupportedDocumentType)
	}
	return "internal"
}

var _ Worker = (*DocumentWorker)(nil)
