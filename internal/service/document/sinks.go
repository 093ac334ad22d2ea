package document

import (
	"context"
	"time"

	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/queue"
)

// LogSink writes analysis lifecycle events to a logger.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) OnSubmissionStarted(e analysis.SubmissionStarted) {
	s.logger.Info("Submitting document for analysis",
		logger.String("document", e.Document),
		logger.String("contentType", e.ContentType.String()),
		logger.String("model", e.Model),
		logger.Int("size", e.Size),
	)
}

func (s *LogSink) OnOperationAccepted(e analysis.OperationAccepted) {
	s.logger.Info("Analysis operation accepted",
		logger.String("document", e.Document),
		logger.String("operationLocation", e.Handle.String()),
	)
}

func (s *LogSink) OnPollAttempt(e analysis.PollAttempt) {
	s.logger.Info("Analysis status",
		logger.String("document", e.Document),
		logger.String("status", e.RawStatus),
		logger.Int("attempt", e.Attempt),
		logger.Int("maxAttempts", e.MaxAttempts),
	)
}

func (s *LogSink) OnSucceeded(e analysis.Succeeded) {
	s.logger.Info("Analysis succeeded",
		logger.String("document", e.Document),
		logger.Int("attempts", e.Attempts),
		logger.Duration("elapsed", e.Elapsed),
	)
}

func (s *LogSink) OnFailed(e analysis.Failed) {
	fields := []logger.Field{
		logger.String("document", e.Document),
		logger.String("kind", string(e.Err.Kind)),
		logger.String("step", string(e.Err.Step)),
		logger.Duration("elapsed", e.Elapsed),
		logger.Error(e.Err),
	}
	if e.Err.StatusCode != 0 {
		fields = append(fields, logger.Int("statusCode", e.Err.StatusCode))
	}
	if e.Err.Attempts != 0 {
		fields = append(fields, logger.Int("attempts", e.Err.Attempts))
	}
	s.logger.Error("Analysis failed", fields...)
}

// progressSink mirrors poll progress into the task status so clients can
// follow a running analysis.
type progressSink struct {
	analysis.NopSink
	ctx     context.Context
	queue   queue.Queue
	taskID  string
	started time.Time
	logger  logger.Logger
}

func (s *progressSink) OnOperationAccepted(analysis.OperationAccepted) {
	s.save(&queue.TaskStatus{
		TaskID:    s.taskID,
		Status:    queue.StatusPolling,
		Progress:  0.1,
		StartedAt: s.started,
	})
}

func (s *progressSink) OnPollAttempt(e analysis.PollAttempt) {
	progress := 0.1
	if e.MaxAttempts > 0 {
		progress += 0.8 * float64(e.Attempt) / float64(e.MaxAttempts)
	}
	s.save(&queue.TaskStatus{
		TaskID:          s.taskID,
		Status:          queue.StatusPolling,
		Progress:        progress,
		Attempt:         e.Attempt,
		MaxAttempts:     e.MaxAttempts,
		OperationStatus: e.RawStatus,
		StartedAt:       s.started,
	})
}

func (s *progressSink) save(status *queue.TaskStatus) {
	// progress from a cancelled run would overwrite the cancellation
	if s.ctx.Err() != nil {
		return
	}
	if err := s.queue.SaveStatus(s.ctx, status); err != nil {
		s.logger.Warn("Failed to save task progress",
			logger.String("taskId", s.taskID),
			logger.Error(err),
		)
	}
}

var (
	_ analysis.EventSink = (*LogSink)(nil)
	_ analysis.EventSink = (*progressSink)(nil)
)
