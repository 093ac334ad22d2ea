package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskType 定义任务类型
const (
	TaskTypeDocumentAnalyze = "document:analyze"
	TaskTypeStorageCleanup  = "storage:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Task states reported through TaskStatus.Status.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusPolling   = "polling"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const statusTTL = 24 * time.Hour

var (
	// ErrTaskNotFound is returned when neither Redis nor any queue knows the task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask is returned by Enqueue when a task with the same id exists.
	ErrDuplicateTask = errors.New("task already enqueued")
)

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task 定义任务结构
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   DocumentPayload   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// DocumentPayload locates the document a task analyzes.
type DocumentPayload struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Model    string `json:"model,omitempty"`
	Source   string `json:"source,omitempty"`
}

// TaskStatus 定义任务状态
type TaskStatus struct {
	TaskID          string    `json:"taskId"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	Attempt         int       `json:"attempt,omitempty"`
	MaxAttempts     int       `json:"maxAttempts,omitempty"`
	OperationStatus string    `json:"operationStatus,omitempty"`
	ResultKey       string    `json:"resultKey,omitempty"`
	ErrorKind       string    `json:"errorKind,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}

// Terminal reports whether the task will not change state again.
func (s *TaskStatus) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       QueueConfig
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	RedisPassword  string
	MaxRetries     int
	ProcessTimeout time.Duration
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	}

	// 创建 Redis 客户端
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       *cfg,
	}, nil
}

// Ping checks the Redis connection.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	t, err := NewAsynqTask(task, q.cfg.MaxRetries, q.cfg.ProcessTimeout)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return q.SaveStatus(ctx, &TaskStatus{
		TaskID:    task.ID,
		Status:    StatusPending,
		StartedAt: task.CreatedAt,
	})
}

// NewAsynqTask builds the asynq task for task, routed by priority.
func NewAsynqTask(task *Task, maxRetry int, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(task.ID),
		asynq.Queue(QueueForPriority(task.Priority)),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(task.Type, payload, opts...), nil
}

// QueueForPriority 根据优先选择队列
func QueueForPriority(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// DecodeTask parses an asynq payload produced by NewAsynqTask.
func DecodeTask(payload []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.ID == "" || task.Payload.Key == "" {
		return nil, fmt.Errorf("invalid task data: missing id or object key")
	}
	return &task, nil
}

// GetTaskStatus 获取任务状态
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	// 首先尝试从 Redis 获取状态
	data, err := q.redis.Get(ctx, StatusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	// 如果 Redis 中没有，从所有队列中查找
	for _, queueName := range []string{QueueCritical, QueueDefault, QueueLow} {
		info, err := q.inspector.GetTaskInfo(queueName, taskID)
		if err != nil {
			continue
		}
		return convertAsynqStatus(info), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask 取消任务
// The cancelled status is stored before the task is stopped so the handler,
// and any retry asynq schedules for it, sees the cancellation.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, queueName := range []string{QueueCritical, QueueDefault, QueueLow} {
		info, err := q.inspector.GetTaskInfo(queueName, taskID)
		if err != nil {
			lastErr = err
			continue
		}
		if err := q.SaveStatus(ctx, &TaskStatus{
			TaskID:     taskID,
			Status:     StatusCancelled,
			FinishedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		if info.State == asynq.TaskStateActive {
			// running handlers observe cancellation through their context
			err = q.inspector.CancelProcessing(taskID)
		} else {
			err = q.inspector.DeleteTask(queueName, taskID)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

// SaveStatus stores status for 24 hours.
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := q.redis.Set(ctx, StatusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// StatusKey is the Redis key holding a task's status.
func StatusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = StatusPending
	case asynq.TaskStateActive:
		status.Status = StatusRunning
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry:
		status.Status = StatusPending
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	default:
		status.Status = StatusPending
	}

	return status
}

var _ Queue = (*AsynqQueue)(nil)
