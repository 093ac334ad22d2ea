package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-analyzer/config"
	"github.com/feichai0017/document-analyzer/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop()
}

type Config struct {
	RedisAddr       string
	RedisDB         int
	RedisPassword   string
	Concurrency     int
	Queues          map[string]int
	ShutdownTimeout time.Duration
	// CleanupSchedule registers the periodic storage cleanup when non-empty.
	CleanupSchedule string
}

// ConfigFrom builds a worker Config from the application configuration.
func ConfigFrom(redis config.RedisConfig, w config.WorkerConfig) *Config {
	return &Config{
		RedisAddr:       redis.Addr,
		RedisDB:         redis.DB,
		RedisPassword:   redis.Password,
		Concurrency:     w.Concurrency,
		Queues:          w.Queues,
		ShutdownTimeout: 10 * time.Second,
		CleanupSchedule: w.CleanupSchedule,
	}
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, DB: c.RedisDB, Password: c.RedisPassword}
}

type BaseWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    logger.Logger
	stopOnce  sync.Once
}

// Stop waits for in-flight tasks up to the shutdown timeout. It is safe to
// call more than once.
func (w *BaseWorker) Stop() {
	w.stopOnce.Do(func() {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		w.logger.Info("Worker stopped")
	})
}
