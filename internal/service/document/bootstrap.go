package document

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-analyzer/config"
	"github.com/feichai0017/document-analyzer/internal/agent"
	"github.com/feichai0017/document-analyzer/internal/utils/validator"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/queue"
	"github.com/feichai0017/document-analyzer/pkg/storage"
)

// Components are the long-lived dependencies shared by the server and the
// worker.
type Components struct {
	Service *DocumentService
	Queue   *queue.AsynqQueue
	Storage storage.Storage
}

// Build wires storage, queue, analyzer and service from cfg.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	store, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisDB:        cfg.Redis.DB,
		RedisPassword:  cfg.Redis.Password,
		MaxRetries:     cfg.Worker.MaxRetry,
		ProcessTimeout: cfg.Worker.ProcessTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	if err := q.Ping(ctx); err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	analyzer, err := agent.NewAnalyzer(ctx, cfg, log)
	if err != nil {
		q.Close()
		return nil, err
	}

	svcCfg := DefaultServiceConfig()
	if cfg.Storage.IncomingPrefix != "" {
		svcCfg.IncomingPrefix = cfg.Storage.IncomingPrefix
	}
	if cfg.Storage.ResultPrefix != "" {
		svcCfg.ResultPrefix = cfg.Storage.ResultPrefix
	}
	if cfg.Worker.RetentionPeriod > 0 {
		svcCfg.RetentionPeriod = cfg.Worker.RetentionPeriod
	}
	svcCfg.Validator = validator.DefaultConfig()
	if cfg.Server.MaxUploadSize > 0 {
		svcCfg.Validator.MaxFileSize = cfg.Server.MaxUploadSize
	}

	return &Components{
		Service: NewService(analyzer, q, store, log, svcCfg),
		Queue:   q,
		Storage: store,
	}, nil
}

// Close releases the queue connections.
func (c *Components) Close() error {
	return c.Queue.Close()
}
