package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-analyzer/config"
	"github.com/feichai0017/document-analyzer/internal/agent/analysis"
	"github.com/feichai0017/document-analyzer/internal/service/document"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/storage/minio"
	"github.com/feichai0017/document-analyzer/pkg/trigger"
	"github.com/feichai0017/document-analyzer/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithField("service", "worker"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 创建文档服务
	components, err := document.Build(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to build document service", logger.Error(err))
		os.Exit(1)
	}
	defer components.Close()

	documentWorker, err := worker.NewDocumentWorker(worker.ConfigFrom(cfg.Redis, cfg.Worker), components.Service, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}
	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	if cfg.Storage.Watch {
		store, ok := components.Storage.(*minio.MinioStorage)
		if !ok {
			log.Error("Bucket notifications require minio storage")
			os.Exit(1)
		}
		watcher := trigger.NewWatcher(store.Client(), store.Bucket(), cfg.Storage.IncomingPrefix,
			analysis.SupportedExtensions(), components.Service, log)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("Bucket watcher stopped", logger.Error(err))
			}
		}()
	}

	<-ctx.Done()

	log.Info("Shutting down worker...")
	documentWorker.Stop()
}
