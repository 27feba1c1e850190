package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/bootstrap"
	"github.com/aydarnuman/tender-analyzer/internal/provider/layout"
	"github.com/aydarnuman/tender-analyzer/internal/service/analysis"
	uploadvalidator "github.com/aydarnuman/tender-analyzer/internal/utils/validator"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
	"github.com/aydarnuman/tender-analyzer/pkg/storage"
	"github.com/aydarnuman/tender-analyzer/pkg/worker"
)

func main() {
	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("Worker failed", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcCfg := config.GetServiceConfig()
	pipelineCfg, err := config.LoadPipelineConfig(svcCfg.PipelineFile)
	if err != nil {
		return err
	}

	store, err := storage.NewStorage(ctx, storage.StorageType(svcCfg.StorageType), log)
	if err != nil {
		return err
	}

	queueCfg := queue.DefaultQueueConfig()
	q, err := queue.NewAsynqQueue(queueCfg, log)
	if err != nil {
		return err
	}
	defer q.Close()

	var stager layout.Stager
	if storage.StorageType(svcCfg.StorageType) == storage.StorageTypeS3 {
		stager = store
	}
	p, err := bootstrap.NewPipeline(ctx, pipelineCfg, stager, svcCfg.HealthInterval, log)
	if err != nil {
		return err
	}
	defer p.Close()
	go p.Monitor.Run(ctx)

	svc := analysis.NewService(
		p.Orchestrator,
		q,
		store,
		uploadvalidator.NewDocumentValidator(log, uploadvalidator.DefaultConfig(svcCfg.MaxFileSize)),
		validator.Default(),
		log,
		&analysis.ServiceConfig{RetentionPeriod: svcCfg.RetentionPeriod},
	)

	// 创建 worker
	analysisWorker := worker.NewAnalysisWorker(&worker.Config{
		Redis:       queueCfg.RedisOpt(),
		Concurrency: svcCfg.Concurrency,
		CleanupSpec: "@daily",
	}, svc, log)

	if err := analysisWorker.Start(ctx); err != nil {
		return err
	}
	log.Info("Worker started",
		logger.Int("concurrency", svcCfg.Concurrency),
		logger.Any("providers", p.Orchestrator.Health()),
	)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-analysisWorker.Done():
	}

	// 优雅关闭
	log.Info("Shutting down worker...")
	analysisWorker.Stop()
	log.Info("Worker stopped")
	return nil
}
