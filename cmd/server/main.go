package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/aydarnuman/tender-analyzer/api/grpchealth"
	"github.com/aydarnuman/tender-analyzer/api/handlers"
	"github.com/aydarnuman/tender-analyzer/api/routes"
	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/bootstrap"
	"github.com/aydarnuman/tender-analyzer/internal/provider/layout"
	"github.com/aydarnuman/tender-analyzer/internal/service/analysis"
	uploadvalidator "github.com/aydarnuman/tender-analyzer/internal/utils/validator"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
	"github.com/aydarnuman/tender-analyzer/pkg/storage"
)

func main() {
	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcCfg := config.GetServiceConfig()
	pipelineCfg, err := config.LoadPipelineConfig(svcCfg.PipelineFile)
	if err != nil {
		log.Fatal("Failed to load pipeline config", logger.Error(err))
	}

	store, err := storage.NewStorage(ctx, storage.StorageType(svcCfg.StorageType), log)
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}

	q, err := queue.NewAsynqQueue(queue.DefaultQueueConfig(), log)
	if err != nil {
		log.Fatal("Failed to initialize queue", logger.Error(err))
	}
	defer q.Close()

	// The server never runs analyses itself; the pipeline is built for its
	// health report.
	var stager layout.Stager
	if storage.StorageType(svcCfg.StorageType) == storage.StorageTypeS3 {
		stager = store
	}
	p, err := bootstrap.NewPipeline(ctx, pipelineCfg, stager, svcCfg.HealthInterval, log)
	if err != nil {
		log.Fatal("Failed to build pipeline", logger.Error(err))
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
		&analysis.ServiceConfig{QueuePriority: 2, RetentionPeriod: svcCfg.RetentionPeriod},
	)

	// init handlers
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = svcCfg.MaxFileSize
	routes.SetupRoutes(r, handlers.NewHandlers(svc, svcCfg.MaxFileSize, log), log)

	srv := &http.Server{
		Addr:              svcCfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthSrv := grpchealth.New(svc, log)
	grpcSrv := grpc.NewServer()
	healthSrv.Register(grpcSrv)
	go healthSrv.Run(ctx, svcCfg.HealthInterval)

	go func() {
		log.Info("HTTP server starting", logger.String("addr", svcCfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", logger.Error(err))
			stop()
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", svcCfg.GRPCAddr)
		if err != nil {
			log.Error("gRPC listen failed", logger.Error(err))
			stop()
			return
		}
		log.Info("gRPC health server starting", logger.String("addr", svcCfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("gRPC server error", logger.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	grpcSrv.GracefulStop()
}
