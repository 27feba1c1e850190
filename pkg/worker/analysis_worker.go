package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
)

const TaskTypeCleanup = "tender:cleanup"

// AnalysisHandler is the service side of the worker.
type AnalysisHandler interface {
	HandleAnalysis(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) (int, error)
}

type AnalysisWorker struct {
	BaseWorker
	service     AnalysisHandler
	cleanupSpec string
}

func NewAnalysisWorker(cfg *Config, service AnalysisHandler, log logger.Logger) *AnalysisWorker {
	w := &AnalysisWorker{
		BaseWorker:  newBaseWorker(cfg, log.Named("worker")),
		service:     service,
		cleanupSpec: cfg.CleanupSpec,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeAnalyze, w.handleAnalysis)
	w.mux.HandleFunc(TaskTypeCleanup, w.handleCleanup)
	return w
}

func (w *AnalysisWorker) handleAnalysis(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w: %w", err, asynq.SkipRetry)
	}

	if task.ID == "" || task.Payload == nil {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("payload", task.Payload),
		)
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	ctx = logger.ContextWithTask(ctx, task.ID)
	w.logger.Info("Processing analysis task",
		logger.String("taskId", task.ID),
		logger.Any("metadata", task.Metadata),
	)
	w.writeResult(t, map[string]any{"status": queue.StatusRunning})

	err := w.service.HandleAnalysis(ctx, &task)
	switch {
	case err == nil:
		w.writeResult(t, map[string]any{"status": queue.StatusCompleted, "progress": 100})
		return nil
	case errors.Is(err, models.ErrUnsupportedFormat), errors.Is(err, models.ErrNotFound):
		// 重试不会改变结果
		w.writeResult(t, map[string]any{"status": queue.StatusFailed, "error": err.Error()})
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, context.Canceled):
		w.writeResult(t, map[string]any{"status": queue.StatusCancelled})
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		w.writeResult(t, map[string]any{"status": queue.StatusFailed, "error": err.Error()})
		return err
	}
}

func (w *AnalysisWorker) handleCleanup(ctx context.Context, _ *asynq.Task) error {
	n, err := w.service.CleanupTasks(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("Retention sweep finished", logger.Int("deleted", n))
	return nil
}

// writeResult records a summary on the asynq task; it is absent for tasks
// not dispatched by a server.
func (w *AnalysisWorker) writeResult(t *asynq.Task, v map[string]any) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	b, _ := json.Marshal(v)
	if _, err := rw.Write(b); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

func (w *AnalysisWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	if w.scheduler != nil {
		if _, err := w.scheduler.Register(w.cleanupSpec, asynq.NewTask(TaskTypeCleanup, nil), asynq.Queue(queue.QueueLow)); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}
