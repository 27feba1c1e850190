package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aydarnuman/tender-analyzer/internal/merge"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
	uploadvalidator "github.com/aydarnuman/tender-analyzer/internal/utils/validator"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	"github.com/aydarnuman/tender-analyzer/pkg/queue"
	"github.com/aydarnuman/tender-analyzer/pkg/storage"
)

const (
	uploadPrefix = "uploads/"
	resultPrefix = "results/"
)

type AnalysisService struct {
	analyzer  Analyzer
	queue     queue.Queue
	storage   storage.Storage
	uploads   *uploadvalidator.DocumentValidator
	schema    validator.Schema
	merger    *merge.Engine
	logger    logger.Logger
	config    *ServiceConfig
	now       func() time.Time
	newTaskID func() string
}

type ServiceConfig struct {
	QueuePriority   int
	RetentionPeriod time.Duration
	// MergeWorkers bounds concurrent result loads during a merge.
	MergeWorkers int
}

func NewService(
	analyzer Analyzer,
	q queue.Queue,
	store storage.Storage,
	uploads *uploadvalidator.DocumentValidator,
	schema validator.Schema,
	log logger.Logger,
	cfg *ServiceConfig,
) *AnalysisService {
	if cfg == nil {
		cfg = &ServiceConfig{QueuePriority: 2, RetentionPeriod: 7 * 24 * time.Hour}
	}
	if cfg.MergeWorkers <= 0 {
		cfg.MergeWorkers = 4
	}
	return &AnalysisService{
		analyzer:  analyzer,
		queue:     q,
		storage:   store,
		uploads:   uploads,
		schema:    schema,
		merger:    merge.NewEngine(log),
		logger:    log.Named("analysis"),
		config:    cfg,
		now:       time.Now,
		newTaskID: func() string { return uuid.New().String() },
	}
}

func uploadKey(taskID, ext string) string { return uploadPrefix + taskID + ext }
func resultKey(taskID string) string      { return resultPrefix + taskID + ".json" }

// Submit validates and stores an upload, then queues its analysis.
func (s *AnalysisService) Submit(ctx context.Context, filename string, content []byte, metadata map[string]string) (*models.ProcessingTask, error) {
	s.logger.Info("Starting upload",
		logger.String("filename", filename),
		logger.Int("size", len(content)),
	)

	check := s.uploads.Validate(filename, content)
	if !check.IsValid {
		return nil, &UploadError{Result: check}
	}

	taskID := s.newTaskID()
	now := s.now()
	ext := check.FileInfo.Extension

	meta := map[string]string{
		"filename": check.FileInfo.Filename,
		"size":     strconv.Itoa(len(content)),
		"type":     ext,
		"sha256":   check.FileInfo.Hash,
	}
	for k, v := range metadata {
		if _, taken := meta[k]; !taken && v != "" {
			meta[k] = v
		}
	}

	// 存储文件
	fileKey, err := s.storage.Store(ctx, bytes.NewReader(content), uploadKey(taskID, ext))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	task := &queue.Task{
		ID:       taskID,
		Type:     queue.TaskTypeAnalyze,
		Priority: s.config.QueuePriority,
		Payload: map[string]string{
			"fileKey":  fileKey,
			"filename": check.FileInfo.Filename,
		},
		Metadata:  meta,
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if delErr := s.storage.Delete(ctx, fileKey); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.String("key", fileKey), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusPending,
		StartedAt: now,
	}); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
	}

	s.logger.Info("Analysis task created",
		logger.String("taskId", task.ID),
		logger.String("filename", check.FileInfo.Filename),
	)

	return &models.ProcessingTask{
		ID:        task.ID,
		Status:    models.StatusPending,
		Type:      task.Type,
		Priority:  task.Priority,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HandleAnalysis runs one queued task. Progress events are written to the
// status store as the pipeline advances.
func (s *AnalysisService) HandleAnalysis(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload["fileKey"] == "" {
		return errors.New("invalid task: missing required data")
	}
	log := s.logger.With(logger.String("taskId", task.ID), logger.String("filename", task.Payload["filename"]))
	log.Info("Processing analysis task")

	started := s.now()
	status := &queue.TaskStatus{TaskID: task.ID, Status: queue.StatusRunning, StartedAt: started}
	s.saveStatus(ctx, status)

	content, err := s.readAll(ctx, task.Payload["fileKey"])
	if err != nil {
		s.fail(ctx, status, err)
		return err
	}

	doc := models.NewDocument(task.Payload["filename"], content)
	status.DocumentID = doc.ID

	result, err := s.analyzer.Analyze(ctx, doc, pipeline.Options{
		OnProgress: func(e pipeline.Event) {
			status.Stage = string(e.Stage)
			status.Message = e.Message
			status.Progress = e.Progress
			s.saveStatus(ctx, status)
		},
	})

	switch {
	case errors.Is(err, context.Canceled):
		// 取消时保留部分结果
		if result != nil {
			if storeErr := s.storeResult(context.WithoutCancel(ctx), task.ID, result); storeErr != nil {
				log.Warn("Failed to store partial result", logger.Error(storeErr))
			}
		}
		status.Status = queue.StatusCancelled
		status.Error = err.Error()
		status.FinishedAt = s.now()
		s.saveStatus(context.WithoutCancel(ctx), status)
		return err
	case err != nil:
		s.fail(ctx, status, err)
		return err
	}

	if err := s.storeResult(ctx, task.ID, result); err != nil {
		s.fail(ctx, status, err)
		return err
	}

	status.Status = queue.StatusCompleted
	status.Progress = 100
	status.FinishedAt = s.now()
	if result.Meta.TimedOut {
		status.Message = "timed out, partial result stored"
	}
	s.saveStatus(ctx, status)

	log.Info("Analysis completed",
		logger.String("documentId", doc.ID),
		logger.Strings("providers", result.Meta.ProviderUsed),
		logger.Float64("completeness", completeness(result)),
		logger.Duration("elapsed", s.now().Sub(started)),
	)
	return nil
}

func (s *AnalysisService) fail(ctx context.Context, status *queue.TaskStatus, err error) {
	status.Status = queue.StatusFailed
	status.Stage = string(pipeline.StageFailed)
	status.Progress = 100
	status.Error = err.Error()
	status.FinishedAt = s.now()
	s.saveStatus(context.WithoutCancel(ctx), status)
	s.logger.Error("Analysis failed",
		logger.String("taskId", status.TaskID),
		logger.Error(err),
	)
}

func (s *AnalysisService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	snapshot := *status
	if err := s.queue.SaveStatus(ctx, &snapshot); err != nil {
		s.logger.Warn("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("stage", status.Stage),
			logger.Error(err),
		)
	}
}

func (s *AnalysisService) readAll(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

func (s *AnalysisService) storeResult(ctx context.Context, taskID string, result *models.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), resultKey(taskID)); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// GetStatus 获取处理状态
func (s *AnalysisService) GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	return &models.ProcessingTask{
		ID:         status.TaskID,
		Status:     processingStatus(status.Status),
		Type:       queue.TaskTypeAnalyze,
		Progress:   status.Progress,
		DocumentID: status.DocumentID,
		Stage:      status.Stage,
		Message:    status.Message,
		Error:      status.Error,
		Metadata:   map[string]string{},
		CreatedAt:  status.StartedAt,
		UpdatedAt:  status.FinishedAt,
	}, nil
}

func processingStatus(s string) models.ProcessingStatus {
	switch s {
	case queue.StatusRunning:
		return models.StatusRunning
	case queue.StatusCompleted:
		return models.StatusCompleted
	case queue.StatusFailed:
		return models.StatusFailed
	case queue.StatusCancelled:
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

// GetResult loads a stored analysis. Cancelled tasks may have a partial one.
func (s *AnalysisService) GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error) {
	reader, err := s.storage.Get(ctx, resultKey(taskID))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to get result: %w", err)
		}
		status, statusErr := s.GetStatus(ctx, taskID)
		if statusErr != nil {
			return nil, statusErr
		}
		if status.Status == models.StatusFailed {
			return nil, fmt.Errorf("%w: task %s failed: %s", models.ErrNotFound, taskID, status.Error)
		}
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotReady, taskID, status.Status)
	}
	defer reader.Close()

	var result models.AnalysisResult
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// Merge fuses the stored results of taskIDs, in the given order, into one
// tender record and scores it with the critical-field schema.
func (s *AnalysisService) Merge(ctx context.Context, tenderID string, taskIDs []string) (*MergeOutcome, error) {
	if len(taskIDs) == 0 {
		return nil, errors.New("no tasks to merge")
	}

	results := make([]*models.AnalysisResult, len(taskIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MergeWorkers)
	for i, id := range taskIDs {
		g.Go(func() error {
			r, err := s.GetResult(gctx, id)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeResults(s.merger, s.schema, tenderID, results)
}

// MergeResults is the storage-free half of Merge, shared with the CLI.
func MergeResults(engine *merge.Engine, schema validator.Schema, tenderID string, results []*models.AnalysisResult) (*MergeOutcome, error) {
	record, err := engine.Merge(tenderID, results)
	if err != nil {
		return nil, fmt.Errorf("failed to merge results: %w", err)
	}
	projected, err := record.Analysis()
	if err != nil {
		return nil, fmt.Errorf("failed to project merged record: %w", err)
	}
	report, err := validator.Validate(projected, schema)
	if err != nil {
		return nil, err
	}
	return &MergeOutcome{Record: record, Validation: report}, nil
}

func (s *AnalysisService) Revalidate(result *models.AnalysisResult) (*models.ValidationReport, error) {
	if result == nil {
		return nil, errors.New("no result to validate")
	}
	return validator.Validate(result, s.schema)
}

// CancelTask 取消任务
func (s *AnalysisService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
		}
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks 清理过期任务
func (s *AnalysisService) CleanupTasks(ctx context.Context) (int, error) {
	threshold := s.now().Add(-s.config.RetentionPeriod)
	total := 0
	for _, prefix := range []string{uploadPrefix, resultPrefix} {
		n, err := s.storage.CleanupBefore(ctx, prefix, threshold)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to cleanup %s: %w", strings.TrimSuffix(prefix, "/"), err)
		}
	}
	s.logger.Info("Completed tasks cleanup",
		logger.Time("threshold", threshold),
		logger.Int("deleted", total),
	)
	return total, nil
}

func (s *AnalysisService) Health() pipeline.HealthReport {
	return s.analyzer.Health()
}

func completeness(r *models.AnalysisResult) float64 {
	if r.CriticalFields.After != nil {
		return r.CriticalFields.After.Completeness
	}
	return 0
}
