// Package queue hands analysis tasks from the API to the worker through asynq
// and keeps per-task status in redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// TaskType 定义任务类型
const (
	TaskTypeAnalyze = "tender:analyze"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queues = []string{QueueCritical, QueueDefault, QueueLow}

// Task states stored in TaskStatus.Status.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var ErrTaskNotFound = errors.New("task not found")

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
	Payload   map[string]string `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TaskStatus 定义任务状态. Progress is 0-100 and follows the pipeline stages.
type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Terminal reports whether the task will not change state again.
func (s *TaskStatus) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// DefaultQueueConfig reads redis and service settings from the environment.
func DefaultQueueConfig() *QueueConfig {
	r := config.GetRedisConfig()
	s := config.GetServiceConfig()
	return &QueueConfig{
		RedisAddr:      r.Addr,
		RedisPassword:  r.Password,
		RedisDB:        r.DB,
		MaxRetries:     s.MaxRetries,
		ProcessTimeout: s.TaskTimeout,
		StatusTTL:      s.StatusTTL,
	}
}

// RedisOpt is the asynq connection option shared by client and worker.
func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
	logger    logger.Logger
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig, log logger.Logger) (*AsynqQueue, error) {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		redis:     redisClient,
		cfg:       cfg,
		logger:    log.Named("queue"),
	}, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.TaskID(task.ID),
		asynq.Queue(queueFor(task.Priority)),
	}
	if q.cfg.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.ProcessTimeout))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// GetTaskStatus prefers the status the worker wrote and falls back to the
// asynq inspector for tasks that have not started.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
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

	for _, name := range queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask deletes a queued task, or signals a running one to stop.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		if info.State == asynq.TaskStateActive {
			if err := q.inspector.CancelProcessing(taskID); err != nil {
				return fmt.Errorf("failed to cancel task: %w", err)
			}
		} else if err := q.inspector.DeleteTask(name, taskID); err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}

		status := &TaskStatus{TaskID: taskID, Status: StatusCancelled, Progress: 100, FinishedAt: time.Now()}
		if err := q.SaveStatus(ctx, status); err != nil {
			q.logger.Warn("Failed to save cancelled status",
				logger.String("taskId", taskID),
				logger.Error(err),
			)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// SaveStatus 保存任务状态
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

// queueFor 根据优先级选择队列
func queueFor(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.Status = StatusRunning
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 100
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Progress = 100
		status.Error = info.LastErr
	case asynq.TaskStateRetry:
		status.Status = StatusPending
		status.Error = info.LastErr
	default:
		status.Status = StatusPending
	}
	return status
}
