package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	Redis       asynq.RedisClientOpt
	Concurrency int
	Queues      map[string]int
	// CleanupSpec is a cron spec for the retention sweep; empty disables it.
	CleanupSpec string
}

func DefaultQueues() map[string]int {
	return map[string]int{
		"critical": 6,
		"default":  3,
		"low":      1,
	}
}

type BaseWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    logger.Logger
	stopChan  chan struct{}
}

func newBaseWorker(cfg *Config, log logger.Logger) BaseWorker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues()
	}
	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		Logger: asynqLogger{log.Named("asynq")},
	})

	var scheduler *asynq.Scheduler
	if cfg.CleanupSpec != "" {
		scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{Logger: asynqLogger{log.Named("scheduler")}})
	}

	return BaseWorker{
		server:    server,
		scheduler: scheduler,
		mux:       asynq.NewServeMux(),
		logger:    log,
		stopChan:  make(chan struct{}),
	}
}

func (w *BaseWorker) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return nil
}

// Done is closed once Stop has been called.
func (w *BaseWorker) Done() <-chan struct{} { return w.stopChan }

// asynqLogger routes asynq's own logging through the service logger.
type asynqLogger struct{ l logger.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(sprint(args)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(sprint(args)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(sprint(args)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(sprint(args)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(sprint(args)) }

func sprint(args []interface{}) string { return fmt.Sprint(args...) }
