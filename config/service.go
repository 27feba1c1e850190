package config

import (
	"sync"
	"time"
)

var (
	serviceOnce   sync.Once
	serviceConfig *ServiceConfig
)

// ServiceConfig covers the server/worker processes around the pipeline.
type ServiceConfig struct {
	HTTPAddr string
	GRPCAddr string
	// StorageType is "s3" or "minio".
	StorageType     string
	MaxFileSize     int64
	RetentionPeriod time.Duration
	StatusTTL       time.Duration
	Concurrency     int
	MaxRetries      int
	TaskTimeout     time.Duration
	HealthInterval  time.Duration
	PipelineFile    string
}

func GetServiceConfig() *ServiceConfig {
	serviceOnce.Do(func() {
		loadDotEnv()
		serviceConfig = &ServiceConfig{
			HTTPAddr:        envString("HTTP_ADDR", ":8080"),
			GRPCAddr:        envString("GRPC_ADDR", ":9090"),
			StorageType:     envString("STORAGE_TYPE", "s3"),
			MaxFileSize:     int64(envInt("MAX_FILE_SIZE_MB", 50)) << 20,
			RetentionPeriod: envDuration("RETENTION_PERIOD", 7*24*time.Hour),
			StatusTTL:       envDuration("STATUS_TTL", 24*time.Hour),
			Concurrency:     envInt("WORKER_CONCURRENCY", 4),
			MaxRetries:      envInt("TASK_MAX_RETRIES", 2),
			TaskTimeout:     envDuration("TASK_TIMEOUT", 30*time.Minute),
			HealthInterval:  envDuration("HEALTH_INTERVAL", time.Minute),
			PipelineFile:    envString("PIPELINE_CONFIG", ""),
		}
	})
	return serviceConfig
}
