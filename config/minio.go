package config

import (
	"sync"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadDotEnv()
		minioConfig = &MinioConfig{
			AccessKey:  envString("MINIO_ACCESS_KEY", ""),
			SecretKey:  envString("MINIO_SECRET_KEY", ""),
			Endpoint:   envString("MINIO_ENDPOINT", ""),
			UseSSL:     envBool("MINIO_USE_SSL", false),
			Region:     envString("MINIO_REGION", ""),
			BucketName: envString("MINIO_BUCKET_NAME", "tender-documents"),
		}
	})
	return minioConfig
}
