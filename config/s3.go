package config

import (
	"sync"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadDotEnv()
		s3Config = &S3Config{
			BucketName: envString("AWS_S3_BUCKET_NAME", ""),
			Region:     envString("AWS_REGION", ""),
			Endpoint:   envString("AWS_ENDPOINT", ""),
			AccessKey:  envString("AWS_ACCESS_KEY", ""),
			SecretKey:  envString("AWS_SECRET_KEY", ""),
		}
	})
	return s3Config
}
