package config

import (
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

// TextractConfig configures the layout/OCR provider. Textract's asynchronous
// API reads documents from S3, so a staging bucket is required.
type TextractConfig struct {
	Enabled       bool
	BucketName    string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float64
}

// Configured reports whether enough is set to attempt the layout layer.
func (c *TextractConfig) Configured() bool {
	return c != nil && c.Enabled && c.Region != "" && c.BucketName != ""
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadDotEnv()
		textractConfig = &TextractConfig{
			Enabled:       envBool("TEXTRACT_ENABLED", true),
			BucketName:    envString("TEXTRACT_BUCKET_NAME", envString("AWS_S3_BUCKET_NAME", "")),
			Region:        envString("AWS_REGION", ""),
			Endpoint:      envString("AWS_ENDPOINT", ""),
			AccessKey:     envString("AWS_ACCESS_KEY", ""),
			SecretKey:     envString("AWS_SECRET_KEY", ""),
			MinConfidence: float64(envInt("TEXTRACT_MIN_CONFIDENCE", 60)),
		}
	})
	return textractConfig
}
