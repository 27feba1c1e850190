package config

import (
	"sync"
)

var (
	docIntelOnce   sync.Once
	docIntelConfig *DocumentIntelligenceConfig
)

// DocumentIntelligenceConfig configures the trained-model provider: a custom
// extraction model served behind an analyze/poll REST API.
type DocumentIntelligenceConfig struct {
	Enabled    bool
	Endpoint   string
	APIKey     string
	ModelID    string
	APIVersion string
}

func (c *DocumentIntelligenceConfig) Configured() bool {
	return c != nil && c.Enabled && c.Endpoint != "" && c.APIKey != "" && c.ModelID != ""
}

func GetDocumentIntelligenceConfig() *DocumentIntelligenceConfig {
	docIntelOnce.Do(func() {
		loadDotEnv()
		docIntelConfig = &DocumentIntelligenceConfig{
			Enabled:    envBool("DOCINTEL_ENABLED", true),
			Endpoint:   envString("DOCINTEL_ENDPOINT", ""),
			APIKey:     envString("DOCINTEL_API_KEY", ""),
			ModelID:    envString("DOCINTEL_MODEL_ID", ""),
			APIVersion: envString("DOCINTEL_API_VERSION", "2024-11-30"),
		}
	})
	return docIntelConfig
}
