package config

import (
	"sync"
	"time"
)

var (
	generativeOnce   sync.Once
	generativeConfig *GenerativeConfig
)

// GenerativeConfig selects the LLM backend. Gemini is used when an API key is
// present, otherwise a local Ollama endpoint if enabled.
type GenerativeConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	OllamaEnabled bool
	OllamaURL     string
	OllamaModel   string
	Temperature   float64
	MaxTokens     int
	MaxPoolSize   int
	PoolTimeout   time.Duration
}

func (c *GenerativeConfig) Configured() bool {
	return c != nil && (c.GeminiAPIKey != "" || (c.OllamaEnabled && c.OllamaURL != ""))
}

func GetGenerativeConfig() *GenerativeConfig {
	generativeOnce.Do(func() {
		loadDotEnv()
		generativeConfig = &GenerativeConfig{
			GeminiAPIKey:  envString("GEMINI_API_KEY", ""),
			GeminiModel:   envString("GEMINI_MODEL", "gemini-2.5-flash"),
			OllamaEnabled: envBool("OLLAMA_ENABLED", false),
			OllamaURL:     envString("OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:   envString("OLLAMA_MODEL", "llama3.1"),
			Temperature:   0.1,
			MaxTokens:     envInt("GENERATIVE_MAX_TOKENS", 8192),
			MaxPoolSize:   envInt("OLLAMA_POOL_SIZE", 4),
			PoolTimeout:   envDuration("OLLAMA_POOL_TIMEOUT", 30*time.Second),
		}
	})
	return generativeConfig
}
