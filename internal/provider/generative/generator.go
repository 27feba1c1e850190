// Package generative is the LLM extraction provider. A chunk of text plus an
// instruction goes in; a partial tender record in JSON comes out.
package generative

import (
	"context"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// Generator is one LLM backend that can answer with JSON.
type Generator interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewGenerator picks Gemini when an API key is configured, then Ollama. It
// returns nil when neither is available.
func NewGenerator(ctx context.Context, cfg *config.GenerativeConfig, log logger.Logger) (Generator, error) {
	switch {
	case cfg == nil:
		return nil, nil
	case cfg.GeminiAPIKey != "":
		g, err := NewGemini(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	case cfg.OllamaEnabled && cfg.OllamaURL != "":
		return NewOllama(cfg, log), nil
	}
	return nil, nil
}
