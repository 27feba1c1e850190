package generative

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	logger      logger.Logger
}

func NewGemini(ctx context.Context, cfg *config.GenerativeConfig, log logger.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.GeminiModel,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		logger:      log.Named("gemini"),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	if resp.UsageMetadata != nil {
		g.logger.Debug("Gemini usage",
			logger.Int("promptTokens", int(resp.UsageMetadata.PromptTokenCount)),
			logger.Int("outputTokens", int(resp.UsageMetadata.CandidatesTokenCount)),
		)
	}
	return text, nil
}

// Ping looks the configured model up.
func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("gemini model %s: %w", g.model, err)
	}
	return nil
}

func (g *Gemini) Close() error { return nil }
