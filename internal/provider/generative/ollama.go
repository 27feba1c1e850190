package generative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// OllamaResponse 定义 Ollama API 响应结构
type OllamaResponse struct {
	Response        string `json:"response"`
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

type OllamaClient struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func NewOllamaClient(cfg *config.GenerativeConfig) *OllamaClient {
	return &OllamaClient{
		endpoint:    strings.TrimRight(cfg.OllamaURL, "/"),
		model:       cfg.OllamaModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

func (c *OllamaClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"system": system,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}
	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}
	return result.Response, nil
}

func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags returned %d", resp.StatusCode)
	}
	return nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// OllamaClientPool caps concurrent requests against a local Ollama server.
type OllamaClientPool struct {
	clients chan *OllamaClient
	timeout time.Duration
}

func NewOllamaClientPool(cfg *config.GenerativeConfig) *OllamaClientPool {
	size := max(cfg.MaxPoolSize, 1)
	pool := &OllamaClientPool{
		clients: make(chan *OllamaClient, size),
		timeout: cfg.PoolTimeout,
	}
	// 预创建客户端
	for i := 0; i < size; i++ {
		pool.clients <- NewOllamaClient(cfg)
	}
	return pool
}

func (p *OllamaClientPool) Get(ctx context.Context) (*OllamaClient, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case client := <-p.clients:
		return client, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for available client")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *OllamaClientPool) Put(client *OllamaClient) {
	select {
	case p.clients <- client:
	default:
		// 池已满，丢弃客户端
	}
}

func (p *OllamaClientPool) Close() error {
	for {
		select {
		case client := <-p.clients:
			client.Close()
		default:
			return nil
		}
	}
}

// Ollama is the Generator over a client pool.
type Ollama struct {
	pool   *OllamaClientPool
	logger logger.Logger
}

func NewOllama(cfg *config.GenerativeConfig, log logger.Logger) *Ollama {
	return &Ollama{pool: NewOllamaClientPool(cfg), logger: log.Named("ollama")}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Generate(ctx context.Context, system, prompt string) (string, error) {
	client, err := o.pool.Get(ctx)
	if err != nil {
		return "", err
	}
	defer o.pool.Put(client)
	return client.Generate(ctx, system, prompt)
}

func (o *Ollama) Ping(ctx context.Context) error {
	client, err := o.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer o.pool.Put(client)
	return client.Ping(ctx)
}

func (o *Ollama) Close() error { return o.pool.Close() }
