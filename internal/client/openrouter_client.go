package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/talecraft/api/internal/config"
)

// ErrEmptyCompletion is returned when the provider answered without any choice
var ErrEmptyCompletion = errors.New("no choices in response")

// CompletionRequest carries one chat-completion call
type CompletionRequest struct {
	System           string
	Prompt           string
	Temperature      float32
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
	MaxTokens        int
}

// OpenRouterClient talks to an OpenAI-compatible chat-completions API
type OpenRouterClient struct {
	client *openai.Client
	apiKey string
	model  string
}

// NewOpenRouterClient creates a new OpenRouter API client
func NewOpenRouterClient(cfg *config.OpenRouterConfig) *OpenRouterClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenRouterClient{
		client: openai.NewClientWithConfig(clientCfg),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

// ChatCompletion sends a system+user prompt pair and returns the trimmed answer
func (c *OpenRouterClient) ChatCompletion(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		MaxTokens:        req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter API error (status %d): %w", StatusCode(err), err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// IsConfigured returns true if the client has valid configuration
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// StatusCode extracts the provider HTTP status from a go-openai error, 0 if none
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var ttsErr *TTSError
	if errors.As(err, &ttsErr) {
		return ttsErr.StatusCode
	}
	return 0
}
