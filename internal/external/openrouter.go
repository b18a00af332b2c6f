package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"seep/internal/types"
)

// openRouterAPIBase is the default OpenAI-compatible API base URL.
const openRouterAPIBase = "https://openrouter.ai/api/v1"

// OpenRouterConfig holds the configuration for creating an OpenRouterClient.
type OpenRouterConfig struct {
	APIKey  types.SecretString
	BaseURL string // defaults to openRouterAPIBase
	Model   string
	Referer string // optional HTTP-Referer attribution header
	Title   string // optional X-Title attribution header
	Logger  *slog.Logger
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// OpenRouterClient implements ChatCompleter against an OpenAI-compatible
// /chat/completions endpoint.
type OpenRouterClient struct {
	base    *BaseClient
	cfg     OpenRouterConfig
	baseURL string
	logger  *slog.Logger
}

var _ ChatCompleter = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates an OpenRouterClient. Completions are slow, so
// the http client timeout should be generous.
func NewOpenRouterClient(httpClient *http.Client, cfg OpenRouterConfig, opts ...BaseClientOption) *OpenRouterClient {
	base := NewBaseClient(
		httpClient,
		"llm",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    1 * time.Second,
			MaxWait:    5 * time.Second,
		},
		"SEEP/1.0",
		opts...,
	)
	return NewOpenRouterClientWithBase(base, cfg)
}

// NewOpenRouterClientWithBase creates an OpenRouterClient with a
// pre-configured BaseClient.
func NewOpenRouterClientWithBase(base *BaseClient, cfg OpenRouterConfig) *OpenRouterClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openRouterAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenRouterClient{
		base:    base,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Breaker exposes the underlying BaseClient for health checks.
func (c *OpenRouterClient) Breaker() *BaseClient { return c.base }

// Complete sends messages to the configured model and returns the first
// choice's content.
func (c *OpenRouterClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey.Unmask())
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		return "", c.wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "chat completion rejected",
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return "", types.NewAppError(
			types.ErrCodeUpstreamLLM,
			fmt.Sprintf("chat completion returned %d", resp.StatusCode),
			nil,
		)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "failed to decode chat completion", err)
	}
	if out.Error != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "chat completion error: "+out.Error.Message, nil)
	}
	if len(out.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "chat completion returned no choices", nil)
	}

	c.logger.DebugContext(ctx, "chat completion finished",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out.Choices[0].Message.Content, nil
}

// wrapError keeps the BaseClient code but marks the failure as LLM-side.
func (c *OpenRouterClient) wrapError(err error) error {
	if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeUpstreamUnavailable {
		return types.NewAppError(types.ErrCodeUpstreamLLM, appErr.Message, appErr)
	}
	return err
}
