package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultTokens  = 4096
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewAnthropicClient builds a client from a resolved session config.
func NewAnthropicClient(cfg llm.Config, logger *zap.Logger) (*AnthropicClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("credential %s is not set", keyEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// SupportsStreaming is false: turns fall back to synchronous completion.
func (c *AnthropicClient) SupportsStreaming() bool { return false }

type anthropicRequest struct {
	Model     string          `json:"model"`
	Messages  json.RawMessage `json:"messages"`
	System    json.RawMessage `json:"system,omitempty"`
	Tools     []anthropicTool `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	// Temperature is a pointer so zero is distinguishable from unset;
	// Anthropic rejects out-of-range values instead of ignoring them.
	Temperature *float32 `json:"temperature,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Complete sends a synchronous messages request and returns the raw response
// body.
func (c *AnthropicClient) Complete(ctx context.Context, req *llm.Request) (json.RawMessage, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// max_tokens is mandatory on this API.
		maxTokens = anthropicDefaultTokens
	}
	body := anthropicRequest{
		Model:     req.Model,
		Messages:  req.Payload.Messages,
		System:    req.Payload.System,
		Tools:     toAnthropicTools(req.Tools),
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(c.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), c.Name())
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithRetryable(true).WithProvider(c.Name())
	}
	return raw, nil
}

// Stream is not implemented; SupportsStreaming reports false.
func (c *AnthropicClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, types.NewError(types.ErrInvalidRequest, "anthropic client does not stream")
}

func toAnthropicTools(schemas []types.ToolSchema) []anthropicTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, anthropicTool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Parameters,
		})
	}
	return out
}
