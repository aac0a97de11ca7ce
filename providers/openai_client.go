package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIClient talks to the OpenAI chat completions API, or any gateway that
// speaks the same protocol when given a different base URL. It is the
// transport behind both the "openai" provider and the "openai-compat" router.
type OpenAIClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewOpenAIClient builds a client from a resolved session config. The API key
// is read from the configured environment variable at construction time.
func NewOpenAIClient(cfg llm.Config, logger *zap.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("credential %s is not set", keyEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		name:    cfg.Provider,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}, nil
}

func (c *OpenAIClient) Name() string            { return c.name }
func (c *OpenAIClient) SupportsStreaming() bool { return true }

type oaiRequest struct {
	Model       string          `json:"model"`
	Messages    json.RawMessage `json:"messages"`
	Tools       []oaiTool       `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"` // always "function"
	Function oaiToolSpec `json:"function"`
}

type oaiToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Complete sends a synchronous chat completion request and returns the raw
// response body.
func (c *OpenAIClient) Complete(ctx context.Context, req *llm.Request) (json.RawMessage, error) {
	resp, err := c.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithRetryable(true).WithProvider(c.name)
	}
	return raw, nil
}

// Stream sends a streaming request. Deltas are forwarded as they arrive; the
// final chunk carries a consolidated chat-completion response assembled from
// the accumulated deltas, so the caller parses it exactly like a Complete
// result.
func (c *OpenAIClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	resp, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go c.consumeSSE(ctx, resp.Body, ch)
	return ch, nil
}

func (c *OpenAIClient) send(ctx context.Context, req *llm.Request, stream bool) (*http.Response, error) {
	body := oaiRequest{
		Model:       req.Model,
		Messages:    req.Payload.Messages,
		Tools:       toOpenAITools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(c.name)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), c.name)
	}
	return resp, nil
}

// oaiStreamEvent is one SSE data payload from the streaming API.
type oaiStreamEvent struct {
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Delta        struct {
			Role      string `json:"role,omitempty"`
			Content   string `json:"content,omitempty"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *OpenAIClient) consumeSSE(ctx context.Context, body io.ReadCloser, ch chan<- llm.StreamChunk) {
	defer body.Close()
	defer close(ch)

	var content strings.Builder
	// Tool call fragments arrive keyed by index; arguments accumulate
	// across events.
	type callAccum struct {
		id   string
		name string
		args strings.Builder
	}
	calls := make(map[int]*callAccum)
	maxIdx := -1

	emit := func(chunk llm.StreamChunk) bool {
		select {
		case <-ctx.Done():
			return false
		case ch <- chunk:
			return true
		}
	}

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				emit(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).
					WithRetryable(true).WithProvider(c.name)})
				return
			}
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var event oaiStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			emit(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).
				WithRetryable(true).WithProvider(c.name)})
			return
		}

		for _, choice := range event.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if !emit(llm.StreamChunk{Delta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				accum, ok := calls[tc.Index]
				if !ok {
					accum = &callAccum{}
					calls[tc.Index] = accum
					if tc.Index > maxIdx {
						maxIdx = tc.Index
					}
				}
				if tc.ID != "" {
					accum.id = tc.ID
				}
				if tc.Function.Name != "" {
					accum.name = tc.Function.Name
				}
				accum.args.WriteString(tc.Function.Arguments)
			}
		}
	}

	// Consolidate into a regular chat-completion response.
	final := oaiMessage{
		Role: string(types.RoleAssistant),
	}
	if content.Len() > 0 {
		final.Content = mustJSONString(content.String())
	}
	for idx := 0; idx <= maxIdx; idx++ {
		accum, ok := calls[idx]
		if !ok {
			continue
		}
		// Some gateways never send an id fragment; the downstream pairing of
		// calls with results requires one, so synthesize it.
		if accum.id == "" {
			accum.id = "call_" + uuid.NewString()
		}
		final.ToolCalls = append(final.ToolCalls, oaiToolCall{
			ID:   accum.id,
			Type: "function",
			Function: oaiFunction{
				Name:      accum.name,
				Arguments: accum.args.String(),
			},
		})
	}

	raw, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{"index": 0, "message": final}},
	})
	if err != nil {
		emit(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).
			WithProvider(c.name)})
		return
	}
	emit(llm.StreamChunk{Raw: raw})
}

func toOpenAITools(schemas []types.ToolSchema) []oaiTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]oaiTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, oaiTool{
			Type: "function",
			Function: oaiToolSpec{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
