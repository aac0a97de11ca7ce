package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/llm/tools"
)

// Invoker executes generated tools by performing the underlying HTTP
// request. Arguments map onto path, query and header parameters by name;
// the "body" argument becomes the JSON request body.
type Invoker struct {
	client *http.Client
	logger *zap.Logger
}

// NewInvoker creates an invoker.
func NewInvoker(timeout time.Duration, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Invoker{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Bind registers every generated tool into the registry with an HTTP-backed
// tool function.
func (inv *Invoker) Bind(registry *tools.Registry, generated []*Tool) error {
	for _, tool := range generated {
		t := tool
		fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return inv.invoke(ctx, t, args)
		}
		if err := registry.Register(t.Schema.Name, fn, tools.ToolMetadata{Schema: t.Schema}); err != nil {
			return fmt.Errorf("bind tool %s: %w", t.Schema.Name, err)
		}
	}
	return nil
}

func (inv *Invoker) invoke(ctx context.Context, tool *Tool, args json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("parse arguments: %w", err)
		}
	}

	endpoint, query, headers, body, err := buildRequest(tool, params)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, tool.Method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(query) > 0 {
		httpReq.URL.RawQuery = query.Encode()
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	inv.logger.Debug("invoking api tool",
		zap.String("tool", tool.Schema.Name),
		zap.String("method", tool.Method),
		zap.String("url", endpoint))

	resp, err := inv.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if json.Valid(data) {
		return json.RawMessage(data), nil
	}
	// Non-JSON responses are wrapped so the result stays machine-readable.
	wrapped, err := json.Marshal(map[string]string{"response": string(data)})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// buildRequest resolves the endpoint URL, query, headers and body from the
// tool's parameter bindings.
func buildRequest(tool *Tool, params map[string]any) (string, url.Values, map[string]string, any, error) {
	path := tool.Path
	query := url.Values{}
	headers := make(map[string]string)

	for _, p := range tool.Parameters {
		val, ok := params[p.Name]
		if !ok {
			if p.Required {
				return "", nil, nil, nil, fmt.Errorf("missing required parameter %s", p.Name)
			}
			continue
		}
		str := fmt.Sprintf("%v", val)
		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(str))
		case "query":
			query.Set(p.Name, str)
		case "header":
			headers[p.Name] = str
		}
	}

	var body any
	if tool.RequestBody != nil {
		b, ok := params["body"]
		if !ok && tool.RequestBody.Required {
			return "", nil, nil, nil, fmt.Errorf("missing required body")
		}
		body = b
	}

	endpoint := strings.TrimRight(tool.BaseURL, "/") + path
	return endpoint, query, headers, body, nil
}
