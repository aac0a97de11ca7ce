// Package openapi turns OpenAPI specifications into callable tools: each
// operation becomes a schema for the model plus an HTTP invoker bound into
// the tool registry.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

// Spec is a parsed OpenAPI document, reduced to what tool generation needs.
type Spec struct {
	OpenAPI string              `json:"openapi"`
	Info    Info                `json:"info"`
	Servers []Server            `json:"servers,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

// Info carries API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server names an API server.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem holds the operations on one path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
}

// Operation is one API operation.
type Operation struct {
	OperationID string       `json:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Parameters  []Parameter  `json:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Parameter is one operation parameter.
type Parameter struct {
	Name        string      `json:"name"`
	In          string      `json:"in"` // query, path, header
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Schema      *JSONSchema `json:"schema,omitempty"`
}

// RequestBody describes an operation's body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType wraps a content schema.
type MediaType struct {
	Schema *JSONSchema `json:"schema,omitempty"`
}

// JSONSchema is a minimal JSON Schema shape.
type JSONSchema struct {
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []any                 `json:"enum,omitempty"`
	Default     any                   `json:"default,omitempty"`
}

// Tool is one generated tool: the schema the model sees plus the routing
// data the invoker needs.
type Tool struct {
	Schema      types.ToolSchema `json:"schema"`
	Method      string           `json:"method"`
	Path        string           `json:"path"`
	BaseURL     string           `json:"base_url"`
	Parameters  []Parameter      `json:"parameters"`
	RequestBody *RequestBody     `json:"request_body,omitempty"`
}

// Generator loads specs and generates tools. Loaded specs are cached by
// source.
type Generator struct {
	httpClient *http.Client
	logger     *zap.Logger
	cache      map[string]*Spec
	mu         sync.RWMutex
}

// GeneratorConfig configures the generator.
type GeneratorConfig struct {
	Timeout time.Duration
}

// NewGenerator creates an OpenAPI tool generator.
func NewGenerator(config GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "openapi_generator")),
		cache:      make(map[string]*Spec),
	}
}

// LoadSpec loads a JSON OpenAPI spec from a URL or a file path.
func (g *Generator) LoadSpec(ctx context.Context, source string) (*Spec, error) {
	g.mu.RLock()
	if spec, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return spec, nil
	}
	g.mu.RUnlock()

	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = g.fetchFromURL(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}

	g.mu.Lock()
	g.cache[source] = &spec
	g.mu.Unlock()

	g.logger.Info("loaded OpenAPI spec",
		zap.String("title", spec.Info.Title),
		zap.String("version", spec.Info.Version),
		zap.Int("paths", len(spec.Paths)))

	return &spec, nil
}

func (g *Generator) fetchFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// GenerateOptions filters and targets tool generation.
type GenerateOptions struct {
	BaseURL     string
	IncludeTags []string
	ExcludeTags []string
}

// GenerateTools converts a spec's operations into tools.
func (g *Generator) GenerateTools(spec *Spec, opts GenerateOptions) []*Tool {
	var out []*Tool
	baseURL := ""
	if len(spec.Servers) > 0 {
		baseURL = spec.Servers[0].URL
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	for path, pathItem := range spec.Paths {
		operations := map[string]*Operation{
			http.MethodGet:    pathItem.Get,
			http.MethodPost:   pathItem.Post,
			http.MethodPut:    pathItem.Put,
			http.MethodDelete: pathItem.Delete,
			http.MethodPatch:  pathItem.Patch,
		}

		for method, op := range operations {
			if op == nil {
				continue
			}
			if len(opts.IncludeTags) > 0 && !hasAnyTag(op.Tags, opts.IncludeTags) {
				continue
			}
			if len(opts.ExcludeTags) > 0 && hasAnyTag(op.Tags, opts.ExcludeTags) {
				continue
			}
			out = append(out, operationToTool(path, method, op, baseURL))
		}
	}

	g.logger.Info("generated tools", zap.Int("count", len(out)))
	return out
}

func operationToTool(path, method string, op *Operation, baseURL string) *Tool {
	name := op.OperationID
	if name == "" {
		name = fmt.Sprintf("%s_%s", strings.ToLower(method), sanitizePath(path))
	}

	description := op.Summary
	if description == "" {
		description = op.Description
	}
	if description == "" {
		description = fmt.Sprintf("%s %s", method, path)
	}

	properties := make(map[string]JSONSchema)
	var required []string

	for _, param := range op.Parameters {
		prop := JSONSchema{Description: param.Description}
		if param.Schema != nil {
			prop.Type = param.Schema.Type
			prop.Enum = param.Schema.Enum
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	if op.RequestBody != nil {
		if content, ok := op.RequestBody.Content["application/json"]; ok && content.Schema != nil {
			properties["body"] = *content.Schema
			if op.RequestBody.Required {
				required = append(required, "body")
			}
		}
	}

	paramsJSON, _ := json.Marshal(JSONSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	})

	return &Tool{
		Schema: types.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  paramsJSON,
		},
		Method:      method,
		Path:        path,
		BaseURL:     baseURL,
		Parameters:  op.Parameters,
		RequestBody: op.RequestBody,
	}
}

func hasAnyTag(tags, targets []string) bool {
	tagSet := make(map[string]bool)
	for _, t := range tags {
		tagSet[t] = true
	}
	for _, t := range targets {
		if tagSet[t] {
			return true
		}
	}
	return false
}

func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "{", "")
	path = strings.ReplaceAll(path, "}", "")
	return strings.Trim(path, "_")
}
