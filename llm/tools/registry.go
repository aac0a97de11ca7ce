package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/truffle-ai/saiki-sub004/types"
)

// ToolFunc is the tool handler signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes a registered tool.
type ToolMetadata struct {
	Schema    types.ToolSchema // tool JSON Schema
	Timeout   time.Duration    // execution timeout (default 30s)
	RateLimit *RateLimitConfig // optional rate limit
}

// RateLimitConfig bounds how often one tool may run.
type RateLimitConfig struct {
	MaxCalls int           // maximum calls per window
	Window   time.Duration // time window
}

// Registry is the tool lookup table. It is constructor-injected into the
// executor and the completion service; there is no process-global registry,
// so tests substitute fakes without monkey-patching.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]ToolFunc
	metadata       map[string]ToolMetadata
	limiters       map[string]*rate.Limiter
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewRegistry creates an empty tool registry. defaultTimeout applies to
// tools registered without one; zero means 30s.
func NewRegistry(defaultTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Registry{
		tools:          make(map[string]ToolFunc),
		metadata:       make(map[string]ToolMetadata),
		limiters:       make(map[string]*rate.Limiter),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Register adds a tool with its metadata.
func (r *Registry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = r.defaultTimeout
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		limit := rate.Every(rl.Window / time.Duration(rl.MaxCalls))
		r.limiters[name] = rate.NewLimiter(limit, rl.MaxCalls)
	}

	r.logger.Info("tool registered",
		zap.String("name", name),
		zap.Duration("timeout", metadata.Timeout))
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.limiters, name)
	return nil
}

// Get returns the tool function and metadata for a name.
func (r *Registry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// List returns the schemas of all registered tools, sorted by name so the
// tool array sent to providers is identical run to run.
func (r *Registry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// allow checks the tool's rate limiter without blocking.
func (r *Registry) allow(name string) error {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for tool %s", name)
	}
	return nil
}
