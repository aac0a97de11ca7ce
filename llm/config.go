package llm

import (
	"fmt"
	"strings"
)

// Router selects the formatting/provider-call strategy a session uses.
type Router string

const (
	// RouterNative uses the vendor's own wire format.
	RouterNative Router = "native"
	// RouterOpenAICompat uses the OpenAI-compatible unified format.
	RouterOpenAICompat Router = "openai-compat"
)

// Config is the LLM configuration for one session or the global baseline.
type Config struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Router      Router  `json:"router,omitempty" yaml:"router"`
	APIKeyEnv   string  `json:"api_key_env,omitempty" yaml:"api_key_env"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature"`

	// TokenBudget is the maximum token count (history + system prompt +
	// per-message overhead) permitted in one outbound request. Zero means
	// use the model's registered context size.
	TokenBudget int `json:"token_budget,omitempty" yaml:"token_budget"`

	// MaxIterations caps the tool-call loop per user turn.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations"`

	// Streaming requests streamed responses when the provider client
	// supports them; otherwise turns fall back to synchronous completion.
	Streaming bool `json:"streaming,omitempty" yaml:"streaming"`
}

// Override is a per-session configuration diff layered over a baseline.
// Zero-valued fields inherit from the baseline; numeric fields use pointers
// so an explicit zero can still override.
type Override struct {
	Provider    string   `json:"provider,omitempty" yaml:"provider"`
	Model       string   `json:"model,omitempty" yaml:"model"`
	Router      Router   `json:"router,omitempty" yaml:"router"`
	APIKeyEnv   string   `json:"api_key_env,omitempty" yaml:"api_key_env"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature"`
	TokenBudget *int     `json:"token_budget,omitempty" yaml:"token_budget"`
	MaxIters    *int     `json:"max_iterations,omitempty" yaml:"max_iterations"`
	Streaming   *bool    `json:"streaming,omitempty" yaml:"streaming"`
}

// Apply resolves baseline plus override into an effective config. The
// baseline is never mutated.
func (c Config) Apply(o *Override) Config {
	if o == nil {
		return c
	}
	out := c
	if o.Provider != "" {
		out.Provider = o.Provider
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.Router != "" {
		out.Router = o.Router
	}
	if o.APIKeyEnv != "" {
		out.APIKeyEnv = o.APIKeyEnv
	}
	if o.BaseURL != "" {
		out.BaseURL = o.BaseURL
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.TokenBudget != nil {
		out.TokenBudget = *o.TokenBudget
	}
	if o.MaxIters != nil {
		out.MaxIterations = *o.MaxIters
	}
	if o.Streaming != nil {
		out.Streaming = *o.Streaming
	}
	return out
}

// Validate checks the config's internal consistency. Provider/model/router
// compatibility against the registry is checked by Registry.Validate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if c.TokenBudget < 0 {
		return fmt.Errorf("token_budget must be >= 0, got %d", c.TokenBudget)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", c.MaxIterations)
	}
	return nil
}
