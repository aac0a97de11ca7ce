// Package config loads runtime configuration from defaults, an optional
// YAML file and environment variable overrides, in that precedence order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("saiki.yaml").
//	    WithEnvPrefix("SAIKI").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/truffle-ai/saiki-sub004/llm"
	llmcontext "github.com/truffle-ai/saiki-sub004/llm/context"
	"github.com/truffle-ai/saiki-sub004/llm/retry"
	"github.com/truffle-ai/saiki-sub004/types"
)

// Config is the full runtime configuration.
type Config struct {
	// LLM is the baseline model configuration sessions inherit from.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Compression tunes the history reduction strategies.
	Compression CompressionConfig `yaml:"compression" env:"COMPRESSION"`

	// Completion tunes the tool-calling loop.
	Completion CompletionConfig `yaml:"completion" env:"COMPLETION"`

	// Tools tunes tool execution.
	Tools ToolsConfig `yaml:"tools" env:"TOOLS"`

	// Prompt configures the system prompt sources.
	Prompt PromptConfig `yaml:"prompt" env:"PROMPT"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LLMConfig is the YAML/env-facing shape of the baseline LLM settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	Model       string  `yaml:"model" env:"MODEL"`
	Router      string  `yaml:"router" env:"ROUTER"`
	APIKeyEnv   string  `yaml:"api_key_env" env:"API_KEY_ENV"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE"`
	TokenBudget int     `yaml:"token_budget" env:"TOKEN_BUDGET"`
}

// Baseline converts the loaded settings into the session baseline.
func (c LLMConfig) Baseline(completion CompletionConfig) llm.Config {
	return llm.Config{
		Provider:      c.Provider,
		Model:         c.Model,
		Router:        llm.Router(c.Router),
		APIKeyEnv:     c.APIKeyEnv,
		BaseURL:       c.BaseURL,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		TokenBudget:   c.TokenBudget,
		MaxIterations: completion.MaxIterations,
		Streaming:     completion.Streaming,
	}
}

// CompressionConfig tunes history reduction.
type CompressionConfig struct {
	// PreserveStart keeps the first N messages during middle removal.
	PreserveStart int `yaml:"preserve_start" env:"PRESERVE_START"`
	// PreserveEnd keeps the last N messages during middle removal.
	PreserveEnd int `yaml:"preserve_end" env:"PRESERVE_END"`
	// Strategies orders the chain. Known names: middle, oldest.
	Strategies []string `yaml:"strategies" env:"STRATEGIES"`
}

// ChainFactory converts the loaded settings into a compression chain
// builder. Sessions call the factory whenever they (re)resolve a tokenizer,
// so one loaded config serves every model. An empty strategy list yields
// the default chain.
func (c CompressionConfig) ChainFactory() func(types.Tokenizer, *zap.Logger) *llmcontext.Chain {
	return func(tok types.Tokenizer, logger *zap.Logger) *llmcontext.Chain {
		strategies := make([]llmcontext.Strategy, 0, len(c.Strategies))
		for _, name := range c.Strategies {
			switch name {
			case "middle":
				strategies = append(strategies, llmcontext.NewMiddleRemoval(tok, c.PreserveStart, c.PreserveEnd))
			case "oldest":
				strategies = append(strategies, llmcontext.NewOldestRemoval(tok))
			}
		}
		if len(strategies) == 0 {
			return llmcontext.DefaultChain(tok, logger)
		}
		return llmcontext.NewChain(tok, logger, strategies...)
	}
}

// CompletionConfig tunes the tool-calling loop.
type CompletionConfig struct {
	// MaxIterations caps tool rounds per user turn.
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// Streaming enables streaming responses when the provider supports it.
	Streaming bool `yaml:"streaming" env:"STREAMING"`
	// Retry tunes provider call retries.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
}

// RetryConfig tunes provider call retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	Increment    time.Duration `yaml:"increment" env:"INCREMENT"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// Policy converts the loaded settings into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		Increment:    r.Increment,
		MaxDelay:     r.MaxDelay,
	}
}

// ToolsConfig tunes tool execution.
type ToolsConfig struct {
	// MaxConcurrent bounds parallel tool executions.
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// DefaultTimeout applies to tools registered without one.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// OpenAPISpecs lists OpenAPI documents (URLs or file paths) whose
	// operations are exposed as tools.
	OpenAPISpecs []string `yaml:"openapi_specs" env:"OPENAPI_SPECS"`
}

// PromptConfig configures system prompt sources.
type PromptConfig struct {
	// System is inline prompt text, contributed at priority 0.
	System string `yaml:"system" env:"SYSTEM"`
	// Files are prompt files re-read on every turn, contributed after
	// the inline text in listed order.
	Files []string `yaml:"files" env:"FILES"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Addr, when set, serves /metrics and /health on this address.
	Addr string `yaml:"addr" env:"ADDR"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SAIKI",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then the YAML file, then
// environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile applies the YAML file over cfg. A missing file keeps the
// defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct, applying PREFIX_SECTION_FIELD
// environment variables by env tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.LLM.Provider) == "" {
		errs = append(errs, "llm.provider is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, "llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.TokenBudget < 0 {
		errs = append(errs, "llm.token_budget must be >= 0")
	}
	if c.Completion.MaxIterations <= 0 {
		errs = append(errs, "completion.max_iterations must be positive")
	}
	if c.Compression.PreserveStart < 0 || c.Compression.PreserveEnd < 0 {
		errs = append(errs, "compression.preserve_start/preserve_end must be >= 0")
	}
	for _, s := range c.Compression.Strategies {
		if s != "middle" && s != "oldest" {
			errs = append(errs, fmt.Sprintf("unknown compression strategy %q", s))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
