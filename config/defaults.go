package config

import "time"

// DefaultConfig returns sensible defaults for every section.
func DefaultConfig() *Config {
	return &Config{
		LLM:         DefaultLLMConfig(),
		Compression: DefaultCompressionConfig(),
		Completion:  DefaultCompletionConfig(),
		Tools:       DefaultToolsConfig(),
		Prompt:      PromptConfig{},
		Log:         DefaultLogConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
}

// DefaultLLMConfig returns the default baseline LLM settings.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o",
		Router:      "native",
		Temperature: 0.7,
	}
}

// DefaultCompressionConfig returns the default compression settings.
// Zero preserve windows let the strategies use their built-in defaults.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Strategies: []string{"middle", "oldest"},
	}
}

// DefaultCompletionConfig returns the default completion loop settings.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		MaxIterations: 10,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			Increment:    1 * time.Second,
			MaxDelay:     30 * time.Second,
		},
	}
}

// DefaultToolsConfig returns the default tool execution settings.
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		MaxConcurrent:  4,
		DefaultTimeout: 30 * time.Second,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stderr"},
		EnableCaller: true,
	}
}

// DefaultMetricsConfig returns the default metrics settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "saiki",
	}
}
