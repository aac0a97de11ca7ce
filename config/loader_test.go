package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truffle-ai/saiki-sub004/types"
)

// fixedCostTokenizer charges a flat cost per message so chain arithmetic is
// exact in tests.
type fixedCostTokenizer struct{ perMessage int }

func (f *fixedCostTokenizer) CountTokens(text string) int { return len(text) }

func (f *fixedCostTokenizer) CountMessageTokens(_ types.Message) int { return f.perMessage }

func (f *fixedCostTokenizer) CountMessagesTokens(msgs []types.Message) int {
	return f.perMessage * len(msgs)
}

func numberedHistory(n int) []types.Message {
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.NewUserMessage(fmt.Sprintf("m%d", i)))
	}
	return msgs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saiki.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Completion.MaxIterations)
	assert.Equal(t, 3, cfg.Completion.Retry.MaxAttempts)
	assert.Equal(t, []string{"middle", "oldest"}, cfg.Compression.Strategies)
	assert.Equal(t, 4, cfg.Tools.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Tools.DefaultTimeout)
	assert.True(t, cfg.Metrics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/saiki.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
  model: claude-3-5-sonnet
  temperature: 0.2
  token_budget: 50000
completion:
  max_iterations: 5
  streaming: true
  retry:
    max_attempts: 2
    initial_delay: 500ms
tools:
  max_concurrent: 8
  default_timeout: 10s
prompt:
  system: "You are terse."
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet", cfg.LLM.Model)
	assert.Equal(t, float32(0.2), cfg.LLM.Temperature)
	assert.Equal(t, 50000, cfg.LLM.TokenBudget)
	assert.Equal(t, 5, cfg.Completion.MaxIterations)
	assert.True(t, cfg.Completion.Streaming)
	assert.Equal(t, 2, cfg.Completion.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Completion.Retry.InitialDelay)
	assert.Equal(t, 8, cfg.Tools.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Tools.DefaultTimeout)
	assert.Equal(t, "You are terse.", cfg.Prompt.System)
	// Untouched sections keep their defaults.
	assert.Equal(t, "saiki", cfg.Metrics.Namespace)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
  model: claude-3-5-sonnet
`)
	t.Setenv("SAIKI_LLM_MODEL", "claude-3-opus")
	t.Setenv("SAIKI_COMPLETION_MAX_ITERATIONS", "7")
	t.Setenv("SAIKI_COMPLETION_RETRY_INITIAL_DELAY", "250ms")
	t.Setenv("SAIKI_COMPLETION_STREAMING", "true")
	t.Setenv("SAIKI_LLM_TEMPERATURE", "1.5")
	t.Setenv("SAIKI_COMPRESSION_STRATEGIES", "oldest, middle")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	// File value survives where env is silent.
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	// Env wins over file.
	assert.Equal(t, "claude-3-opus", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Completion.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Completion.Retry.InitialDelay)
	assert.True(t, cfg.Completion.Streaming)
	assert.Equal(t, float32(1.5), cfg.LLM.Temperature)
	assert.Equal(t, []string{"oldest", "middle"}, cfg.Compression.Strategies)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LLM_MODEL", "gpt-4.1")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "llm: [not: a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoadRunsValidators(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			called = true
			return nil
		}).
		Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing provider", func(c *Config) { c.LLM.Provider = "" }},
		{"missing model", func(c *Config) { c.LLM.Model = " " }},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 2.5 }},
		{"negative budget", func(c *Config) { c.LLM.TokenBudget = -1 }},
		{"zero iterations", func(c *Config) { c.Completion.MaxIterations = 0 }},
		{"negative preserve window", func(c *Config) { c.Compression.PreserveStart = -1 }},
		{"unknown strategy", func(c *Config) { c.Compression.Strategies = []string{"newest"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBaselineConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.TokenBudget = 9000
	cfg.Completion.MaxIterations = 6
	cfg.Completion.Streaming = true

	baseline := cfg.LLM.Baseline(cfg.Completion)
	assert.Equal(t, "openai", baseline.Provider)
	assert.Equal(t, 9000, baseline.TokenBudget)
	assert.Equal(t, 6, baseline.MaxIterations)
	assert.True(t, baseline.Streaming)
}

func TestCompressionChainFactoryHonorsStrategyOrder(t *testing.T) {
	tok := &fixedCostTokenizer{perMessage: 10}

	// Oldest-only: 10 messages at 10 tokens under budget 70 keeps the 7 newest.
	oldest := CompressionConfig{Strategies: []string{"oldest"}}.ChainFactory()(tok, nil)
	out, fits := oldest.Run(numberedHistory(10), 70)
	require.True(t, fits)
	require.Len(t, out, 7)
	assert.Equal(t, "m3", out[0].Content)
	assert.Equal(t, "m9", out[6].Content)

	// Middle removal with custom preserve windows keeps the head and tail and
	// drops from just after the preserved start.
	middle := CompressionConfig{
		PreserveStart: 1,
		PreserveEnd:   2,
		Strategies:    []string{"middle"},
	}.ChainFactory()(tok, nil)
	out, fits = middle.Run(numberedHistory(10), 70)
	require.True(t, fits)
	require.Len(t, out, 7)
	assert.Equal(t, "m0", out[0].Content)
	assert.Equal(t, "m4", out[1].Content)
	assert.Equal(t, "m9", out[6].Content)
}

func TestCompressionChainFactoryDefaultsWhenUnset(t *testing.T) {
	tok := &fixedCostTokenizer{perMessage: 10}
	chain := CompressionConfig{}.ChainFactory()(tok, nil)
	require.NotNil(t, chain)

	// The default chain's middle removal preserves the first 4 and last 5.
	out, fits := chain.Run(numberedHistory(20), 150)
	require.True(t, fits)
	require.Len(t, out, 15)
	assert.Equal(t, "m3", out[3].Content)
	assert.Equal(t, "m9", out[4].Content)
}

func TestRetryConfigPolicy(t *testing.T) {
	rc := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Increment:    time.Second,
		MaxDelay:     20 * time.Second,
	}
	policy := rc.Policy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.InitialDelay)
	assert.Equal(t, time.Second, policy.Increment)
	assert.Equal(t, 20*time.Second, policy.MaxDelay)
}

func TestLogConfigBuild(t *testing.T) {
	logger, err := DefaultLogConfig().Build()
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = LogConfig{Level: "nonsense", Format: "console", OutputPaths: []string{"stderr"}}.Build()
	assert.Error(t, err)
}
