// Package quick provides one-line session construction for programs that do
// not need the full configuration surface.
//
// Usage:
//
//	session, err := quick.New(quick.WithOpenAI("gpt-4o-mini"))
//	session, err := quick.New(quick.WithAnthropic("claude-3-5-sonnet"),
//	    quick.WithSystemPrompt("You are terse."))
package quick

import (
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/agent"
	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/llm/retry"
	"github.com/truffle-ai/saiki-sub004/llm/tokenizer"
	"github.com/truffle-ai/saiki-sub004/llm/tools"
	"github.com/truffle-ai/saiki-sub004/providers"
)

// Option configures the session created by New.
type Option func(*options)

type options struct {
	cfg          llm.Config
	systemPrompt string
	tools        *tools.Registry
	logger       *zap.Logger
}

// WithOpenAI selects an OpenAI model.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.cfg.Provider = "openai"
		o.cfg.Model = model
	}
}

// WithAnthropic selects an Anthropic model.
func WithAnthropic(model string) Option {
	return func(o *options) {
		o.cfg.Provider = "anthropic"
		o.cfg.Model = model
	}
}

// WithConfig sets the full LLM configuration.
func WithConfig(cfg llm.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSystemPrompt sets a static system prompt.
func WithSystemPrompt(text string) Option {
	return func(o *options) { o.systemPrompt = text }
}

// WithTools sets a pre-populated tool registry.
func WithTools(registry *tools.Registry) Option {
	return func(o *options) { o.tools = registry }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a ready-to-use session with default registries, retry policy
// and tokenizers.
func New(opts ...Option) (*agent.Session, error) {
	o := &options{
		cfg:    llm.Config{Provider: "openai", Model: "gpt-4o-mini"},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	providerReg := llm.NewRegistry(o.logger)
	if err := providers.Register(providerReg); err != nil {
		return nil, err
	}

	tokenizerReg := tokenizer.NewRegistry()
	tokenizer.RegisterOpenAITokenizers(tokenizerReg)

	toolReg := o.tools
	if toolReg == nil {
		toolReg = tools.NewRegistry(0, o.logger)
	}

	prompts := agent.NewPromptManager(o.logger)
	if o.systemPrompt != "" {
		if err := prompts.Register(agent.NewStaticContributor("system", 0, o.systemPrompt)); err != nil {
			return nil, err
		}
	}

	deps := agent.SessionDeps{
		Providers:  providerReg,
		Tokenizers: tokenizerReg,
		Tools:      toolReg,
		Executor:   tools.NewDefaultExecutor(toolReg, 0, o.logger),
		Bus:        agent.NewEventBus(o.logger),
		Prompts:    prompts,
		Retry:      retry.DefaultPolicy(),
		Logger:     o.logger,
	}
	return agent.NewSession(o.cfg, nil, deps)
}
