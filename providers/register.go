package providers

import (
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/llm"
)

// Register installs the built-in providers into a registry. Model lists are
// prefixes: "gpt-4o" also admits "gpt-4o-mini".
func Register(r *llm.Registry) error {
	providers := []llm.ProviderInfo{
		{
			Name: "openai",
			Models: []string{
				"gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo", "o1", "o3",
			},
			Routers:       []llm.Router{llm.RouterNative, llm.RouterOpenAICompat},
			CredentialEnv: "OPENAI_API_KEY",
			NewClient: func(cfg llm.Config, logger *zap.Logger) (llm.ProviderClient, error) {
				return NewOpenAIClient(cfg, logger)
			},
			NewFormatter: func(router llm.Router) (llm.Formatter, error) {
				return NewFormatter("openai", router)
			},
		},
		{
			Name: "anthropic",
			Models: []string{
				"claude-3-5-sonnet", "claude-3-5-haiku", "claude-3-opus", "claude-3-haiku",
			},
			Routers:       []llm.Router{llm.RouterNative},
			CredentialEnv: "ANTHROPIC_API_KEY",
			NewClient: func(cfg llm.Config, logger *zap.Logger) (llm.ProviderClient, error) {
				return NewAnthropicClient(cfg, logger)
			},
			NewFormatter: func(router llm.Router) (llm.Formatter, error) {
				return NewFormatter("anthropic", router)
			},
		},
	}

	for _, info := range providers {
		if err := r.Register(info); err != nil {
			return err
		}
	}
	return nil
}
