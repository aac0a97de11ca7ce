// Package providers holds the wire Formatter implementations: one
// conversation model, many provider formats. Formatters are stateless and
// selected at session construction time; the message manager never branches
// on a vendor.
package providers

import (
	"fmt"

	"github.com/truffle-ai/saiki-sub004/llm"
)

// NewFormatter returns the formatter for a provider/router pairing.
func NewFormatter(provider string, router llm.Router) (llm.Formatter, error) {
	if router == llm.RouterOpenAICompat {
		return NewOpenAIFormatter(), nil
	}
	switch provider {
	case "openai":
		return NewOpenAIFormatter(), nil
	case "anthropic":
		return NewAnthropicFormatter(), nil
	default:
		return nil, fmt.Errorf("no native formatter for provider %s", provider)
	}
}
