package llm

import (
	"context"
	"encoding/json"

	"github.com/truffle-ai/saiki-sub004/types"
)

// Payload is the provider-specific request body fragment produced by a
// Formatter. Messages holds the wire-format message array; System optionally
// holds a separate system prompt representation for providers that want the
// prompt outside the message list (Anthropic-style).
type Payload struct {
	Messages json.RawMessage `json:"messages"`
	System   json.RawMessage `json:"system,omitempty"`
}

// Request is the provider-bound request assembled by the completion loop.
type Request struct {
	Model       string             `json:"model"`
	Payload     *Payload           `json:"payload"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
}

// StreamChunk delivers incremental output from a streaming provider call.
// The final chunk carries the consolidated raw response in Raw so streaming
// and synchronous calls parse through the same Formatter path.
type StreamChunk struct {
	Delta string          `json:"delta,omitempty"`
	Raw   json.RawMessage `json:"raw,omitempty"`
	Err   *types.Error    `json:"error,omitempty"`
}

// ProviderClient is the opaque transport to one LLM vendor. The core only
// requires "send formatted messages plus tools, get back a raw response";
// HTTP mechanics, auth and vendor SDKs live behind this interface.
type ProviderClient interface {
	// Complete sends a request and returns the raw provider response body.
	Complete(ctx context.Context, req *Request) (json.RawMessage, error)

	// Stream sends a request and returns incremental chunks. The channel is
	// closed after the final chunk, which must carry the consolidated raw
	// response.
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)

	// Name returns the provider's unique identifier.
	Name() string

	// SupportsStreaming reports whether Stream is usable.
	SupportsStreaming() bool
}

// Formatter converts the internal conversation representation into the wire
// format one provider family expects, and parses raw provider responses back
// into internal messages. Implementations are stateless and safely shared
// across sessions.
type Formatter interface {
	// Format renders history (and the assembled system prompt) into a
	// provider payload.
	Format(history []types.Message, systemPrompt string) (*Payload, error)

	// ParseResponse extracts zero or more internal messages from a raw
	// provider response.
	ParseResponse(raw json.RawMessage) ([]types.Message, error)

	// FormatSystemPrompt renders the system prompt the way this provider
	// wants it delivered (inline message or separate field).
	FormatSystemPrompt(text string) (json.RawMessage, error)

	// Name returns the formatter's identifier for logging.
	Name() string
}
