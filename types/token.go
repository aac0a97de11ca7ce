package types

// MessageTokenOverhead is the per-message accounting allowance added on top
// of raw text tokens. Chat models charge role markers and separators per
// turn beyond the content itself.
const MessageTokenOverhead = 4

// TokenCounter is the minimal token counting interface. Implementations
// must be deterministic and pure.
type TokenCounter interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) (int, error)
}

// Tokenizer defines the framework-level, Message-aware token counting
// interface. The llm/tokenizer package provides model-aware implementations
// with full encode/decode; this interface stays error-free so conversation
// accounting never fails a turn.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
	// CountMessageTokens counts tokens in a single message, including the
	// per-message overhead and tool-call name/argument text.
	CountMessageTokens(msg Message) int
	// CountMessagesTokens counts total tokens in a message slice.
	CountMessagesTokens(msgs []Message) int
}

// EstimateTokenizer provides a character-based token estimation. It is the
// fallback when no model-specific tokenizer is registered, and the safety
// net when a registered tokenizer fails mid-turn.
type EstimateTokenizer struct {
	charsPerToken float64
	msgOverhead   int
}

// NewEstimateTokenizer creates a new EstimateTokenizer.
func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{
		charsPerToken: 4.0,
		msgOverhead:   MessageTokenOverhead,
	}
}

// CountTokens counts tokens in text. CJK characters tokenize denser than
// ASCII, so they are weighted separately.
func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjkCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjkCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(cjkCount)/1.5 + float64(otherCount)/t.charsPerToken
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// CountMessageTokens counts tokens in a message.
func (t *EstimateTokenizer) CountMessageTokens(msg Message) int {
	tokens := t.msgOverhead
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += t.CountTokens(tc.Name)
		tokens += len(tc.Arguments) / 4
	}
	return tokens
}

// CountMessagesTokens counts tokens in messages.
func (t *EstimateTokenizer) CountMessagesTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
