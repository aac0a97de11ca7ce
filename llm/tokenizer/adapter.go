package tokenizer

import (
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

// MessageTokenizer bridges a model-aware Tokenizer to the framework-level
// types.Tokenizer interface. Token accounting must never fail a turn, so a
// counting error falls back to the character estimator and is logged once
// per call at Warn.
type MessageTokenizer struct {
	inner    Tokenizer
	fallback *types.EstimateTokenizer
	logger   *zap.Logger
}

// NewMessageTokenizer wraps a Tokenizer into a types.Tokenizer.
func NewMessageTokenizer(inner Tokenizer, logger *zap.Logger) *MessageTokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageTokenizer{
		inner:    inner,
		fallback: types.NewEstimateTokenizer(),
		logger:   logger,
	}
}

// CountTokens counts tokens in text, estimating on tokenizer failure.
func (m *MessageTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n, err := m.inner.CountTokens(text)
	if err != nil {
		m.logger.Warn("tokenizer failed, using estimate",
			zap.String("tokenizer", m.inner.Name()),
			zap.Error(err))
		return m.fallback.CountTokens(text)
	}
	return n
}

// CountMessageTokens counts tokens in one message: content, tool-call name
// and argument text, plus the per-message overhead allowance.
func (m *MessageTokenizer) CountMessageTokens(msg types.Message) int {
	tokens := types.MessageTokenOverhead
	tokens += m.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += m.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += m.CountTokens(tc.Name)
		tokens += m.CountTokens(string(tc.Arguments))
	}
	return tokens
}

// CountMessagesTokens counts total tokens in a message slice.
func (m *MessageTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += m.CountMessageTokens(msg)
	}
	return total
}
