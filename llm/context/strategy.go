package context

import (
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

// Strategy reduces a conversation history under a token budget according to
// a fixed policy. Implementations must be deterministic: identical history
// and budget always yield identical output, and a history already at or
// under budget is returned unchanged (same backing slice).
type Strategy interface {
	// Name returns the strategy's identifier for logging.
	Name() string

	// Compress returns a possibly-shorter history that attempts to fit the
	// budget. The input slice is never mutated.
	Compress(history []types.Message, budget int) ([]types.Message, error)
}

// Chain applies strategies in fixed order until the history fits the budget.
// Order matters: iteration stops at the first strategy that brings the count
// at or under budget. The chain is configured once and treated as immutable
// read-only policy.
type Chain struct {
	strategies []Strategy
	tokenizer  types.Tokenizer
	logger     *zap.Logger
}

// NewChain creates a strategy chain.
func NewChain(tokenizer types.Tokenizer, logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		strategies: strategies,
		tokenizer:  tokenizer,
		logger:     logger,
	}
}

// DefaultChain returns the standard two-tier fallback: middle removal keeps
// the original framing and the most recent context on long conversations,
// oldest removal still gives short conversations some relief.
func DefaultChain(tokenizer types.Tokenizer, logger *zap.Logger) *Chain {
	return NewChain(tokenizer, logger,
		NewMiddleRemoval(tokenizer, 0, 0),
		NewOldestRemoval(tokenizer),
	)
}

// Run applies the chain to history. It returns the reduced history and
// whether the result fits the budget. A strategy error aborts the remaining
// chain but keeps whatever reduction had already succeeded: an over-budget
// request is still attempted, because failing the turn loses the user's
// message.
func (c *Chain) Run(history []types.Message, budget int) ([]types.Message, bool) {
	total := c.tokenizer.CountMessagesTokens(history)
	if total <= budget {
		return history, true
	}

	c.logger.Info("history over token budget, compressing",
		zap.Int("tokens", total),
		zap.Int("budget", budget),
		zap.Int("messages", len(history)))

	for _, s := range c.strategies {
		reduced, err := s.Compress(history, budget)
		if err != nil {
			c.logger.Error("compression strategy failed, aborting chain",
				zap.String("strategy", s.Name()),
				zap.Error(err))
			return history, false
		}
		history = reduced

		total = c.tokenizer.CountMessagesTokens(history)
		if total <= budget {
			c.logger.Info("compression satisfied budget",
				zap.String("strategy", s.Name()),
				zap.Int("tokens", total),
				zap.Int("messages", len(history)))
			return history, true
		}
	}

	c.logger.Warn("compression exhausted, proceeding over budget",
		zap.Int("tokens", total),
		zap.Int("budget", budget),
		zap.Int("messages", len(history)))
	return history, false
}
