package context

import (
	"github.com/truffle-ai/saiki-sub004/types"
)

// OldestRemoval drops messages from the absolute oldest end of the history,
// one at a time, recounting after each removal. It is the strategy of last
// resort: it has no preserve window and may reduce the history down to the
// single newest message, which is never removed so the turn keeps the
// user's latest input.
type OldestRemoval struct {
	tokenizer types.Tokenizer
}

// NewOldestRemoval creates an oldest removal strategy.
func NewOldestRemoval(tokenizer types.Tokenizer) *OldestRemoval {
	return &OldestRemoval{tokenizer: tokenizer}
}

func (s *OldestRemoval) Name() string { return "oldest_removal" }

func (s *OldestRemoval) Compress(history []types.Message, budget int) ([]types.Message, error) {
	total := s.tokenizer.CountMessagesTokens(history)
	if total <= budget {
		return history, nil
	}

	out := append([]types.Message(nil), history...)
	for total > budget && len(out) > 1 {
		out = out[1:]
		total = s.tokenizer.CountMessagesTokens(out)
	}
	return out, nil
}
