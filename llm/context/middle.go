package context

import (
	"github.com/truffle-ai/saiki-sub004/types"
)

// Default preserve windows for middle removal.
const (
	DefaultPreserveStart = 4
	DefaultPreserveEnd   = 5
)

// MiddleRemoval drops messages from the middle of the history, keeping the
// oldest PreserveStart messages (the conversation's original framing) and
// the newest PreserveEnd messages (the context needed for continuity)
// untouched. Candidates are removed oldest-first, recounting after each
// removal, until the budget is satisfied or no candidates remain.
type MiddleRemoval struct {
	tokenizer     types.Tokenizer
	preserveStart int
	preserveEnd   int
}

// NewMiddleRemoval creates a middle removal strategy. Non-positive window
// values use the defaults.
func NewMiddleRemoval(tokenizer types.Tokenizer, preserveStart, preserveEnd int) *MiddleRemoval {
	if preserveStart <= 0 {
		preserveStart = DefaultPreserveStart
	}
	if preserveEnd <= 0 {
		preserveEnd = DefaultPreserveEnd
	}
	return &MiddleRemoval{
		tokenizer:     tokenizer,
		preserveStart: preserveStart,
		preserveEnd:   preserveEnd,
	}
}

func (s *MiddleRemoval) Name() string { return "middle_removal" }

// Compress removes removable middle messages oldest-first. Histories no
// longer than PreserveStart+PreserveEnd are returned unchanged: the preserve
// guarantee must never be violated by removing from the edges.
func (s *MiddleRemoval) Compress(history []types.Message, budget int) ([]types.Message, error) {
	total := s.tokenizer.CountMessagesTokens(history)
	if total <= budget {
		return history, nil
	}
	if len(history) <= s.preserveStart+s.preserveEnd {
		return history, nil
	}

	out := append([]types.Message(nil), history...)
	for total > budget && len(out) > s.preserveStart+s.preserveEnd {
		// The oldest removable message sits right after the preserved head.
		out = append(out[:s.preserveStart], out[s.preserveStart+1:]...)
		total = s.tokenizer.CountMessagesTokens(out)
	}
	return out, nil
}
