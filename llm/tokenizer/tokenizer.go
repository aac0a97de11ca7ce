package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer is the model-aware token counting interface. Implementations
// must be deterministic: identical input always yields identical counts.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// Encode converts text into token IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back into text.
	Decode(tokens []int) (string, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// Registry maps model names to tokenizers. It is an explicit lookup table
// handed to the components that need it rather than process-global state.
type Registry struct {
	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

// NewRegistry creates an empty tokenizer registry.
func NewRegistry() *Registry {
	return &Registry{tokenizers: make(map[string]Tokenizer)}
}

// Register binds a tokenizer to a model name.
func (r *Registry) Register(model string, t Tokenizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenizers[model] = t
}

// Get returns the tokenizer registered for the given model. Prefix matching
// is attempted so "gpt-4o" also serves "gpt-4o-mini".
func (r *Registry) Get(model string) (Tokenizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tokenizers[model]; ok {
		return t, nil
	}
	for prefix, t := range r.tokenizers {
		if strings.HasPrefix(model, prefix) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetOrEstimator returns the registered tokenizer for the model, falling
// back to the character estimator when none is registered.
func (r *Registry) GetOrEstimator(model string) Tokenizer {
	t, err := r.Get(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}
