package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truffle-ai/saiki-sub004/types"
)

func TestRegistryExactMatch(t *testing.T) {
	r := NewRegistry()
	est := NewEstimatorTokenizer("gpt-4o", 128000)
	r.Register("gpt-4o", est)

	got, err := r.Get("gpt-4o")
	require.NoError(t, err)
	assert.Same(t, Tokenizer(est), got)
}

func TestRegistryPrefixMatch(t *testing.T) {
	r := NewRegistry()
	est := NewEstimatorTokenizer("gpt-4o", 128000)
	r.Register("gpt-4o", est)

	got, err := r.Get("gpt-4o-mini")
	require.NoError(t, err)
	assert.Same(t, Tokenizer(est), got)
}

func TestRegistryMissingModel(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("unknown-model")
	assert.Error(t, err)
}

func TestGetOrEstimatorFallsBack(t *testing.T) {
	r := NewRegistry()

	tok := r.GetOrEstimator("unknown-model")
	require.NotNil(t, tok)
	assert.Equal(t, "estimator", tok.Name())
	assert.Equal(t, 4096, tok.MaxTokens())
}

func TestEstimatorCountsASCII(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)

	n, err := e.CountTokens("hello world") // 11 chars, ~4 chars/token
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Short non-empty text never rounds down to zero.
	n, err = e.CountTokens("ab")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEstimatorCountsCJKDenser(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)

	ascii, err := e.CountTokens("abcdefgh")
	require.NoError(t, err)
	cjk, err := e.CountTokens("你好世界测试文字")
	require.NoError(t, err)

	// Eight CJK characters cost more tokens than eight ASCII characters.
	assert.Greater(t, cjk, ascii)
}

func TestEstimatorDecodeUnsupported(t *testing.T) {
	e := NewEstimatorTokenizer("test", 0)
	_, err := e.Decode([]int{1, 2, 3})
	assert.Error(t, err)
}

// failingTokenizer always errors, exercising the adapter's fallback path.
type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("corpus missing") }
func (failingTokenizer) Encode(string) ([]int, error)    { return nil, errors.New("corpus missing") }
func (failingTokenizer) Decode([]int) (string, error)    { return "", errors.New("corpus missing") }
func (failingTokenizer) MaxTokens() int                  { return 100 }
func (failingTokenizer) Name() string                    { return "failing" }

func TestMessageTokenizerFallsBackOnError(t *testing.T) {
	m := NewMessageTokenizer(failingTokenizer{}, nil)

	// Counting must not fail; the estimate kicks in.
	n := m.CountTokens("hello world, this is a test")
	assert.Greater(t, n, 0)
}

func TestMessageTokenizerEmptyText(t *testing.T) {
	m := NewMessageTokenizer(failingTokenizer{}, nil)
	assert.Equal(t, 0, m.CountTokens(""))
}

func TestMessageTokenizerMessageOverhead(t *testing.T) {
	m := NewMessageTokenizer(NewEstimatorTokenizer("test", 0), nil)

	// An empty message still carries the per-message allowance.
	n := m.CountMessageTokens(types.Message{Role: types.RoleUser})
	assert.Equal(t, types.MessageTokenOverhead, n)

	// Tool-call names and arguments count toward the total.
	withCall := types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{{
			ID:        "call_1",
			Name:      "get_weather",
			Arguments: []byte(`{"city":"Paris"}`),
		}},
	}
	assert.Greater(t, m.CountMessageTokens(withCall), types.MessageTokenOverhead)
}

func TestMessageTokenizerSumsMessages(t *testing.T) {
	m := NewMessageTokenizer(NewEstimatorTokenizer("test", 0), nil)

	msgs := []types.Message{
		types.NewUserMessage("What is the capital of France?"),
		types.NewAssistantMessage("Paris."),
	}
	total := m.CountMessagesTokens(msgs)
	sum := m.CountMessageTokens(msgs[0]) + m.CountMessageTokens(msgs[1])
	assert.Equal(t, sum, total)
}
