package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmcontext "github.com/truffle-ai/saiki-sub004/llm/context"

	"github.com/truffle-ai/saiki-sub004/providers"
	"github.com/truffle-ai/saiki-sub004/types"
)

func newTestManager(t *testing.T, budget int) *MessageManager {
	t.Helper()
	tok := types.NewEstimateTokenizer()
	var chain *llmcontext.Chain
	if budget > 0 {
		chain = llmcontext.DefaultChain(tok, nil)
	}
	return NewMessageManager(tok, chain, providers.NewOpenAIFormatter(), nil, budget, nil)
}

func TestAddMessageValidRoles(t *testing.T) {
	m := newTestManager(t, 0)

	require.NoError(t, m.AddMessage(types.NewSystemMessage("rules")))
	require.NoError(t, m.AddMessage(types.NewUserMessage("hi")))
	require.NoError(t, m.AddMessage(types.NewAssistantMessage("hello")))
	require.NoError(t, m.AddMessage(types.NewToolMessage("call_1", "echo", "ok")))

	assert.Equal(t, 4, m.Len())
}

func TestAddMessageRejectsInvalidStructures(t *testing.T) {
	tests := []struct {
		name string
		msg  types.Message
	}{
		{"empty system", types.NewSystemMessage("  ")},
		{"system with tool calls", types.NewSystemMessage("x").WithToolCalls([]types.ToolCall{{ID: "1", Name: "t"}})},
		{"empty user", types.NewUserMessage("")},
		{"user with tool calls", types.NewUserMessage("x").WithToolCalls([]types.ToolCall{{ID: "1", Name: "t"}})},
		{"user with tool_call_id", types.Message{Role: types.RoleUser, Content: "x", ToolCallID: "call_1"}},
		{"empty assistant", types.NewAssistantMessage("")},
		{"assistant call missing id", types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{{Name: "t"}})},
		{"assistant call missing name", types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{{ID: "1"}})},
		{"tool missing call id", types.Message{Role: types.RoleTool, Name: "echo", Content: "x"}},
		{"tool missing name", types.Message{Role: types.RoleTool, ToolCallID: "call_1", Content: "x"}},
		{"unknown role", types.Message{Role: "narrator", Content: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, 0)
			err := m.AddMessage(tt.msg)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrMessageValidation))
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestAssistantMessageMayCarryOnlyToolCalls(t *testing.T) {
	m := newTestManager(t, 0)

	err := m.AddMessage(types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{
		{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{}`)},
	}))
	require.NoError(t, err)
}

func TestAddUserMessageImageOnly(t *testing.T) {
	m := newTestManager(t, 0)

	require.NoError(t, m.AddUserMessage("", types.ImageContent{Type: "url", URL: "https://example.com/a.png"}))
	require.Error(t, m.AddUserMessage(""))
}

func TestAddToolResultNormalization(t *testing.T) {
	tests := []struct {
		name        string
		output      any
		wantContent string
		wantImages  int
	}{
		{"nil becomes empty", nil, "", 0},
		{"string passthrough", "plain text", "plain text", 0},
		{"raw json passthrough", json.RawMessage(`{"a":1}`), `{"a":1}`, 0},
		{"bytes passthrough", []byte(`bytes`), "bytes", 0},
		{"struct marshalled", map[string]int{"n": 7}, `{"n":7}`, 0},
		{"bare image", types.ImageContent{Type: "url", URL: "u"}, "", 1},
		{
			"part sequence",
			[]types.ContentPart{
				types.TextPart("line one"),
				types.TextPart("line two"),
				types.ImagePart(types.ImageContent{Type: "url", URL: "u"}),
			},
			"line one\nline two",
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, 0)
			require.NoError(t, m.AddToolResult("call_1", "echo", tt.output))

			history := m.History()
			require.Len(t, history, 1)
			assert.Equal(t, types.RoleTool, history[0].Role)
			assert.Equal(t, tt.wantContent, history[0].Content)
			assert.Len(t, history[0].Images, tt.wantImages)
		})
	}
}

func TestAddToolResultRequiresIdentity(t *testing.T) {
	m := newTestManager(t, 0)
	assert.Error(t, m.AddToolResult("", "echo", "x"))
	assert.Error(t, m.AddToolResult("call_1", "", "x"))
}

func TestHistoryReturnsDeepCopy(t *testing.T) {
	m := newTestManager(t, 0)
	require.NoError(t, m.AddAssistantMessage("", []types.ToolCall{
		{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)},
	}))

	history := m.History()
	history[0].Content = "mutated"
	history[0].ToolCalls[0].Name = "mutated"

	fresh := m.History()
	assert.Equal(t, "", fresh[0].Content)
	assert.Equal(t, "echo", fresh[0].ToolCalls[0].Name)
}

func TestResetClearsHistoryOnly(t *testing.T) {
	m := newTestManager(t, 500)
	require.NoError(t, m.prompts.Register(NewStaticContributor("sys", 0, "be helpful")))
	require.NoError(t, m.AddUserMessage("hello"))

	m.Reset()

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, "be helpful", m.SystemPrompt(context.Background()))
	assert.Equal(t, 500, m.Budget())
}

func TestTokenCountIncludesPrompt(t *testing.T) {
	m := newTestManager(t, 0)
	base := m.TokenCount(context.Background())
	assert.Equal(t, 0, base)

	require.NoError(t, m.prompts.Register(NewStaticContributor("sys", 0, "You are a terse assistant.")))
	withPrompt := m.TokenCount(context.Background())
	assert.Greater(t, withPrompt, 0)

	require.NoError(t, m.AddUserMessage("hello there"))
	assert.Greater(t, m.TokenCount(context.Background()), withPrompt)
}

func TestFormattedMessagesCompressesAndReplacesHistory(t *testing.T) {
	tok := types.NewEstimateTokenizer()
	chain := llmcontext.DefaultChain(tok, nil)
	m := NewMessageManager(tok, chain, providers.NewOpenAIFormatter(), nil, 60, nil)

	// Each message costs roughly 10 tokens; twelve messages blow a budget
	// of 60.
	for i := 0; i < 6; i++ {
		require.NoError(t, m.AddUserMessage("twenty four characters!!"))
		require.NoError(t, m.AddAssistantMessage("twenty four characters!!", nil))
	}
	before := m.Len()

	payload, overBudget, err := m.FormattedMessages(context.Background())
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.False(t, overBudget)

	// The reduced history replaced the stored one.
	after := m.Len()
	assert.Less(t, after, before)

	// The payload reflects the reduced history.
	var wire []json.RawMessage
	require.NoError(t, json.Unmarshal(payload.Messages, &wire))
	assert.Len(t, wire, after)
}

func TestFormattedMessagesOverBudgetStillFormats(t *testing.T) {
	tok := types.NewEstimateTokenizer()
	chain := llmcontext.DefaultChain(tok, nil)
	m := NewMessageManager(tok, chain, providers.NewOpenAIFormatter(), nil, 5, nil)

	require.NoError(t, m.AddUserMessage("this single message is already past the tiny budget"))

	payload, overBudget, err := m.FormattedMessages(context.Background())
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.True(t, overBudget)
	assert.Equal(t, 1, m.Len())
}

func TestFormattedMessagesNoBudgetSkipsCompression(t *testing.T) {
	m := newTestManager(t, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, m.AddUserMessage("some message content here"))
	}

	_, overBudget, err := m.FormattedMessages(context.Background())
	require.NoError(t, err)
	assert.False(t, overBudget)
	assert.Equal(t, 20, m.Len())
}

func TestProcessResponseAppendsParsedMessages(t *testing.T) {
	m := newTestManager(t, 0)

	raw := json.RawMessage(`{
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "parsed"}
		}]
	}`)
	msgs, err := m.ProcessResponse(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "parsed", msgs[0].Content)
	assert.Equal(t, 1, m.Len())
}

func TestProcessResponseRejectsUnparseable(t *testing.T) {
	m := newTestManager(t, 0)
	_, err := m.ProcessResponse(json.RawMessage(`{{{`))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrFormatterError))
	assert.Equal(t, 0, m.Len())
}

func TestSetTokenizerInvalidatesPromptCache(t *testing.T) {
	m := newTestManager(t, 0)
	require.NoError(t, m.prompts.Register(NewStaticContributor("sys", 0, "You are a terse assistant.")))

	first := m.TokenCount(context.Background())
	require.Greater(t, first, 0)

	// A tokenizer with different accounting changes the count after swap.
	m.SetTokenizer(&doubleTokenizer{})
	second := m.TokenCount(context.Background())
	assert.NotEqual(t, first, second)
}

// doubleTokenizer charges two tokens per character to make cache
// invalidation observable.
type doubleTokenizer struct{}

func (doubleTokenizer) CountTokens(text string) int { return 2 * len(text) }

func (d doubleTokenizer) CountMessageTokens(msg types.Message) int {
	return types.MessageTokenOverhead + d.CountTokens(msg.Content)
}

func (d doubleTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += d.CountMessageTokens(m)
	}
	return total
}
