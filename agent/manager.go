package agent

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	llmcontext "github.com/truffle-ai/saiki-sub004/llm/context"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

// MessageManager owns one session's conversation history. It validates every
// append against per-role structural rules, accounts tokens, lazily compresses
// the history when the formatted view would exceed the budget, and delegates
// wire formatting to the session's Formatter. The stored history is the
// internal representation only; compression changes what is stored, not just
// what is sent.
type MessageManager struct {
	mu sync.Mutex

	history   []types.Message
	tokenizer types.Tokenizer
	chain     *llmcontext.Chain
	formatter llm.Formatter
	prompts   *PromptManager
	budget    int
	logger    *zap.Logger

	// promptCache avoids re-running contributors on every token count.
	// Invalidated whenever the assembled prompt is observed to change.
	promptCache       string
	promptTokensCache int
	promptCacheValid  bool
}

// NewMessageManager creates a message manager.
func NewMessageManager(
	tokenizer types.Tokenizer,
	chain *llmcontext.Chain,
	formatter llm.Formatter,
	prompts *PromptManager,
	budget int,
	logger *zap.Logger,
) *MessageManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = NewPromptManager(logger)
	}
	return &MessageManager{
		tokenizer: tokenizer,
		chain:     chain,
		formatter: formatter,
		prompts:   prompts,
		budget:    budget,
		logger:    logger,
	}
}

// AddMessage validates and appends one message. Validation failures reject
// the message before any state changes; history never holds a structurally
// invalid entry.
func (m *MessageManager) AddMessage(msg types.Message) error {
	if err := validateMessage(msg); err != nil {
		m.logger.Warn("message rejected",
			zap.String("role", string(msg.Role)),
			zap.Error(err))
		return types.NewError(types.ErrMessageValidation, err.Error()).WithCause(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, msg.Clone())
	return nil
}

// AddUserMessage appends a user message with optional image attachments.
// Text must be non-empty unless images are attached.
func (m *MessageManager) AddUserMessage(text string, images ...types.ImageContent) error {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return types.NewError(types.ErrMessageValidation,
			"user message requires non-empty text or at least one image")
	}
	msg := types.NewUserMessage(text)
	if len(images) > 0 {
		msg = msg.WithImages(images)
	}
	return m.AddMessage(msg)
}

// AddAssistantMessage appends an assistant message carrying text, tool calls
// or both.
func (m *MessageManager) AddAssistantMessage(content string, calls []types.ToolCall) error {
	msg := types.NewAssistantMessage(content)
	if len(calls) > 0 {
		msg = msg.WithToolCalls(calls)
	}
	return m.AddMessage(msg)
}

// AddToolResult normalizes a tool's output and appends it as a tool message.
// Output shapes are recognized in fixed priority order so identical outputs
// always normalize identically: part sequences first, then a bare image,
// then plain text, then a JSON fallback for anything else. Nil becomes the
// empty string, which is a valid tool result.
func (m *MessageManager) AddToolResult(toolCallID, name string, output any) error {
	if strings.TrimSpace(toolCallID) == "" {
		return types.NewError(types.ErrMessageValidation, "tool result requires tool_call_id")
	}
	if strings.TrimSpace(name) == "" {
		return types.NewError(types.ErrMessageValidation, "tool result requires tool name")
	}

	content, images, err := normalizeToolOutput(output)
	if err != nil {
		return types.NewError(types.ErrMessageValidation, "tool result not serializable").WithCause(err)
	}

	msg := types.NewToolMessage(toolCallID, name, content)
	if len(images) > 0 {
		msg = msg.WithImages(images)
	}
	return m.AddMessage(msg)
}

// normalizeToolOutput folds an arbitrary tool output into message content
// plus image attachments.
func normalizeToolOutput(output any) (string, []types.ImageContent, error) {
	switch v := output.(type) {
	case nil:
		return "", nil, nil

	case []types.ContentPart:
		var sb strings.Builder
		var images []types.ImageContent
		for _, part := range v {
			switch part.Type {
			case "text":
				if sb.Len() > 0 && part.Text != "" {
					sb.WriteString("\n")
				}
				sb.WriteString(part.Text)
			case "image":
				if part.Image != nil {
					images = append(images, *part.Image)
				}
			}
		}
		return sb.String(), images, nil

	case types.ImageContent:
		return "", []types.ImageContent{v}, nil

	case *types.ImageContent:
		if v == nil {
			return "", nil, nil
		}
		return "", []types.ImageContent{*v}, nil

	case string:
		return v, nil, nil

	case json.RawMessage:
		return string(v), nil, nil

	case []byte:
		return string(v), nil, nil

	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", nil, err
		}
		return string(raw), nil, nil
	}
}

// validateMessage enforces the per-role structural rules.
func validateMessage(msg types.Message) error {
	switch msg.Role {
	case types.RoleSystem:
		if strings.TrimSpace(msg.Content) == "" {
			return newValidationError("content", "system message requires content")
		}
		if len(msg.ToolCalls) > 0 {
			return newValidationError("tool_calls", "system message cannot carry tool calls")
		}
		if msg.ToolCallID != "" {
			return newValidationError("tool_call_id", "system message cannot carry a tool_call_id")
		}

	case types.RoleUser:
		if strings.TrimSpace(msg.Content) == "" && len(msg.Images) == 0 {
			return newValidationError("content", "user message requires content or images")
		}
		if len(msg.ToolCalls) > 0 {
			return newValidationError("tool_calls", "user message cannot carry tool calls")
		}
		if msg.ToolCallID != "" {
			return newValidationError("tool_call_id", "user message cannot carry a tool_call_id")
		}

	case types.RoleAssistant:
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			return newValidationError("content", "assistant message requires content or tool calls")
		}
		for i, tc := range msg.ToolCalls {
			if strings.TrimSpace(tc.ID) == "" {
				return newValidationError("tool_calls", "tool call missing id at index "+strconv.Itoa(i))
			}
			if strings.TrimSpace(tc.Name) == "" {
				return newValidationError("tool_calls", "tool call missing name at index "+strconv.Itoa(i))
			}
		}
		if msg.ToolCallID != "" {
			return newValidationError("tool_call_id", "assistant message cannot carry a tool_call_id")
		}

	case types.RoleTool:
		if strings.TrimSpace(msg.ToolCallID) == "" {
			return newValidationError("tool_call_id", "tool message requires tool_call_id")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return newValidationError("name", "tool message requires the tool name")
		}
		if len(msg.ToolCalls) > 0 {
			return newValidationError("tool_calls", "tool message cannot carry tool calls")
		}

	default:
		return newValidationError("role", "unknown role "+string(msg.Role))
	}
	return nil
}

// History returns a deep copy of the stored history.
func (m *MessageManager) History() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.CloneMessages(m.history)
}

// Len returns the number of stored messages.
func (m *MessageManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// TokenCount returns the current accounted total: stored messages plus the
// assembled system prompt plus its per-message overhead.
func (m *MessageManager) TokenCount(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenCountLocked(ctx)
}

func (m *MessageManager) tokenCountLocked(ctx context.Context) int {
	return m.tokenizer.CountMessagesTokens(m.history) + m.promptTokensLocked(ctx)
}

func (m *MessageManager) promptTokensLocked(ctx context.Context) int {
	prompt := m.prompts.Assemble(ctx)
	if !m.promptCacheValid || prompt != m.promptCache {
		m.promptCache = prompt
		m.promptTokensCache = 0
		if prompt != "" {
			m.promptTokensCache = m.tokenizer.CountTokens(prompt) + types.MessageTokenOverhead
		}
		m.promptCacheValid = true
	}
	return m.promptTokensCache
}

// SystemPrompt assembles and returns the current system prompt.
func (m *MessageManager) SystemPrompt(ctx context.Context) string {
	return m.prompts.Assemble(ctx)
}

// FormattedSystemPrompt renders the assembled prompt in the active
// formatter's representation.
func (m *MessageManager) FormattedSystemPrompt(ctx context.Context) (json.RawMessage, error) {
	raw, err := m.formatter.FormatSystemPrompt(m.prompts.Assemble(ctx))
	if err != nil {
		return nil, types.NewError(types.ErrFormatterError, "format system prompt").WithCause(err)
	}
	return raw, nil
}

// FormattedMessages produces the provider payload for the current history.
// Compression runs lazily here, and only when the accounted total exceeds the
// budget; the reduced history replaces the stored one. When even the full
// strategy chain cannot fit the budget the payload is still produced and
// overBudget is true, so the caller can attempt the request anyway.
func (m *MessageManager) FormattedMessages(ctx context.Context) (payload *llm.Payload, overBudget bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prompt := m.prompts.Assemble(ctx)
	m.promptCache = prompt
	m.promptTokensCache = 0
	if prompt != "" {
		m.promptTokensCache = m.tokenizer.CountTokens(prompt) + types.MessageTokenOverhead
	}
	m.promptCacheValid = true

	if m.budget > 0 && m.chain != nil {
		historyBudget := m.budget - m.promptTokensCache
		if historyBudget < 0 {
			historyBudget = 0
		}
		reduced, fits := m.chain.Run(m.history, historyBudget)
		m.history = reduced
		overBudget = !fits
	}

	payload, ferr := m.formatter.Format(m.history, prompt)
	if ferr != nil {
		return nil, overBudget, types.NewError(types.ErrFormatterError, "format messages").WithCause(ferr)
	}
	return payload, overBudget, nil
}

// ProcessResponse parses a raw provider response through the active
// formatter and appends the resulting messages to history. The parsed
// messages are returned so the caller can inspect tool calls.
func (m *MessageManager) ProcessResponse(raw json.RawMessage) ([]types.Message, error) {
	msgs, err := m.formatter.ParseResponse(raw)
	if err != nil {
		return nil, types.NewError(types.ErrFormatterError, "parse response").WithCause(err)
	}
	for _, msg := range msgs {
		if err := m.AddMessage(msg); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Reset clears the conversation history. Prompt contributors, formatter,
// tokenizer and budget survive a reset.
func (m *MessageManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.logger.Info("conversation history reset")
}

// SetFormatter swaps the wire formatter. Used on LLM switch; stored history
// is untouched because it is provider-neutral.
func (m *MessageManager) SetFormatter(f llm.Formatter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatter = f
}

// SetTokenizer swaps the tokenizer and invalidates cached prompt accounting.
func (m *MessageManager) SetTokenizer(t types.Tokenizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenizer = t
	m.promptCacheValid = false
}

// SetBudget updates the token budget. Zero disables compression.
func (m *MessageManager) SetBudget(budget int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = budget
}

// SetChain swaps the compression chain, typically after a tokenizer change.
func (m *MessageManager) SetChain(c *llmcontext.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = c
}

// Budget returns the configured token budget.
func (m *MessageManager) Budget() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budget
}
