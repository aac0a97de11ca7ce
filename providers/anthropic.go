package providers

import (
	"encoding/json"
	"fmt"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

// AnthropicFormatter renders conversation history in the Anthropic messages
// format. It diverges from the OpenAI family in three ways: the system
// prompt travels as a separate top-level field, tool results are wrapped
// into user messages, and message content is always a block array.
type AnthropicFormatter struct{}

// NewAnthropicFormatter creates an Anthropic formatter.
func NewAnthropicFormatter() *AnthropicFormatter { return &AnthropicFormatter{} }

func (f *AnthropicFormatter) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string             `json:"role"` // user or assistant
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string           `json:"type"` // text, image, tool_use, tool_result
	Text      string           `json:"text,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     json.RawMessage  `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Content   string           `json:"content,omitempty"` // for tool_result
	Source    *anthropicSource `json:"source,omitempty"`  // for image
}

type anthropicSource struct {
	Type      string `json:"type"` // base64 or url
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
}

// Format renders history into Anthropic wire messages. System messages in
// the history and the assembled system prompt are folded into the payload's
// separate System field.
func (f *AnthropicFormatter) Format(history []types.Message, systemPrompt string) (*llm.Payload, error) {
	system := systemPrompt
	wire := make([]anthropicMessage, 0, len(history))

	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case types.RoleTool:
			// Tool results ride in a user message.
			wire = append(wire, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})

		default:
			am := anthropicMessage{Role: string(m.Role)}
			if m.Content != "" {
				am.Content = append(am.Content, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, img := range m.Images {
				am.Content = append(am.Content, anthropicContent{
					Type:   "image",
					Source: toAnthropicSource(img),
				})
			}
			for _, tc := range m.ToolCalls {
				am.Content = append(am.Content, anthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			if len(am.Content) > 0 {
				wire = append(wire, am)
			}
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	payload := &llm.Payload{Messages: raw}
	if system != "" {
		sys, err := f.FormatSystemPrompt(system)
		if err != nil {
			return nil, err
		}
		payload.System = sys
	}
	return payload, nil
}

// FormatSystemPrompt renders the prompt as the separate system field this
// provider expects.
func (f *AnthropicFormatter) FormatSystemPrompt(text string) (json.RawMessage, error) {
	return json.Marshal(text)
}

// ParseResponse extracts the assistant message from a raw Anthropic
// response, mapping tool_use blocks to internal tool calls.
func (f *AnthropicFormatter) ParseResponse(raw json.RawMessage) ([]types.Message, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	msg := types.Message{Role: types.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return []types.Message{msg}, nil
}

func toAnthropicSource(img types.ImageContent) *anthropicSource {
	if img.Type == "base64" {
		mime := img.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return &anthropicSource{Type: "base64", MediaType: mime, Data: img.Data}
	}
	return &anthropicSource{Type: "url", URL: img.URL}
}
