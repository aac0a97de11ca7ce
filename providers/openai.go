package providers

import (
	"encoding/json"
	"fmt"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

// OpenAIFormatter renders conversation history in the OpenAI-compatible chat
// format. The format is lossless for role/content/tool-call structure, so it
// also backs the unified "openai-compat" router used by gateway-style
// providers.
type OpenAIFormatter struct{}

// NewOpenAIFormatter creates an OpenAI-compatible formatter.
func NewOpenAIFormatter() *OpenAIFormatter { return &OpenAIFormatter{} }

func (f *OpenAIFormatter) Name() string { return "openai" }

type oaiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"` // always "function"
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded string
}

type oaiContentPart struct {
	Type     string       `json:"type"` // text or image_url
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"` // string or part array
	Name       string          `json:"name,omitempty"`
	ToolCalls  []oaiToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Index        int        `json:"index"`
		FinishReason string     `json:"finish_reason"`
		Message      oaiMessage `json:"message"`
	} `json:"choices"`
}

// Format renders history into an OpenAI messages array. The system prompt is
// inlined as the leading system message, which is how this provider family
// wants it delivered.
func (f *OpenAIFormatter) Format(history []types.Message, systemPrompt string) (*llm.Payload, error) {
	wire := make([]oaiMessage, 0, len(history)+1)
	if systemPrompt != "" {
		content, _ := json.Marshal(systemPrompt)
		wire = append(wire, oaiMessage{Role: string(types.RoleSystem), Content: content})
	}
	for _, m := range history {
		wm, err := toOpenAIMessage(m)
		if err != nil {
			return nil, fmt.Errorf("format message (role=%s): %w", m.Role, err)
		}
		wire = append(wire, wm)
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	return &llm.Payload{Messages: raw}, nil
}

// FormatSystemPrompt inlines the prompt as a system message.
func (f *OpenAIFormatter) FormatSystemPrompt(text string) (json.RawMessage, error) {
	return json.Marshal(oaiMessage{
		Role:    string(types.RoleSystem),
		Content: mustJSONString(text),
	})
}

// ParseResponse extracts internal messages from a raw provider response.
// It accepts both the chat-completion response shape and a bare wire message
// array, which keeps format/parse symmetric for replay tooling.
func (f *OpenAIFormatter) ParseResponse(raw json.RawMessage) ([]types.Message, error) {
	var resp oaiResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.Choices) > 0 {
		msg, err := fromOpenAIMessage(resp.Choices[0].Message)
		if err != nil {
			return nil, err
		}
		return []types.Message{msg}, nil
	}

	var wire []oaiMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unrecognized response shape: %w", err)
	}
	out := make([]types.Message, 0, len(wire))
	for _, wm := range wire {
		msg, err := fromOpenAIMessage(wm)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func toOpenAIMessage(m types.Message) (oaiMessage, error) {
	wm := oaiMessage{
		Role:       string(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}

	switch {
	case len(m.Images) > 0:
		parts := make([]oaiContentPart, 0, len(m.Images)+1)
		if m.Content != "" {
			parts = append(parts, oaiContentPart{Type: "text", Text: m.Content})
		}
		for _, img := range m.Images {
			parts = append(parts, oaiContentPart{Type: "image_url", ImageURL: &oaiImageURL{URL: imageURL(img)}})
		}
		raw, err := json.Marshal(parts)
		if err != nil {
			return oaiMessage{}, err
		}
		wm.Content = raw
	case m.Content != "" || m.Role == types.RoleTool:
		// Tool results may legitimately carry an empty string.
		wm.Content = mustJSONString(m.Content)
	}

	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, oaiToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: oaiFunction{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return wm, nil
}

func fromOpenAIMessage(wm oaiMessage) (types.Message, error) {
	msg := types.Message{
		Role:       types.Role(wm.Role),
		Name:       wm.Name,
		ToolCallID: wm.ToolCallID,
	}

	if len(wm.Content) > 0 {
		var text string
		if err := json.Unmarshal(wm.Content, &text); err == nil {
			msg.Content = text
		} else {
			var parts []oaiContentPart
			if err := json.Unmarshal(wm.Content, &parts); err != nil {
				return types.Message{}, fmt.Errorf("parse content: %w", err)
			}
			for _, p := range parts {
				switch p.Type {
				case "text":
					msg.Content += p.Text
				case "image_url":
					if p.ImageURL != nil {
						msg.Images = append(msg.Images, types.ImageContent{Type: "url", URL: p.ImageURL.URL})
					}
				}
			}
		}
	}

	for _, tc := range wm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg, nil
}

func imageURL(img types.ImageContent) string {
	if img.Type == "base64" {
		mime := img.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + img.Data
	}
	return img.URL
}

func mustJSONString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
