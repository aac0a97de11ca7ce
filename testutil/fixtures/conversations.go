// Package fixtures provides canned conversation histories and raw provider
// responses for tests.
package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/truffle-ai/saiki-sub004/types"
)

// ShortConversation returns a minimal user/assistant exchange.
func ShortConversation() []types.Message {
	return []types.Message{
		types.NewUserMessage("What is the capital of France?"),
		types.NewAssistantMessage("The capital of France is Paris."),
	}
}

// ToolConversation returns a full tool round: user question, assistant tool
// call, tool result, final assistant answer.
func ToolConversation() []types.Message {
	return []types.Message{
		types.NewUserMessage("What's the weather in Paris?"),
		types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{{
			ID:        "call_1",
			Name:      "get_weather",
			Arguments: json.RawMessage(`{"city":"Paris"}`),
		}}),
		types.NewToolMessage("call_1", "get_weather", `{"temp_c":18,"conditions":"cloudy"}`),
		types.NewAssistantMessage("It's 18°C and cloudy in Paris."),
	}
}

// LongConversation returns alternating user/assistant turns, n of each.
// Message text carries the turn number so removal tests can assert which
// entries survived.
func LongConversation(n int) []types.Message {
	msgs := make([]types.Message, 0, 2*n)
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			types.NewUserMessage(fmt.Sprintf("user turn %d", i)),
			types.NewAssistantMessage(fmt.Sprintf("assistant turn %d", i)),
		)
	}
	return msgs
}

// OpenAITextResponse returns a raw chat-completion body with a plain
// assistant answer.
func OpenAITextResponse(text string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-fixture",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": text,
			},
		}},
	})
	return raw
}

// OpenAIToolCallResponse returns a raw chat-completion body requesting one
// tool call.
func OpenAIToolCallResponse(callID, name, args string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-fixture",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"id":   callID,
					"type": "function",
					"function": map[string]any{
						"name":      name,
						"arguments": args,
					},
				}},
			},
		}},
	})
	return raw
}

// AnthropicTextResponse returns a raw messages-API body with a plain
// assistant answer.
func AnthropicTextResponse(text string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"id":          "msg_fixture",
		"type":        "message",
		"role":        "assistant",
		"stop_reason": "end_turn",
		"content": []map[string]any{{
			"type": "text",
			"text": text,
		}},
	})
	return raw
}

// AnthropicToolUseResponse returns a raw messages-API body requesting one
// tool call.
func AnthropicToolUseResponse(callID, name string, input map[string]any) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"id":          "msg_fixture",
		"type":        "message",
		"role":        "assistant",
		"stop_reason": "tool_use",
		"content": []map[string]any{{
			"type":  "tool_use",
			"id":    callID,
			"name":  name,
			"input": input,
		}},
	})
	return raw
}
