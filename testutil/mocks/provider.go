// Package mocks provides scripted fakes for the provider and tool
// interfaces.
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

// Step is one scripted provider turn: either a raw response or an error.
type Step struct {
	Raw json.RawMessage
	Err error
}

// MockProvider is a scripted llm.ProviderClient. Each call consumes the next
// step; the requests it saw are recorded for assertions. When the script
// runs out, calls fail.
type MockProvider struct {
	mu       sync.Mutex
	script   []Step
	requests []*llm.Request
	stream   bool
}

// NewMockProvider creates a provider that replays the given steps in order.
func NewMockProvider(steps ...Step) *MockProvider {
	return &MockProvider{script: steps}
}

// TextStep builds a step answering with plain assistant text in the OpenAI
// response shape.
func TextStep(text string) Step {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": text,
			},
		}},
	})
	return Step{Raw: raw}
}

// ToolCallStep builds a step answering with a single tool call in the OpenAI
// response shape.
func ToolCallStep(callID, name string, args string) Step {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"index": 0,
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
	return Step{Raw: raw}
}

// ErrorStep builds a step that fails with a coded error.
func ErrorStep(code types.ErrorCode, msg string, retryable bool) Step {
	return Step{Err: types.NewError(code, msg).WithRetryable(retryable)}
}

// WithStreaming makes SupportsStreaming report true; Stream then delivers
// the step's raw response as a single final chunk.
func (m *MockProvider) WithStreaming() *MockProvider {
	m.stream = true
	return m
}

func (m *MockProvider) Name() string            { return "mock" }
func (m *MockProvider) SupportsStreaming() bool { return m.stream }

// Complete consumes the next scripted step.
func (m *MockProvider) Complete(_ context.Context, req *llm.Request) (json.RawMessage, error) {
	step, err := m.next(req)
	if err != nil {
		return nil, err
	}
	return step.Raw, step.Err
}

// Stream consumes the next scripted step and delivers it as chunk events.
func (m *MockProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	step, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		var coded *types.Error
		if e, ok := step.Err.(*types.Error); ok {
			coded = e
		} else {
			coded = types.NewError(types.ErrUpstreamError, step.Err.Error())
		}
		ch := make(chan llm.StreamChunk, 1)
		ch <- llm.StreamChunk{Err: coded}
		close(ch)
		return ch, nil
	}

	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Delta: "…"}
	ch <- llm.StreamChunk{Raw: step.Raw}
	close(ch)
	return ch, nil
}

func (m *MockProvider) next(req *llm.Request) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		return Step{}, fmt.Errorf("mock provider script exhausted after %d calls", len(m.requests)-1)
	}
	step := m.script[0]
	m.script = m.script[1:]
	return step, nil
}

// Requests returns the recorded requests.
func (m *MockProvider) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many calls were made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
