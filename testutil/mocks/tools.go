package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/truffle-ai/saiki-sub004/llm/tools"
	"github.com/truffle-ai/saiki-sub004/types"
)

// EchoTool returns a tool that echoes its arguments back as the result.
func EchoTool() tools.ToolFunc {
	return func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		if len(args) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return args, nil
	}
}

// FailingTool returns a tool that always fails with the given message.
func FailingTool(msg string) tools.ToolFunc {
	return func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, fmt.Errorf("%s", msg)
	}
}

// SlowTool returns a tool that sleeps for delay before answering, honoring
// context cancellation.
func SlowTool(delay time.Duration, result string) tools.ToolFunc {
	return func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(delay):
			out, _ := json.Marshal(map[string]string{"result": result})
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CountingTool returns a tool that reports how many times it ran, plus a
// loader for assertions.
func CountingTool(result string) (tools.ToolFunc, func() int64) {
	var calls int64
	fn := func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		atomic.AddInt64(&calls, 1)
		out, _ := json.Marshal(map[string]string{"result": result})
		return out, nil
	}
	return fn, func() int64 { return atomic.LoadInt64(&calls) }
}

// RegisterEcho registers an echo tool under name with a minimal schema.
func RegisterEcho(registry *tools.Registry, name string) error {
	return registry.Register(name, EchoTool(), tools.ToolMetadata{
		Schema: types.ToolSchema{
			Name:        name,
			Description: "echoes its arguments",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"text": {"type": "string"}}
			}`),
		},
	})
}

// StaticExecutor is an Executor that answers every call with a fixed
// outcome, bypassing any registry.
type StaticExecutor struct {
	// Output is the result payload for every call. Ignored when Fail is set.
	Output json.RawMessage
	// Fail, when non-empty, makes every call fail with this message.
	Fail string
}

func (e *StaticExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	for i, call := range calls {
		results[i] = e.ExecuteOne(ctx, call)
	}
	return results
}

func (e *StaticExecutor) ExecuteOne(_ context.Context, call types.ToolCall) types.ToolResult {
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	if e.Fail != "" {
		result.Error = e.Fail
		return result
	}
	result.Result = e.Output
	return result
}
