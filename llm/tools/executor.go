package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/truffle-ai/saiki-sub004/types"
)

// Executor runs tool calls requested by the model. Failures never surface
// as errors: every outcome is a ToolResult, with Error set when execution
// failed, so the completion loop can always continue.
type Executor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// DefaultExecutor executes tools from a Registry with per-tool timeouts and
// bounded parallelism. Results are returned in call order regardless of
// completion order, so history appends stay deterministic.
type DefaultExecutor struct {
	registry *Registry
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// NewDefaultExecutor creates an executor. maxConcurrent <= 0 means 4.
func NewDefaultExecutor(registry *Registry, maxConcurrent int, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &DefaultExecutor{
		registry: registry,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logger,
	}
}

// Execute runs all calls, possibly concurrently against external systems,
// and returns results indexed by call order.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	done := make(chan struct{})
	pending := len(calls)
	if pending == 0 {
		return results
	}

	for i, call := range calls {
		go func(idx int, c types.ToolCall) {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[idx] = types.ToolResult{
					ToolCallID: c.ID,
					Name:       c.Name,
					Error:      fmt.Sprintf("cancelled before execution: %v", err),
				}
			} else {
				results[idx] = e.ExecuteOne(ctx, c)
				e.sem.Release(1)
			}
			done <- struct{}{}
		}(i, call)
	}
	for range calls {
		<-done
	}
	return results
}

// ExecuteOne runs a single tool call.
func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		result.Duration = time.Since(start)
		e.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		return result
	}

	if err := e.registry.allow(call.Name); err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		e.logger.Warn("tool rate limited", zap.String("name", call.Name))
		return result
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		result.Error = "invalid arguments: not valid JSON"
		result.Duration = time.Since(start)
		e.logger.Error("invalid tool arguments", zap.String("name", call.Name))
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// Buffered so the goroutine can exit even when the timeout wins.
	doneChan := make(chan struct {
		res json.RawMessage
		err error
	}, 1)

	go func() {
		res, err := fn(execCtx, call.Arguments)
		select {
		case doneChan <- struct {
			res json.RawMessage
			err error
		}{res, err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case done := <-doneChan:
		result.Duration = time.Since(start)
		if done.err != nil {
			result.Error = done.err.Error()
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", result.Duration))
		} else {
			result.Result = done.res
			e.logger.Debug("tool executed",
				zap.String("name", call.Name),
				zap.Duration("duration", result.Duration))
		}

	case <-execCtx.Done():
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		result.Duration = time.Since(start)
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
	}

	return result
}
