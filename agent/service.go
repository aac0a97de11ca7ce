package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/internal/metrics"
	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/llm/retry"
	"github.com/truffle-ai/saiki-sub004/llm/tools"
	"github.com/truffle-ai/saiki-sub004/types"
)

// DefaultMaxIterations caps the tool-call loop per user turn when the
// configuration does not set one.
const DefaultMaxIterations = 10

// ServiceConfig carries the per-session completion settings.
type ServiceConfig struct {
	Provider      string
	Model         string
	MaxIterations int
	MaxTokens     int
	Temperature   float32
	Streaming     bool
}

// Service drives one user turn to completion: it sends the formatted history
// to the provider, executes any requested tools, feeds results back, and
// repeats until the model answers with plain text or the iteration ceiling
// is reached. Tool failures never abort the turn; they travel back to the
// model as error-shaped results.
type Service struct {
	client    llm.ProviderClient
	manager   *MessageManager
	registry  *tools.Registry
	executor  tools.Executor
	retryer   *retry.Retryer
	bus       *EventBus
	collector *metrics.Collector
	logger    *zap.Logger
	cfg       ServiceConfig
	sessionID string
}

// NewService creates a completion service. registry and executor may be nil
// for a session without tools; bus and collector may be nil.
func NewService(
	client llm.ProviderClient,
	manager *MessageManager,
	registry *tools.Registry,
	executor tools.Executor,
	retryer *retry.Retryer,
	bus *EventBus,
	collector *metrics.Collector,
	cfg ServiceConfig,
	sessionID string,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryer == nil {
		retryer = retry.New(retry.DefaultPolicy(), logger)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Service{
		client:    client,
		manager:   manager,
		registry:  registry,
		executor:  executor,
		retryer:   retryer,
		bus:       bus,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
		sessionID: sessionID,
	}
}

// Run processes one user turn and returns the model's final text response.
// The iteration ceiling is a safeguard, not an error: when the model keeps
// calling tools past the ceiling, the last round's results are still recorded
// and a fallback response is synthesized.
func (s *Service) Run(ctx context.Context, text string, images ...types.ImageContent) (string, error) {
	if err := s.manager.AddUserMessage(text, images...); err != nil {
		s.publishError(err)
		return "", err
	}

	schemas := s.toolSchemas()

	for iteration := 1; iteration <= s.cfg.MaxIterations; iteration++ {
		s.publish(Event{Type: EventThinking})

		raw, err := s.complete(ctx, schemas)
		if err != nil {
			s.publishError(err)
			if types.IsErrorCode(err, types.ErrContextTooLong) {
				s.logger.Error("context too long even after compression, turn abandoned",
					zap.String("session", s.sessionID))
			}
			return "", err
		}

		msgs, err := s.manager.ProcessResponse(raw)
		if err != nil {
			s.publishError(err)
			return "", err
		}

		content, calls := splitResponse(msgs)
		if len(calls) == 0 {
			s.publish(Event{Type: EventResponse, Content: content})
			s.collector.RecordCompletionTurn(s.cfg.Provider, s.cfg.Model, iteration)
			s.collector.SetConversationTokens(s.sessionID, s.manager.TokenCount(ctx))
			return content, nil
		}

		s.logger.Debug("model requested tools",
			zap.Int("iteration", iteration),
			zap.Int("calls", len(calls)))
		if err := s.runTools(ctx, calls); err != nil {
			s.publishError(err)
			return "", err
		}
	}

	// Ceiling reached with the model still calling tools. Record a fallback
	// answer so the conversation stays well formed for the next turn.
	final := fmt.Sprintf("Reached maximum tool iterations (%d) without a final response.", s.cfg.MaxIterations)
	if err := s.manager.AddAssistantMessage(final, nil); err != nil {
		return "", err
	}
	s.logger.Warn("iteration ceiling reached",
		zap.String("session", s.sessionID),
		zap.Int("max_iterations", s.cfg.MaxIterations))
	s.publish(Event{Type: EventResponse, Content: final})
	s.collector.RecordCompletionTurn(s.cfg.Provider, s.cfg.Model, s.cfg.MaxIterations)
	s.collector.SetConversationTokens(s.sessionID, s.manager.TokenCount(ctx))
	return final, nil
}

// complete performs one provider call under the retry policy. The final
// retry attempt withholds tools so a model that fails on tool-bearing
// requests can still produce text.
func (s *Service) complete(ctx context.Context, schemas []types.ToolSchema) (json.RawMessage, error) {
	payload, overBudget, err := s.manager.FormattedMessages(ctx)
	if err != nil {
		return nil, err
	}
	if overBudget {
		s.collector.RecordCompression("over_budget")
		s.logger.Warn("sending over-budget request", zap.String("session", s.sessionID))
	}

	var raw json.RawMessage
	start := time.Now()
	err = s.retryer.Do(ctx, func(attempt int, final bool) error {
		req := &llm.Request{
			Model:       s.cfg.Model,
			Payload:     payload,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		}
		if len(schemas) > 0 && !(final && attempt > 1) {
			req.Tools = schemas
		}
		if attempt > 1 {
			s.collector.RecordLLMRetry(s.cfg.Provider, s.cfg.Model)
		}

		var cerr error
		if s.cfg.Streaming && s.client.SupportsStreaming() {
			raw, cerr = s.stream(ctx, req)
		} else {
			raw, cerr = s.client.Complete(ctx, req)
		}
		return cerr
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	s.collector.RecordLLMRequest(s.cfg.Provider, s.cfg.Model, status, time.Since(start), 0, 0)
	return raw, err
}

// stream consumes a streaming call, republishing deltas as chunk events and
// returning the consolidated raw response from the final chunk.
func (s *Service) stream(ctx context.Context, req *llm.Request) (json.RawMessage, error) {
	ch, err := s.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Delta != "" {
			s.publish(Event{Type: EventChunk, Content: chunk.Delta})
		}
		if len(chunk.Raw) > 0 {
			raw = chunk.Raw
		}
	}
	if len(raw) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "stream ended without a final response")
	}
	return raw, nil
}

// runTools executes the model's tool calls and appends their results. Failed
// executions become error-shaped results; the model decides how to proceed.
func (s *Service) runTools(ctx context.Context, calls []types.ToolCall) error {
	if s.executor == nil {
		for _, call := range calls {
			if err := s.manager.AddToolResult(call.ID, call.Name,
				map[string]any{"error": "no tool executor configured"}); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range calls {
		call := calls[i]
		s.publish(Event{Type: EventToolCall, ToolCall: &call})
	}

	results := s.executor.Execute(ctx, calls)
	for i := range results {
		result := results[i]

		status := "success"
		var output any
		if result.IsError() {
			status = "error"
			output = map[string]any{"error": result.Error}
		} else {
			output = result.Result
		}
		s.collector.RecordToolExecution(result.Name, status, result.Duration)
		s.publish(Event{Type: EventToolResult, ToolResult: &result})

		if err := s.manager.AddToolResult(result.ToolCallID, result.Name, output); err != nil {
			return err
		}
	}
	return nil
}

// splitResponse extracts the text content and tool calls from the parsed
// provider messages.
func splitResponse(msgs []types.Message) (string, []types.ToolCall) {
	var content string
	var calls []types.ToolCall
	for _, msg := range msgs {
		if msg.Role != types.RoleAssistant {
			continue
		}
		if msg.Content != "" {
			if content != "" {
				content += "\n"
			}
			content += msg.Content
		}
		calls = append(calls, msg.ToolCalls...)
	}
	return content, calls
}

func (s *Service) toolSchemas() []types.ToolSchema {
	if s.registry == nil {
		return nil
	}
	return s.registry.List()
}

func (s *Service) publish(event Event) {
	if s.bus == nil {
		return
	}
	event.SessionID = s.sessionID
	s.bus.Publish(event)
}

func (s *Service) publishError(err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{
		Type:      EventError,
		SessionID: s.sessionID,
		Content:   err.Error(),
		ErrorCode: types.GetErrorCode(err),
	})
}
