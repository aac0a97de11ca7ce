package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/internal/metrics"
	"github.com/truffle-ai/saiki-sub004/types"
)

// EventType enumerates the lifecycle phases the core publishes. The set is
// fixed: external subscribers (CLIs, web UIs) key off these kinds.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventChunk      EventType = "chunk"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventResponse   EventType = "response"
	EventError      EventType = "error"
	EventReset      EventType = "reset"
)

// Event is one lifecycle notification. Events are advisory: they are not
// part of the correctness contract and listeners must never be able to
// block a turn.
type Event struct {
	Type       EventType         `json:"type"`
	SessionID  string            `json:"session_id,omitempty"`
	Content    string            `json:"content,omitempty"`
	ToolCall   *types.ToolCall   `json:"tool_call,omitempty"`
	ToolResult *types.ToolResult `json:"tool_result,omitempty"`
	ErrorCode  types.ErrorCode   `json:"error_code,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// EventHandler consumes events.
type EventHandler func(Event)

// EventBus is a fire-and-forget publish-subscribe channel. The core
// publishes and never subscribes to its own events; a full buffer drops
// rather than blocks.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[EventType]map[string]EventHandler
	events    chan Event
	done      chan struct{}
	stopOnce  sync.Once
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewEventBus creates and starts an event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &EventBus{
		handlers: make(map[EventType]map[string]EventHandler),
		events:   make(chan Event, 100),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go bus.process()
	return bus
}

// SetCollector attaches a metrics collector so dropped events are counted.
// Call before the bus is shared; nil is allowed.
func (b *EventBus) SetCollector(c *metrics.Collector) {
	b.collector = c
}

// Publish delivers an event asynchronously. Drops when the buffer is full.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.events <- event:
	case <-b.done:
	default:
		b.collector.RecordEventDropped()
		b.logger.Debug("event dropped, bus full", zap.String("type", string(event.Type)))
	}
}

// Subscribe registers a handler for one event type and returns the
// subscription ID.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]EventHandler)
	}
	id := uuid.NewString()
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

func (b *EventBus) process() {
	for {
		select {
		case event := <-b.events:
			b.mu.RLock()
			src := b.handlers[event.Type]
			handlers := make([]EventHandler, 0, len(src))
			for _, h := range src {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				h := handler
				go func() {
					defer func() {
						if r := recover(); r != nil {
							b.logger.Error("event handler panicked", zap.Any("recover", r))
						}
					}()
					h(event)
				}()
			}
		case <-b.done:
			return
		}
	}
}

// Stop shuts the bus down. Pending events are discarded.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}
