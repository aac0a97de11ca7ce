// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records runtime metrics. All methods are safe on a nil receiver
// so callers can run without metrics wired up.
type Collector struct {
	// LLM metrics
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmRetriesTotal    *prometheus.CounterVec

	// Tool metrics
	toolExecutionsTotal   *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	// Conversation metrics
	compressionRunsTotal *prometheus.CounterVec
	conversationTokens   *prometheus.GaugeVec
	completionLoopTurns  *prometheus.HistogramVec
	sessionsActive       prometheus.Gauge
	eventsDroppedTotal   prometheus.Counter
	llmSwitchesTotal     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registered against reg. A nil reg uses
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total tokens sent to and received from LLM providers",
		},
		[]string{"provider", "model", "direction"},
	)

	c.llmRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of LLM request retries",
		},
		[]string{"provider", "model"},
	)

	c.toolExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	c.toolExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.compressionRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_runs_total",
			Help:      "Total number of history compression runs",
		},
		[]string{"outcome"},
	)

	c.conversationTokens = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_tokens",
			Help:      "Current accounted token count per session",
		},
		[]string{"session"},
	)

	c.completionLoopTurns = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_loop_iterations",
			Help:      "Tool-call loop iterations consumed per user turn",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
		[]string{"provider", "model"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions",
		},
	)

	c.eventsDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the bus buffer was full",
		},
	)

	c.llmSwitchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_switches_total",
			Help:      "Total number of mid-session LLM switches",
		},
		[]string{"status"},
	)

	return c
}

// RecordLLMRequest records one provider call.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMRetry records one retry attempt.
func (c *Collector) RecordLLMRetry(provider, model string) {
	if c == nil {
		return
	}
	c.llmRetriesTotal.WithLabelValues(provider, model).Inc()
}

// RecordToolExecution records one tool execution.
func (c *Collector) RecordToolExecution(tool, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.toolExecutionsTotal.WithLabelValues(tool, status).Inc()
	c.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCompression records the outcome of one compression run: "fit" when
// the chain satisfied the budget, "over_budget" when it was exhausted.
func (c *Collector) RecordCompression(outcome string) {
	if c == nil {
		return
	}
	c.compressionRunsTotal.WithLabelValues(outcome).Inc()
}

// SetConversationTokens publishes a session's current token count.
func (c *Collector) SetConversationTokens(session string, tokens int) {
	if c == nil {
		return
	}
	c.conversationTokens.WithLabelValues(session).Set(float64(tokens))
}

// RecordCompletionTurn records the loop iterations one user turn consumed.
func (c *Collector) RecordCompletionTurn(provider, model string, iterations int) {
	if c == nil {
		return
	}
	c.completionLoopTurns.WithLabelValues(provider, model).Observe(float64(iterations))
}

// SessionOpened increments the live session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionClosed decrements the live session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// RecordEventDropped counts one dropped event.
func (c *Collector) RecordEventDropped() {
	if c == nil {
		return
	}
	c.eventsDroppedTotal.Inc()
}

// RecordLLMSwitch records a switch attempt: "accepted" or "rejected".
func (c *Collector) RecordLLMSwitch(status string) {
	if c == nil {
		return
	}
	c.llmSwitchesTotal.WithLabelValues(status).Inc()
}
