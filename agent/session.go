package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/internal/metrics"
	"github.com/truffle-ai/saiki-sub004/llm"
	llmcontext "github.com/truffle-ai/saiki-sub004/llm/context"
	"github.com/truffle-ai/saiki-sub004/llm/retry"
	"github.com/truffle-ai/saiki-sub004/llm/tokenizer"
	"github.com/truffle-ai/saiki-sub004/llm/tools"
	"github.com/truffle-ai/saiki-sub004/types"
)

// SessionDeps holds the shared infrastructure a session is built from.
type SessionDeps struct {
	Providers  *llm.Registry
	Tokenizers *tokenizer.Registry
	Tools      *tools.Registry
	Executor   tools.Executor
	Bus        *EventBus
	Collector  *metrics.Collector
	Prompts    *PromptManager
	Retry      retry.Policy
	Logger     *zap.Logger

	// ChainFactory builds the compression chain for a resolved tokenizer.
	// Nil uses llmcontext.DefaultChain.
	ChainFactory func(types.Tokenizer, *zap.Logger) *llmcontext.Chain
}

// Session is one isolated conversation: its own history, effective LLM
// configuration and completion loop, sharing the process-wide provider and
// tool registries. One turn runs at a time; a second concurrent Run is
// rejected rather than queued.
type Session struct {
	id string

	// turnMu serializes turns and blocks switches mid-turn.
	turnMu sync.Mutex

	mu        sync.RWMutex
	baseline  llm.Config
	effective llm.Config
	manager   *MessageManager
	service   *Service

	deps   SessionDeps
	logger *zap.Logger
}

// NewSession creates a session from the baseline configuration plus an
// optional per-session override. The resolved configuration is validated
// against the provider registry before any component is built.
func NewSession(baseline llm.Config, override *llm.Override, deps SessionDeps) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	effective := baseline.Apply(override)
	if err := deps.Providers.Validate(effective); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	s := &Session{
		id:       id,
		baseline: baseline,
		deps:     deps,
		logger:   logger,
	}

	manager, service, err := s.buildStack(effective, nil)
	if err != nil {
		return nil, err
	}
	s.effective = effective
	s.manager = manager
	s.service = service

	deps.Collector.SessionOpened()
	logger.Info("session created",
		zap.String("provider", effective.Provider),
		zap.String("model", effective.Model))
	return s, nil
}

// buildStack constructs the configuration-dependent components. With a nil
// manager a fresh one is created; otherwise the existing manager (and its
// history) is retargeted at the new formatter, tokenizer and budget. Nothing
// is mutated until every construction step has succeeded.
func (s *Session) buildStack(cfg llm.Config, manager *MessageManager) (*MessageManager, *Service, error) {
	info, ok := s.deps.Providers.Get(cfg.Provider)
	if !ok {
		return nil, nil, types.NewError(types.ErrSwitchRejected, "unknown provider: "+cfg.Provider)
	}
	router, err := s.deps.Providers.ResolveRouter(cfg)
	if err != nil {
		return nil, nil, types.NewError(types.ErrSwitchRejected, err.Error()).WithCause(err)
	}
	formatter, err := info.NewFormatter(router)
	if err != nil {
		return nil, nil, types.NewError(types.ErrSwitchRejected, err.Error()).WithCause(err)
	}
	client, err := info.NewClient(cfg, s.logger)
	if err != nil {
		return nil, nil, types.NewError(types.ErrSwitchRejected, err.Error()).WithCause(err)
	}

	modelTok := s.deps.Tokenizers.GetOrEstimator(cfg.Model)
	msgTok := tokenizer.NewMessageTokenizer(modelTok, s.logger)
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = modelTok.MaxTokens()
	}
	var chain *llmcontext.Chain
	if s.deps.ChainFactory != nil {
		chain = s.deps.ChainFactory(msgTok, s.logger)
	} else {
		chain = llmcontext.DefaultChain(msgTok, s.logger)
	}

	if manager == nil {
		manager = NewMessageManager(msgTok, chain, formatter, s.deps.Prompts, budget, s.logger)
	} else {
		manager.SetFormatter(formatter)
		manager.SetTokenizer(msgTok)
		manager.SetChain(chain)
		manager.SetBudget(budget)
	}

	svcCfg := ServiceConfig{
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		Streaming:     cfg.Streaming,
	}
	retryer := retry.New(s.deps.Retry, s.logger)
	service := NewService(client, manager, s.deps.Tools, s.deps.Executor, retryer,
		s.deps.Bus, s.deps.Collector, svcCfg, s.id, s.logger)
	return manager, service, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the effective LLM configuration.
func (s *Session) Config() llm.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effective
}

// Run processes one user turn. A turn already in flight makes this call fail
// immediately with a busy error instead of queueing.
func (s *Session) Run(ctx context.Context, text string, images ...types.ImageContent) (string, error) {
	if !s.turnMu.TryLock() {
		return "", types.NewError(types.ErrSessionBusy, "a turn is already running")
	}
	defer s.turnMu.Unlock()

	s.mu.RLock()
	service := s.service
	s.mu.RUnlock()
	return service.Run(ctx, text, images...)
}

// SwitchLLM re-resolves the session onto baseline plus the new override.
// Validation and construction happen before anything is committed: a
// rejected switch leaves the session exactly as it was, history included.
func (s *Session) SwitchLLM(override *llm.Override) error {
	if !s.turnMu.TryLock() {
		return types.NewError(types.ErrSessionBusy, "cannot switch while a turn is running")
	}
	defer s.turnMu.Unlock()

	next := s.baseline.Apply(override)
	if err := s.deps.Providers.Validate(next); err != nil {
		s.deps.Collector.RecordLLMSwitch("rejected")
		s.logger.Warn("llm switch rejected", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	manager, service, err := s.buildStack(next, s.manager)
	if err != nil {
		s.deps.Collector.RecordLLMSwitch("rejected")
		s.logger.Warn("llm switch rejected", zap.Error(err))
		return err
	}
	s.manager = manager
	s.service = service
	s.effective = next
	s.deps.Collector.RecordLLMSwitch("accepted")
	s.logger.Info("llm switched",
		zap.String("provider", next.Provider),
		zap.String("model", next.Model))
	return nil
}

// Reset clears the conversation history and announces it. Configuration,
// prompt contributors and tools survive.
func (s *Session) Reset() {
	s.mu.RLock()
	manager := s.manager
	s.mu.RUnlock()
	manager.Reset()
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(Event{Type: EventReset, SessionID: s.id})
	}
}

// History returns a deep copy of the conversation history.
func (s *Session) History() []types.Message {
	s.mu.RLock()
	manager := s.manager
	s.mu.RUnlock()
	return manager.History()
}

// TokenCount returns the session's current accounted token total.
func (s *Session) TokenCount(ctx context.Context) int {
	s.mu.RLock()
	manager := s.manager
	s.mu.RUnlock()
	return manager.TokenCount(ctx)
}

// Close releases the session's metrics footprint. The session must not be
// used afterwards.
func (s *Session) Close() {
	s.deps.Collector.SessionClosed()
	s.logger.Info("session closed")
}
