package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

// ProviderInfo describes one registered provider: the models it serves, the
// routers it supports, how its credential is resolved, and the factories for
// its client and formatters.
type ProviderInfo struct {
	Name          string
	Models        []string
	Routers       []Router
	CredentialEnv string

	// NewClient builds the transport for a resolved config.
	NewClient func(cfg Config, logger *zap.Logger) (ProviderClient, error)

	// NewFormatter builds the wire formatter for a router choice.
	NewFormatter func(router Router) (Formatter, error)
}

// SupportsModel reports whether the provider serves the model, with prefix
// matching so "gpt-4o" covers "gpt-4o-mini".
func (p ProviderInfo) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
		if strings.HasPrefix(model, m) {
			return true
		}
	}
	return false
}

// SupportsRouter reports whether the provider serves the router. An empty
// router resolves to the provider's first registered router.
func (p ProviderInfo) SupportsRouter(router Router) bool {
	if router == "" {
		return len(p.Routers) > 0
	}
	for _, r := range p.Routers {
		if r == router {
			return true
		}
	}
	return false
}

// Registry is an explicit, constructor-injected provider lookup table.
// Components that need provider resolution receive a *Registry instead of
// reaching for process-wide state, so tests can substitute fakes.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderInfo
	logger    *zap.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers: make(map[string]ProviderInfo),
		logger:    logger,
	}
}

// Register adds a provider. Registering a duplicate name is an error.
func (r *Registry) Register(info ProviderInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return fmt.Errorf("provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[info.Name]; exists {
		return fmt.Errorf("provider %s already registered", info.Name)
	}
	r.providers[info.Name] = info
	r.logger.Info("provider registered",
		zap.String("provider", info.Name),
		zap.Int("models", len(info.Models)))
	return nil
}

// Get returns the provider info for a name.
func (r *Registry) Get(name string) (ProviderInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.providers[name]
	return info, ok
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Validate checks a resolved config against the registry: the provider must
// exist, serve the model and router, and its credential must be resolvable
// from the environment. It never mutates anything, so a failed validation
// leaves the caller's current configuration intact.
func (r *Registry) Validate(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return types.NewError(types.ErrSwitchRejected, err.Error())
	}

	info, ok := r.Get(cfg.Provider)
	if !ok {
		return types.NewError(types.ErrSwitchRejected,
			fmt.Sprintf("unknown provider: %s", cfg.Provider))
	}
	if !info.SupportsModel(cfg.Model) {
		return types.NewError(types.ErrSwitchRejected,
			fmt.Sprintf("provider %s does not serve model %s", cfg.Provider, cfg.Model))
	}
	if !info.SupportsRouter(cfg.Router) {
		return types.NewError(types.ErrSwitchRejected,
			fmt.Sprintf("provider %s does not support router %s", cfg.Provider, cfg.Router))
	}

	credEnv := cfg.APIKeyEnv
	if credEnv == "" {
		credEnv = info.CredentialEnv
	}
	if credEnv != "" && strings.TrimSpace(os.Getenv(credEnv)) == "" {
		return types.NewError(types.ErrSwitchRejected,
			fmt.Sprintf("credential %s is not set for provider %s", credEnv, cfg.Provider))
	}
	return nil
}

// ResolveRouter returns the effective router for a config.
func (r *Registry) ResolveRouter(cfg Config) (Router, error) {
	info, ok := r.Get(cfg.Provider)
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.Router != "" {
		return cfg.Router, nil
	}
	if len(info.Routers) == 0 {
		return "", fmt.Errorf("provider %s has no routers", cfg.Provider)
	}
	return info.Routers[0], nil
}
