package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

func stubInfo(name string) ProviderInfo {
	return ProviderInfo{
		Name:          name,
		Models:        []string{"model-x", "model-y"},
		Routers:       []Router{RouterNative, RouterOpenAICompat},
		CredentialEnv: "STUB_API_KEY",
		NewClient: func(Config, *zap.Logger) (ProviderClient, error) {
			return nil, nil
		},
		NewFormatter: func(Router) (Formatter, error) {
			return nil, nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubInfo("stub")))

	info, ok := r.Get("stub")
	assert.True(t, ok)
	assert.Equal(t, "stub", info.Name)

	_, ok = r.Get("other")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicatesAndBlankNames(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubInfo("stub")))
	assert.Error(t, r.Register(stubInfo("stub")))
	assert.Error(t, r.Register(ProviderInfo{Name: "  "}))
}

func TestSupportsModelPrefixMatch(t *testing.T) {
	info := stubInfo("stub")
	assert.True(t, info.SupportsModel("model-x"))
	assert.True(t, info.SupportsModel("model-x-mini"))
	assert.False(t, info.SupportsModel("gpt-4o"))
}

func TestValidateChecksProviderModelRouterCredential(t *testing.T) {
	t.Setenv("STUB_API_KEY", "key")

	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubInfo("stub")))

	valid := Config{Provider: "stub", Model: "model-x"}
	assert.NoError(t, r.Validate(valid))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown provider", Config{Provider: "nope", Model: "model-x"}},
		{"unserved model", Config{Provider: "stub", Model: "gpt-4o"}},
		{"unsupported router", Config{Provider: "stub", Model: "model-x", Router: "grpc"}},
		{"invalid config", Config{Provider: "stub"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.cfg)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrSwitchRejected))
		})
	}
}

func TestValidateMissingCredential(t *testing.T) {
	t.Setenv("STUB_API_KEY", "")

	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubInfo("stub")))

	err := r.Validate(Config{Provider: "stub", Model: "model-x"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSwitchRejected))
}

func TestResolveRouter(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubInfo("stub")))

	// Explicit router wins.
	router, err := r.ResolveRouter(Config{Provider: "stub", Router: RouterOpenAICompat})
	require.NoError(t, err)
	assert.Equal(t, RouterOpenAICompat, router)

	// Empty router falls back to the provider's first registered one.
	router, err = r.ResolveRouter(Config{Provider: "stub"})
	require.NoError(t, err)
	assert.Equal(t, RouterNative, router)

	_, err = r.ResolveRouter(Config{Provider: "missing"})
	assert.Error(t, err)
}
