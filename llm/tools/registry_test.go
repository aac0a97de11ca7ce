package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truffle-ai/saiki-sub004/types"
)

func echoFunc(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(0, nil)

	err := r.Register("echo", echoFunc, ToolMetadata{
		Schema: types.ToolSchema{Name: "echo", Description: "echoes arguments"},
	})
	require.NoError(t, err)

	fn, meta, err := r.Get("echo")
	require.NoError(t, err)
	assert.NotNil(t, fn)
	assert.Equal(t, "echo", meta.Schema.Name)
	assert.Equal(t, 30*time.Second, meta.Timeout)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry(0, nil)

	require.NoError(t, r.Register("echo", echoFunc, ToolMetadata{}))
	err := r.Register("echo", echoFunc, ToolMetadata{})
	assert.Error(t, err)
}

func TestRegisterNameMismatchRejected(t *testing.T) {
	r := NewRegistry(0, nil)

	err := r.Register("echo", echoFunc, ToolMetadata{
		Schema: types.ToolSchema{Name: "other"},
	})
	assert.Error(t, err)
}

func TestRegisterAppliesDefaultTimeout(t *testing.T) {
	r := NewRegistry(5*time.Second, nil)

	require.NoError(t, r.Register("echo", echoFunc, ToolMetadata{}))
	_, meta, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, meta.Timeout)

	// An explicit timeout wins over the default.
	require.NoError(t, r.Register("slow", echoFunc, ToolMetadata{Timeout: time.Minute}))
	_, meta, err = r.Get("slow")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, meta.Timeout)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry(0, nil)

	require.NoError(t, r.Register("echo", echoFunc, ToolMetadata{}))
	require.True(t, r.Has("echo"))

	require.NoError(t, r.Unregister("echo"))
	assert.False(t, r.Has("echo"))
	assert.Error(t, r.Unregister("echo"))
}

func TestListReturnsSchemasSortedByName(t *testing.T) {
	r := NewRegistry(0, nil)

	// Registration order must not leak into the listing.
	require.NoError(t, r.Register("zeta", echoFunc, ToolMetadata{}))
	require.NoError(t, r.Register("alpha", echoFunc, ToolMetadata{}))
	require.NoError(t, r.Register("mid", echoFunc, ToolMetadata{}))

	for i := 0; i < 10; i++ {
		schemas := r.List()
		require.Len(t, schemas, 3)
		assert.Equal(t, "alpha", schemas[0].Name)
		assert.Equal(t, "mid", schemas[1].Name)
		assert.Equal(t, "zeta", schemas[2].Name)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	r := NewRegistry(0, nil)

	require.NoError(t, r.Register("limited", echoFunc, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 2, Window: time.Hour},
	}))

	assert.NoError(t, r.allow("limited"))
	assert.NoError(t, r.allow("limited"))
	assert.Error(t, r.allow("limited"))

	// Unlimited tools always pass.
	require.NoError(t, r.Register("free", echoFunc, ToolMetadata{}))
	assert.NoError(t, r.allow("free"))
}
