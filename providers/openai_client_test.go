package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/types"
)

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	client, err := NewOpenAIClient(llm.Config{
		Provider:  "openai",
		Model:     "gpt-4o",
		APIKeyEnv: "TEST_OPENAI_KEY",
		BaseURL:   srv.URL,
	}, nil)
	require.NoError(t, err)
	return client
}

func chatRequest() *llm.Request {
	return &llm.Request{
		Model:   "gpt-4o",
		Payload: &llm.Payload{Messages: json.RawMessage(`[{"role":"user","content":"hi"}]`)},
		Tools: []types.ToolSchema{{
			Name:       "echo",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
		MaxTokens:   64,
		Temperature: 0.5,
	}
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	_, err := NewOpenAIClient(llm.Config{Provider: "openai", APIKeyEnv: "TEST_OPENAI_KEY"}, nil)
	assert.Error(t, err)
}

func TestOpenAIClientComplete(t *testing.T) {
	var seen oaiRequest
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`)
	})

	raw, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", seen.Model)
	assert.False(t, seen.Stream)
	require.Len(t, seen.Tools, 1)
	assert.Equal(t, "function", seen.Tools[0].Type)
	assert.Equal(t, "echo", seen.Tools[0].Function.Name)

	msgs, err := NewOpenAIFormatter().ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestOpenAIClientMapsHTTPFailure(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit reached"}}`)
	})

	_, err := client.Complete(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))
	assert.True(t, types.IsRetryable(err))
}

func TestOpenAIClientStreamConsolidatesDeltas(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := client.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var deltas string
	var final json.RawMessage
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		deltas += chunk.Delta
		if chunk.Raw != nil {
			final = chunk.Raw
		}
	}

	assert.Equal(t, "Hello", deltas)
	require.NotNil(t, final)

	// The consolidated chunk parses exactly like a synchronous response.
	msgs, err := NewOpenAIFormatter().ParseResponse(final)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content)
}

func TestOpenAIClientStreamAccumulatesToolCallFragments(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"ci\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ty\\\":\\\"Paris\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := client.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var final json.RawMessage
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		if chunk.Raw != nil {
			final = chunk.Raw
		}
	}
	require.NotNil(t, final)

	msgs, err := NewOpenAIFormatter().ParseResponse(final)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[0].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", msgs[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Paris"}`, string(msgs[0].ToolCalls[0].Arguments))
}

func TestOpenAIClientStreamSynthesizesMissingToolCallID(t *testing.T) {
	// Some OpenAI-compatible gateways never send an id fragment.
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"city\\\":\\\"Paris\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := client.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var final json.RawMessage
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		if chunk.Raw != nil {
			final = chunk.Raw
		}
	}
	require.NotNil(t, final)

	msgs, err := NewOpenAIFormatter().ParseResponse(final)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	call := msgs[0].ToolCalls[0]
	assert.Equal(t, "get_weather", call.Name)
	// The synthesized id must be usable for pairing the call with its result.
	assert.NotEmpty(t, call.ID)
	assert.True(t, strings.HasPrefix(call.ID, "call_"))
}

func TestAnthropicClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.MaxTokens == 0 {
			t.Error("max_tokens is mandatory on this API")
		}

		fmt.Fprint(w, `{"role":"assistant","content":[{"type":"text","text":"bonjour"}]}`)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")
	client, err := NewAnthropicClient(llm.Config{
		Provider:  "anthropic",
		APIKeyEnv: "TEST_ANTHROPIC_KEY",
		BaseURL:   srv.URL,
	}, nil)
	require.NoError(t, err)

	raw, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)

	msgs, err := NewAnthropicFormatter().ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bonjour", msgs[0].Content)
}

func TestAnthropicClientDoesNotStream(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")
	client, err := NewAnthropicClient(llm.Config{APIKeyEnv: "TEST_ANTHROPIC_KEY"}, nil)
	require.NoError(t, err)

	assert.False(t, client.SupportsStreaming())
	_, err = client.Stream(context.Background(), chatRequest())
	assert.Error(t, err)
}
