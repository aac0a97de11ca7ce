package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/truffle-ai/saiki-sub004/types"
)

// readErrorMessage extracts a human-readable message from a provider error
// body. Both OpenAI-style {"error":{"message":...}} and flat {"message":...}
// shapes are recognized; anything else is returned verbatim, truncated.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no error details"
	}

	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &wrapped) == nil {
		if wrapped.Error.Message != "" {
			return wrapped.Error.Message
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// mapHTTPError converts a provider HTTP failure into a coded error. Context
// overflow is detected from the message because providers report it as a
// plain 400.
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := false

	switch {
	case status == http.StatusBadRequest:
		code = types.ErrInvalidRequest
		if isContextOverflow(msg) {
			code = types.ErrContextTooLong
		}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = types.ErrAuthentication
	case status == http.StatusNotFound:
		code = types.ErrModelNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	case status == http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case status == http.StatusPaymentRequired:
		code = types.ErrQuotaExceeded
	case status == http.StatusServiceUnavailable:
		code = types.ErrModelOverloaded
		retryable = true
	case status >= 500:
		code = types.ErrUpstreamError
		retryable = true
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// isContextOverflow matches the phrasings providers use for a too-long
// prompt.
func isContextOverflow(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"context length",
		"context_length",
		"maximum context",
		"too many tokens",
		"prompt is too long",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
