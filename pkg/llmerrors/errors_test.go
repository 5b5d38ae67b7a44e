package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "provider", KindProvider.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "invalid", Kind(42).String())
}

func TestReasonForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Reason
	}{
		{http.StatusUnauthorized, ReasonAuth},
		{http.StatusForbidden, ReasonAuth},
		{http.StatusTooManyRequests, ReasonRateLimit},
		{http.StatusBadRequest, ReasonBadRequest},
		{http.StatusNotFound, ReasonBadRequest},
		{http.StatusRequestTimeout, ReasonTimeout},
		{http.StatusGatewayTimeout, ReasonTimeout},
		{http.StatusInternalServerError, ReasonServer},
		{http.StatusServiceUnavailable, ReasonServer},
		{0, ReasonOther},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonForStatus(tt.status))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	provider := NewProviderError(ReasonRateLimit, 429, "rate limit exceeded", nil)
	wrapped := fmt.Errorf("completion: %w", provider)
	assert.Same(t, provider, Normalize(wrapped))

	timeout := Normalize(fmt.Errorf("call: %w", context.DeadlineExceeded))
	require.NotNil(t, timeout)
	assert.Equal(t, KindProvider, timeout.Kind)
	assert.Equal(t, ReasonTimeout, timeout.Reason)

	other := Normalize(errors.New("connection reset by peer"))
	require.NotNil(t, other)
	assert.Equal(t, KindUnknown, other.Kind)
}

func TestClassify(t *testing.T) {
	kind, reason := Classify(fmt.Errorf("x: %w", NewProviderError(ReasonAuth, 401, "bad key", nil)))
	assert.Equal(t, KindProvider, kind)
	assert.Equal(t, ReasonAuth, reason)

	kind, reason = Classify(NewUnknownError(errors.New("eof"), ""))
	assert.Equal(t, KindUnknown, kind)
	assert.Empty(t, reason)

	kind, reason = Classify(errors.New("plain"))
	assert.Equal(t, KindUnknown, kind)
	assert.Empty(t, reason)
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewUnknownError(cause, "")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "LLM error (unknown): dial tcp: refused", err.Error())

	provider := NewProviderError(ReasonRateLimit, 429, "rate limit exceeded", nil)
	assert.Equal(t, "LLM error (provider/rate_limit): rate limit exceeded", provider.Error())

	bare := NewProviderError(ReasonServer, 502, "", nil)
	assert.Equal(t, "LLM error (provider/server): status 502", bare.Error())
	assert.Equal(t, "Bad Gateway", bare.Detail())
}

func TestChatText(t *testing.T) {
	assert.Equal(t, "", ChatText(nil))

	provider := NewProviderError(ReasonRateLimit, 429, "rate limit exceeded", nil)
	text := ChatText(provider)
	assert.Equal(t, "OpenAI API 錯誤: rate limit exceeded", text)
	assert.Contains(t, text, "rate limit exceeded")

	// Deterministic: same error renders the same text.
	assert.Equal(t, text, ChatText(provider))

	unknown := ChatText(errors.New("unexpected EOF"))
	assert.Equal(t, "未知錯誤: unexpected EOF", unknown)

	timeout := ChatText(context.DeadlineExceeded)
	assert.True(t, strings.HasPrefix(timeout, ProviderReplyPrefix), timeout)
}

func TestSanitizePrompt(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, SanitizePrompt(short, 100))

	long := strings.Repeat("你好", 200)
	out := SanitizePrompt(long, 20)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("你好", 5)), out)
	assert.Contains(t, out, "[400 chars, hash:")
	assert.True(t, strings.HasSuffix(out, strings.Repeat("你好", 5)), out)
}
