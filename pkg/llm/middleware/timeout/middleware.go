// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"errors"
	"time"

	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// A request that outlives duration fails with a provider timeout error naming the
// duration, unless the provider already answered with an HTTP status.
// A non-positive duration disables the deadline.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && !providerAnswered(err) {
					return llm.CompletionResponse{}, llmerrors.NewProviderError(
						llmerrors.ReasonTimeout, 0, "request timed out after "+duration.String(), err)
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// providerAnswered reports whether err carries a status returned by the provider.
func providerAnswered(err error) bool {
	var llmErr *llmerrors.Error
	return errors.As(err, &llmErr) && llmErr.Kind == llmerrors.KindProvider && llmErr.StatusCode != 0
}
