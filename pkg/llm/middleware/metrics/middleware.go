// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"time"

	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
	"linechat/pkg/logx"
	"linechat/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers the usage reported by the provider and falls back to
// tiktoken estimates when the provider reported none.
//
//nolint:gocritic // value request mirrors the LLMClient signature
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	return utils.CountMessagesSimple(req.Messages), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, and success/failure by error kind.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorKind, reason := "", ""
				if err != nil {
					errorKind, reason = getErrorLabels(err)
				}

				recorder.ObserveRequest(model, promptTokens, completionTokens, err == nil, errorKind, reason, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("🎯 LLM Request: model=%s messages=%d tokens=%d+%d=%d status=%s duration=%dms",
						model, len(req.Messages), promptTokens, completionTokens, promptTokens+completionTokens,
						status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorLabels extracts the kind and reason labels from an error.
func getErrorLabels(err error) (kind, reason string) {
	k, r := llmerrors.Classify(err)
	return k.String(), string(r)
}
