// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"

	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
	"linechat/pkg/logx"
)

// maxLoggedChars bounds each message body written to the log.
const maxLoggedChars = 400

// FailureLoggingMiddleware logs the submitted context when a completion fails,
// then passes the error through unchanged.
func FailureLoggingMiddleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					logFailure(ctx, logger, next.GetModelName(), req, err)
				}
				return resp, err //nolint:wrapcheck // Middleware intentionally passes through errors unchanged
			},
			next.GetModelName,
		)
	}
}

//nolint:gocritic // value request mirrors the LLMClient signature
func logFailure(ctx context.Context, logger *logx.Logger, model string, req llm.CompletionRequest, err error) {
	kind, reason := llmerrors.Classify(err)

	logger.Error("❌ completion failed [turn %s]: model=%s kind=%s reason=%s messages=%d: %v",
		logx.TurnID(ctx), model, kind, reason, len(req.Messages), err)

	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Debug("  message[%d] %s: %s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedChars))
	}
}
