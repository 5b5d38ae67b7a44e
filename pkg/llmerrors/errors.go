// Package llmerrors provides the closed error taxonomy for chat completion failures
// and the rendering of those failures into chat replies.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of completion failure kinds. Callers switch over it exhaustively.
type Kind int8

const (
	// KindProvider means the provider rejected or failed the request
	// (auth, rate limit, malformed request, server error, timeout).
	KindProvider Kind = iota
	// KindUnknown covers every other failure (network, decoding, empty response).
	KindUnknown
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Reason refines a provider error for logs and metrics.
type Reason string

const (
	ReasonAuth       Reason = "auth"
	ReasonRateLimit  Reason = "rate_limit"
	ReasonBadRequest Reason = "bad_request"
	ReasonServer     Reason = "server"
	ReasonTimeout    Reason = "timeout"
	ReasonOther      Reason = "other"
)

// Chat reply prefixes for surfaced failures.
const (
	ProviderReplyPrefix = "OpenAI API 錯誤: "
	UnknownReplyPrefix  = "未知錯誤: "
)

// Error represents a classified completion error.
type Error struct {
	Err        error  // Wrapped underlying error
	Message    string // Provider diagnostic text, verbatim
	Reason     Reason // Set for KindProvider
	StatusCode int    // HTTP status code if applicable
	Kind       Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	label := e.Kind.String()
	if e.Reason != "" {
		label += "/" + string(e.Reason)
	}
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", label, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", label, e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", label, e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the text surfaced to the chat user: the provider message when present,
// otherwise the wrapped error text.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.StatusCode)
}

// NewProviderError creates a provider error with the provider's message.
func NewProviderError(reason Reason, statusCode int, message string, cause error) *Error {
	return &Error{
		Kind:       KindProvider,
		Reason:     reason,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}

// NewUnknownError creates an unknown error wrapping cause.
func NewUnknownError(cause error, message string) *Error {
	return &Error{
		Kind:    KindUnknown,
		Err:     cause,
		Message: message,
	}
}

// ReasonForStatus maps an HTTP status reported by the provider to a reason.
func ReasonForStatus(statusCode int) Reason {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ReasonAuth
	case statusCode == http.StatusTooManyRequests:
		return ReasonRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return ReasonTimeout
	case statusCode >= 500:
		return ReasonServer
	case statusCode >= 400:
		return ReasonBadRequest
	default:
		return ReasonOther
	}
}

// Normalize returns err as a classified *Error. Already classified errors are returned
// as-is, deadline expiry becomes a provider timeout, everything else is unknown.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ReasonTimeout, 0, "request timed out", err)
	}
	return NewUnknownError(err, "")
}

// Classify returns the kind and reason of err. Unclassified errors are KindUnknown
// with no reason.
func Classify(err error) (Kind, Reason) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind, llmErr.Reason
	}
	return KindUnknown, ""
}

// ChatText renders a completion failure as the deterministic reply sent to the chat user.
func ChatText(err error) string {
	classified := Normalize(err)
	if classified == nil {
		return ""
	}
	switch classified.Kind {
	case KindProvider:
		return ProviderReplyPrefix + classified.Detail()
	case KindUnknown:
		return UnknownReplyPrefix + classified.Detail()
	default:
		return UnknownReplyPrefix + classified.Detail()
	}
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// For large prompts, it returns first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	runes := []rune(prompt)
	if len(runes) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 1 {
		halfMax = 1
	}

	first := string(runes[:halfMax])
	last := string(runes[len(runes)-halfMax:])

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(runes), hashStr, last)
}
