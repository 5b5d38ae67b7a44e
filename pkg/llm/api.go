// Package llm provides interfaces and types for chat completion clients.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates the fixed directive that frames the conversation.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the chat user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a reply produced by the model.
	RoleAssistant CompletionRole = "assistant"
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages         []CompletionMessage
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Usage reports token consumption for a completed request.
// Zero values mean the provider did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for consistency with middleware packages
	// Complete generates a completion synchronously. Implementations make a single
	// provider call and do not retry.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a completion request for the given messages using params.
func NewCompletionRequest(messages []CompletionMessage, params Params) CompletionRequest {
	return CompletionRequest{
		Messages:         messages,
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// Params holds the sampling parameters applied to every request.
type Params struct {
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Validate validates the sampling parameters.
func (p *Params) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if p.Temperature < 0.0 || p.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if p.FrequencyPenalty < -2.0 || p.FrequencyPenalty > 2.0 {
		return fmt.Errorf("frequency penalty must be between -2.0 and 2.0")
	}
	if p.PresencePenalty < -2.0 || p.PresencePenalty > 2.0 {
		return fmt.Errorf("presence penalty must be between -2.0 and 2.0")
	}
	return nil
}
