// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"linechat/pkg/llm"
)

// Chat framing overhead per the OpenAI chat format: every message costs a few tokens
// beyond its content, and every reply is primed with a few more.
const (
	tokensPerMessage = 4
	tokensReplyPrime = 3
)

// TokenCounter provides token counting for chat models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// All chat models are approximated with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountMessages estimates the prompt tokens a chat request will consume.
func (tc *TokenCounter) CountMessages(messages []llm.CompletionMessage) int {
	if len(messages) == 0 {
		return 0
	}
	total := tokensReplyPrime
	for i := range messages {
		total += tokensPerMessage + tc.CountTokens(string(messages[i].Role)) + tc.CountTokens(messages[i].Content)
	}
	return total
}

//nolint:gochecknoglobals // shared codec, built once
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

func sharedCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		counter, err := NewTokenCounter("gpt-4")
		if err == nil {
			defaultCounter = counter
		}
	})
	return defaultCounter
}

// CountTokensSimple counts tokens without requiring a TokenCounter instance.
func CountTokensSimple(text string) int {
	return sharedCounter().CountTokens(text)
}

// CountMessagesSimple counts prompt tokens without requiring a TokenCounter instance.
func CountMessagesSimple(messages []llm.CompletionMessage) int {
	return sharedCounter().CountMessages(messages)
}
