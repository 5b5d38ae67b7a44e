package utils

import (
	"strings"
	"testing"

	"linechat/pkg/llm"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4o", "gpt-3.5-turbo", "unknown-model"} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewTokenCounter(model)
			if err != nil {
				t.Errorf("NewTokenCounter(%s) failed: %v", model, err)
			}
			if counter == nil {
				t.Errorf("NewTokenCounter(%s) returned nil counter", model)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"single word", "Hello", 1, 2},
		{"two words", "Hello world", 2, 3},
		{"sentence", "This is a longer sentence with more words.", 8, 12},
		{"repeated", strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountTokensNilCounterFallsBack(t *testing.T) {
	var counter *TokenCounter
	if got := counter.CountTokens("12345678"); got != 2 {
		t.Errorf("expected character estimate 2, got %d", got)
	}
}

func TestCountMessages(t *testing.T) {
	if got := CountMessagesSimple(nil); got != 0 {
		t.Errorf("expected 0 tokens for no messages, got %d", got)
	}

	one := []llm.CompletionMessage{llm.NewUserMessage("Hello world")}
	two := append(one, llm.NewAssistantMessage("Hello world"))

	oneCount := CountMessagesSimple(one)
	twoCount := CountMessagesSimple(two)

	if oneCount <= CountTokensSimple("Hello world") {
		t.Errorf("expected framing overhead on top of content, got %d", oneCount)
	}
	if twoCount <= oneCount {
		t.Errorf("expected more tokens for two messages: one=%d two=%d", oneCount, twoCount)
	}
}
