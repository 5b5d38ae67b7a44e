// Package openaiofficial provides the OpenAI chat completions client using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-3.5-turbo"

var errNoMessages = errors.New("completion request has no messages")

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClient creates a client for the default model.
func NewOfficialClient(apiKey string, opts ...option.RequestOption) llm.LLMClient {
	return NewOfficialClientWithModel(apiKey, DefaultModel, opts...)
}

// NewOfficialClientWithModel creates a client for model. SDK-level retries are disabled:
// each Complete call is exactly one provider request.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	if model == "" {
		model = DefaultModel
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OfficialClient{
		client: client,
		model:  model,
	}
}

// convertMessages maps completion messages onto chat completion message params.
func convertMessages(in []llm.CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in))
	for i := range in {
		msg := &in[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

// Complete implements the llm.LLMClient interface using the Chat Completions API.
//
//nolint:gocritic // value request is reasonable for interface compliance
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewUnknownError(errNoMessages, "")
	}

	params := openai.ChatCompletionNewParams{
		Model:            o.model,
		Messages:         convertMessages(in.Messages),
		Temperature:      openai.Float(in.Temperature),
		FrequencyPenalty: openai.Float(in.FrequencyPenalty),
		PresencePenalty:  openai.Float(in.PresencePenalty),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewUnknownError(nil, "empty response from OpenAI chat completions")
	}

	message := resp.Choices[0].Message
	content := strings.TrimSpace(message.Content)
	if content == "" {
		content = strings.TrimSpace(message.Refusal)
	}
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewUnknownError(nil, "empty message content from OpenAI chat completions")
	}

	return llm.CompletionResponse{
		Content: content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// classifyError translates SDK failures into the llmerrors taxonomy. Errors carrying
// an HTTP status are provider errors with the provider's message verbatim.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}
		return llmerrors.NewProviderError(llmerrors.ReasonForStatus(apiErr.StatusCode), apiErr.StatusCode, message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewProviderError(llmerrors.ReasonTimeout, 0, "request timed out", err)
	}
	return llmerrors.NewUnknownError(fmt.Errorf("OpenAI chat completions failed: %w", err), "")
}
