package webhook

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// MaxTextRunes is the LINE limit for a single text message.
const MaxTextRunes = 5000

// Replier delivers a reply for a webhook event.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// LineReplier sends replies through the LINE Messaging API.
type LineReplier struct {
	channelToken string
	options      []messaging_api.MessagingApiAPIOption
}

// NewLineReplier creates a replier for channelToken.
func NewLineReplier(channelToken string, options ...messaging_api.MessagingApiAPIOption) (*LineReplier, error) {
	// Validate the token and options once up front.
	if _, err := messaging_api.NewMessagingApiAPI(channelToken, options...); err != nil {
		return nil, fmt.Errorf("failed to create LINE messaging client: %w", err)
	}
	return &LineReplier{channelToken: channelToken, options: options}, nil
}

// Reply sends text as a single text message. Text longer than MaxTextRunes is truncated.
func (r *LineReplier) Reply(ctx context.Context, replyToken, text string) error {
	// The SDK client stores its context, so each reply gets its own client.
	api, err := messaging_api.NewMessagingApiAPI(r.channelToken, r.options...)
	if err != nil {
		return fmt.Errorf("failed to create LINE messaging client: %w", err)
	}

	_, err = api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: truncateRunes(text, MaxTextRunes)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send LINE reply: %w", err)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
