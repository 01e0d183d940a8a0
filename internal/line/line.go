// Package line wraps the LINE Messaging API behind narrow interfaces
// so the engine never depends on the SDK directly.
package line

import (
	"context"
	"fmt"

	"github.com/ashureev/kiroku/internal/domain"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Sender delivers outbound messages. Reply consumes a one-shot reply
// token bound to an inbound event; Push addresses a user directly and
// may be called any number of times.
type Sender interface {
	Reply(ctx context.Context, replyToken string, msgs []domain.Message) error
	Push(ctx context.Context, userID string, msgs []domain.Message) error
}

// ProfileProvider resolves a user ID to a display name.
type ProfileProvider interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Client implements Sender and ProfileProvider against the LINE
// Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient creates a messaging client for the given channel token.
func NewClient(channelToken string) (*Client, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	return &Client{api: api}, nil
}

// Reply sends messages bound to a single inbound event's reply token.
func (c *Client) Reply(_ context.Context, replyToken string, msgs []domain.Message) error {
	if _, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   toSDKMessages(msgs),
	}); err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// Push sends messages addressed to a user, independent of any inbound
// event.
func (c *Client) Push(_ context.Context, userID string, msgs []domain.Message) error {
	if _, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: toSDKMessages(msgs),
	}, ""); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// DisplayName looks up the user's profile display name.
func (c *Client) DisplayName(_ context.Context, userID string) (string, error) {
	profile, err := c.api.GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return profile.DisplayName, nil
}

func toSDKMessages(msgs []domain.Message) []messaging_api.MessageInterface {
	out := make([]messaging_api.MessageInterface, 0, len(msgs))
	for _, m := range msgs {
		tm := messaging_api.TextMessage{Text: m.Text}
		if len(m.Choices) > 0 {
			items := make([]messaging_api.QuickReplyItem, 0, len(m.Choices))
			for _, c := range m.Choices {
				items = append(items, messaging_api.QuickReplyItem{
					Type: "action",
					Action: &messaging_api.MessageAction{
						Label: c.Label,
						Text:  c.Text,
					},
				})
			}
			tm.QuickReply = &messaging_api.QuickReply{Items: items}
		}
		out = append(out, tm)
	}
	return out
}
