package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/overseer/pkg/models"
)

// historyAPI is the slice of the Slack client the source needs; the
// concrete *slack.Client satisfies it.
type historyAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// SlackSource reads recent conversation history from a Slack channel and
// exposes each message as a chat-message datum.
type SlackSource struct {
	client    historyAPI
	channelID string
	limit     int
}

// NewSlackSource creates a source over the given bot token and channel.
func NewSlackSource(botToken, channelID string, limit int) *SlackSource {
	return newSlackSource(slack.New(botToken), channelID, limit)
}

func newSlackSource(client historyAPI, channelID string, limit int) *SlackSource {
	if limit <= 0 {
		limit = 50
	}
	return &SlackSource{client: client, channelID: channelID, limit: limit}
}

// Fetch returns the channel's recent messages. The optional "oldest"
// param (a Slack timestamp string) narrows the window.
func (s *SlackSource) Fetch(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error) {
	req := &slack.GetConversationHistoryParameters{
		ChannelID: s.channelID,
		Limit:     s.limit,
	}
	if oldest, ok := params["oldest"].(string); ok {
		req.Oldest = oldest
	}

	resp, err := s.client.GetConversationHistoryContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("slack history for %s: %w", s.channelID, err)
	}

	out := make([]models.MonitoringDatum, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		out = append(out, models.MonitoringDatum{
			ID:     s.channelID + ":" + msg.Timestamp,
			Type:   models.DatumChatMessage,
			Source: "slack:" + s.channelID,
			Payload: map[string]any{
				"text":      msg.Text,
				"user":      msg.User,
				"channel":   s.channelID,
				"thread_ts": msg.ThreadTimestamp,
			},
			Timestamp: slackTimestamp(msg.Timestamp),
		})
	}
	return out, nil
}

// slackTimestamp parses Slack's "seconds.fraction" message timestamps.
func slackTimestamp(ts string) time.Time {
	seconds, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(seconds), 0).UTC()
}
