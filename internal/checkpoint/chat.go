package checkpoint

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/pkg/models"
)

func init() {
	mustRegister("chat_bot_mention", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &ChatMentionPoint{BasePoint: NewBasePoint(name, "chat_bot_mention", config, source)}, nil
	})
	mustRegister("chat_help_request", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &ChatHelpPoint{BasePoint: NewBasePoint(name, "chat_help_request", config, source)}, nil
	})
	mustRegister("chat_vip_user", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &ChatVIPPoint{BasePoint: NewBasePoint(name, "chat_vip_user", config, source)}, nil
	})
}

// defaultBotHandle is matched when the config does not name one.
const defaultBotHandle = "@overseer"

// helpPhrases mark a message as a request for assistance.
var helpPhrases = []string{"help", "how do i", "can someone", "is it possible", "stuck on"}

// ChatMentionPoint matches messages that mention the bot handle.
type ChatMentionPoint struct {
	BasePoint
}

func (p *ChatMentionPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumChatMessage
}

func (p *ChatMentionPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	handle := defaultBotHandle
	if v, ok := p.Config().Params["bot_handle"].(string); ok && v != "" {
		handle = v
	}
	text := payloadString(datum, "text")
	if !strings.Contains(strings.ToLower(text), strings.ToLower(handle)) {
		return p.NoMatch("no bot mention")
	}
	return p.Match(0.95,
		fmt.Sprintf("message %s mentions %s", datum.ID, handle),
		map[string]any{
			"message_id": datum.ID,
			"text":       text,
			"user":       payloadString(datum, "user"),
			"channel":    payloadString(datum, "channel"),
		},
		"answer_mention")
}

func (p *ChatMentionPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return []models.ImmediateAction{{
		Name:       "add_eyes_reaction",
		Target:     payloadString(datum, "channel"),
		Parameters: map[string]any{"message_id": datum.ID},
	}}
}

func (p *ChatMentionPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "answer_bot_mention")
}

// ChatHelpPoint matches messages phrased as help requests.
type ChatHelpPoint struct {
	BasePoint
}

func (p *ChatHelpPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumChatMessage
}

func (p *ChatHelpPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	text := strings.ToLower(payloadString(datum, "text"))
	for _, phrase := range helpPhrases {
		if strings.Contains(text, phrase) {
			return p.Match(0.7,
				"message asks for help: "+phrase,
				map[string]any{
					"message_id": datum.ID,
					"text":       payloadString(datum, "text"),
					"user":       payloadString(datum, "user"),
				},
				"answer_help_request")
		}
	}
	return p.NoMatch("no help phrasing")
}

func (p *ChatHelpPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return nil
}

func (p *ChatHelpPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "answer_help_request")
}

// ChatVIPPoint matches messages from configured VIP users so they get
// prioritized handling.
type ChatVIPPoint struct {
	BasePoint
}

func (p *ChatVIPPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumChatMessage
}

func (p *ChatVIPPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	user := payloadString(datum, "user")
	if user == "" {
		return p.NoMatch("message has no user")
	}
	for _, vip := range p.vipUsers() {
		if vip == user {
			return p.Match(0.85,
				"message from VIP user "+user,
				map[string]any{
					"message_id": datum.ID,
					"text":       payloadString(datum, "text"),
					"user":       user,
				},
				"prioritize_response")
		}
	}
	return p.NoMatch("user not in VIP list")
}

func (p *ChatVIPPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return []models.ImmediateAction{{
		Name:       "flag_vip_message",
		Target:     payloadString(datum, "channel"),
		Parameters: map[string]any{"message_id": datum.ID, "user": payloadString(datum, "user")},
	}}
}

func (p *ChatVIPPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "handle_vip_message")
}

// vipUsers reads the configured VIP list; entries may arrive as []string
// or as []any from YAML decoding.
func (p *ChatVIPPoint) vipUsers() []string {
	raw, ok := p.Config().Params["vip_users"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
