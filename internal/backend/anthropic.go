package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/overseer/pkg/models"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicConfig configures the Anthropic backend client.
type AnthropicConfig struct {
	// APIKey authenticates with the Anthropic API.
	APIKey string

	// BaseURL overrides the API endpoint; empty uses the default.
	BaseURL string

	// DefaultModel is used when the agent does not name one.
	DefaultModel string

	// Logger for request events.
	Logger *slog.Logger
}

// AnthropicClient produces action proposals through the Anthropic
// Messages API using tool-use blocks, with a text-JSON fallback for
// models that answer in plain text.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	logger       *slog.Logger
}

// NewAnthropicClient creates an Anthropic backend client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "backend", "provider", "anthropic")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(options...),
		defaultModel: model,
		logger:       logger,
	}, nil
}

// Run issues a non-streaming request and converts the first tool-use
// block into an action proposal. When the model answers in text only,
// the text is parsed as proposal JSON.
func (c *AnthropicClient) Run(ctx context.Context, agent Agent, prompt string, ec models.ExecutionContext) (models.ActionProposal, error) {
	params, err := c.buildParams(agent, prompt)
	if err != nil {
		return models.ActionProposal{}, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return models.ActionProposal{}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var textParts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			toolUse := block.AsToolUse()
			proposalParams, err := decodeToolInput(toolUse.Input)
			if err != nil {
				return models.ActionProposal{}, fmt.Errorf("%w: tool input: %v", ErrProposalParse, err)
			}
			return models.ActionProposal{
				Action:     toolUse.Name,
				Parameters: proposalParams,
				Reason:     strings.TrimSpace(strings.Join(textParts, "\n")),
			}, nil
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		}
	}

	text := strings.Join(textParts, "\n")
	action, proposalParams, reason, expected, err := ParseProposalJSON(text)
	if err != nil {
		return models.ActionProposal{}, err
	}
	return models.ActionProposal{
		Action:         action,
		Parameters:     proposalParams,
		Reason:         reason,
		ExpectedResult: expected,
	}, nil
}

// RunStream streams the raw completion text.
func (c *AnthropicClient) RunStream(ctx context.Context, agent Agent, prompt string) (<-chan string, error) {
	params, err := c.buildParams(agent, prompt)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan string)
	go func() {
		defer close(chunks)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				select {
				case chunks <- delta.Text:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			c.logger.Warn("anthropic stream ended with error", "error", err)
		}
	}()
	return chunks, nil
}

func (c *AnthropicClient) buildParams(agent Agent, prompt string) (anthropic.MessageNewParams, error) {
	model := agent.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := agent.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if agent.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: agent.SystemPrompt}}
	}

	tools, err := encodeAnthropicTools(agent.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Tools = tools
	return params, nil
}

func encodeAnthropicTools(tools []models.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema, err := anthropicInputSchema(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", tool.Name, err)
		}
		u := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if u.OfTool != nil {
			u.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func anthropicInputSchema(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return anthropic.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{ExtraFields: m}, nil
}

// decodeToolInput normalizes the SDK's tool input payload into a string
// keyed map regardless of the concrete type the union carries.
func decodeToolInput(input any) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}
	if m, ok := input.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
