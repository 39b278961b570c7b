package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/overseer/pkg/models"
)

// OpenAIConfig configures the OpenAI backend client.
type OpenAIConfig struct {
	// APIKey authenticates with the OpenAI API.
	APIKey string

	// BaseURL overrides the API endpoint; empty uses the default.
	// Useful for OpenAI-compatible gateways.
	BaseURL string

	// DefaultModel is used when the agent does not name one.
	DefaultModel string

	// Logger for request events.
	Logger *slog.Logger
}

// OpenAIClient produces action proposals through the chat completions
// API using function calls, with a text-JSON fallback.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	logger       *slog.Logger
}

// NewOpenAIClient creates an OpenAI backend client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "backend", "provider", "openai")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		logger:       logger,
	}, nil
}

// Run issues a chat completion and converts the first tool call into an
// action proposal, falling back to parsing the text content.
func (c *OpenAIClient) Run(ctx context.Context, agent Agent, prompt string, ec models.ExecutionContext) (models.ActionProposal, error) {
	req := c.buildRequest(agent, prompt)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.ActionProposal{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.ActionProposal{}, fmt.Errorf("%w: empty completion", ErrProposalParse)
	}

	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Type != openai.ToolTypeFunction {
			continue
		}
		var proposalParams map[string]any
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &proposalParams); err != nil {
				return models.ActionProposal{}, fmt.Errorf("%w: function arguments: %v", ErrProposalParse, err)
			}
		}
		return models.ActionProposal{
			Action:     call.Function.Name,
			Parameters: proposalParams,
			Reason:     strings.TrimSpace(msg.Content),
		}, nil
	}

	action, proposalParams, reason, expected, err := ParseProposalJSON(msg.Content)
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
func (c *OpenAIClient) RunStream(ctx context.Context, agent Agent, prompt string) (<-chan string, error) {
	req := c.buildRequest(agent, prompt)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.logger.Warn("openai stream ended with error", "error", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if text := resp.Choices[0].Delta.Content; text != "" {
				select {
				case chunks <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return chunks, nil
}

func (c *OpenAIClient) buildRequest(agent Agent, prompt string) openai.ChatCompletionRequest {
	model := agent.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if agent.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: agent.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if agent.MaxTokens > 0 {
		req.MaxTokens = agent.MaxTokens
	}

	for _, tool := range agent.Tools {
		var schema any
		if len(tool.Parameters) > 0 {
			schema = json.RawMessage(tool.Parameters)
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return req
}
