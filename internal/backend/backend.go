// Package backend defines the model backend contract: producing a
// structured action proposal from a prompt. Implementations wrap the
// Anthropic and OpenAI APIs; the orchestrator consumes only the completed
// proposal, while RunStream exists for interactive modes outside the
// orchestrator flow.
package backend

import (
	"context"
	"errors"

	"github.com/haasonsaas/overseer/pkg/models"
)

// ErrProposalParse indicates the model output could not be interpreted
// as an action proposal.
var ErrProposalParse = errors.New("proposal parse error")

// Agent is a configured instance bound to a role, a model, and a tool
// set. Agents are built on demand and memoized by the agent cache.
type Agent struct {
	// Role is the identifier the agent was built for.
	Role string

	// Model selects the backend model.
	Model string

	// SystemPrompt is the assembled system prompt for the role.
	SystemPrompt string

	// Tools is the catalog slice the agent may propose from.
	Tools []models.ToolDescriptor

	// MaxTokens bounds the completion size. Zero uses the backend
	// default.
	MaxTokens int
}

// Client produces action proposals from prompts.
type Client interface {
	// Run asks the backend for a structured proposal. The returned
	// proposal names a tool and carries schema-checked parameters.
	Run(ctx context.Context, agent Agent, prompt string, ec models.ExecutionContext) (models.ActionProposal, error)

	// RunStream returns the raw completion as text chunks for
	// user-initiated interactive modes.
	RunStream(ctx context.Context, agent Agent, prompt string) (<-chan string, error)
}
