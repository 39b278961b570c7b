package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/overseer/pkg/models"
)

// Handler executes one static tool.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// StaticClient is an in-memory catalog client. Tools are registered by
// descriptor plus handler; useful for embedding and tests.
type StaticClient struct {
	mu       sync.RWMutex
	tools    []models.ToolDescriptor
	handlers map[string]Handler
}

// NewStaticClient creates an empty static catalog client.
func NewStaticClient() *StaticClient {
	return &StaticClient{
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool to the catalog. A tool with the same name is
// replaced in place, keeping its original position.
func (c *StaticClient) Register(desc models.ToolDescriptor, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tools {
		if t.Name == desc.Name {
			c.tools[i] = desc
			c.handlers[desc.Name] = handler
			return
		}
	}
	c.tools = append(c.tools, desc)
	c.handlers[desc.Name] = handler
}

// ListTools returns a snapshot of the registered catalog.
func (c *StaticClient) ListTools(ctx context.Context) (*models.ToolCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.NewToolCatalog(c.tools), nil
}

// ExecuteTool validates parameters against the tool schema and invokes
// the registered handler. Missing tools and handler failures are folded
// into the outcome.
func (c *StaticClient) ExecuteTool(ctx context.Context, name string, params map[string]any) (*ExecutionOutcome, error) {
	c.mu.RLock()
	handler := c.handlers[name]
	var desc *models.ToolDescriptor
	for i := range c.tools {
		if c.tools[i].Name == name {
			d := c.tools[i].Clone()
			desc = &d
			break
		}
	}
	c.mu.RUnlock()

	if desc == nil || handler == nil {
		return &ExecutionOutcome{OK: false, Error: fmt.Sprintf("tool not found: %s", name)}, nil
	}

	if err := ValidateParams(*desc, params); err != nil {
		return &ExecutionOutcome{OK: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
	}

	data, err := handler(ctx, params)
	if err != nil {
		return &ExecutionOutcome{OK: false, Error: err.Error()}, nil
	}
	return &ExecutionOutcome{OK: true, Data: data}, nil
}
