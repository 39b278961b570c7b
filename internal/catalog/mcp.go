package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/haasonsaas/overseer/pkg/models"
)

// MCPConfig configures an MCP-backed catalog client.
type MCPConfig struct {
	// ServerID labels the origin server in tool descriptors.
	ServerID string

	// Command and Args launch the MCP server over stdio.
	Command string
	Args    []string
	Env     map[string]string

	// Filter limits which tools are exposed; empty means all.
	Filter []string

	// Logger for connection events.
	Logger *slog.Logger
}

// MCPClient exposes an MCP server's tools as a catalog client. The
// connection is established lazily on first use.
type MCPClient struct {
	cfg    MCPConfig
	logger *slog.Logger

	mu        sync.Mutex
	client    *client.Client
	connected bool
	filterSet map[string]bool
}

// NewMCPClient creates an MCP catalog client.
func NewMCPClient(cfg MCPConfig) (*MCPClient, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("mcp: command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mcp-catalog")
	}
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &MCPClient{cfg: cfg, logger: logger, filterSet: filterSet}, nil
}

// connect establishes and initializes the stdio session once.
func (c *MCPClient) connect(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return c.client, nil
	}

	env := make([]string, 0, len(c.cfg.Env))
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "overseer",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}

	c.client = mcpClient
	c.connected = true
	c.logger.Info("connected to MCP server", "server", c.cfg.ServerID, "command", c.cfg.Command)
	return mcpClient, nil
}

// ListTools fetches the server's tool list and converts it into a
// catalog, applying the configured filter.
func (c *MCPClient) ListTools(ctx context.Context) (*models.ToolCatalog, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	listResp, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}

	tools := make([]models.ToolDescriptor, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		if c.filterSet != nil && !c.filterSet[t.Name] {
			continue
		}
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			c.logger.Warn("skipping tool with unmarshalable schema", "tool", t.Name, "error", err)
			continue
		}
		tools = append(tools, models.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Server:      c.cfg.ServerID,
			Parameters:  schema,
		})
	}
	return models.NewToolCatalog(tools), nil
}

// ExecuteTool invokes the named tool on the MCP server. Protocol errors
// are returned as errors; tool-level errors are folded into the outcome.
func (c *MCPClient) ExecuteTool(ctx context.Context, name string, params map[string]any) (*ExecutionOutcome, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params

	resp, err := session.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call tool %s: %w", name, err)
	}

	texts := make([]string, 0, len(resp.Content))
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return &ExecutionOutcome{OK: false, Error: msg}, nil
	}

	var data any
	switch len(texts) {
	case 0:
	case 1:
		data = texts[0]
	default:
		data = texts
	}
	return &ExecutionOutcome{OK: true, Data: data}, nil
}

// Close tears down the MCP session.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.client == nil {
		return nil
	}
	c.connected = false
	return c.client.Close()
}
