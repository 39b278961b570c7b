// Package catalog defines the tool catalog client contract used by the
// orchestrator: listing external tools and executing a named tool with
// parameters. Implementations may use any transport; the engine ships an
// in-memory client and an MCP-backed client.
package catalog

import (
	"context"

	"github.com/haasonsaas/overseer/pkg/models"
)

// ExecutionOutcome is the verbatim result of one tool execution; it is
// wrapped unchanged into the run's execution record.
type ExecutionOutcome struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client lists external tools and executes them by name.
type Client interface {
	// ListTools returns the catalog. Idempotent; results may be cached
	// by callers.
	ListTools(ctx context.Context) (*models.ToolCatalog, error)

	// ExecuteTool runs the named tool with the given parameters. A tool
	// level failure is reported in the outcome, not as an error; the
	// error return is reserved for transport failures.
	ExecuteTool(ctx context.Context, name string, params map[string]any) (*ExecutionOutcome, error)
}
