package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/overseer/pkg/models"
)

// MultiClient merges several catalog clients into one. ListTools
// concatenates the member catalogs in registration order; ExecuteTool
// routes by tool name to the member that listed it. Later members do
// not shadow earlier ones: the first member to list a name owns it.
type MultiClient struct {
	clients []Client

	mu    sync.Mutex
	owner map[string]Client
}

// NewMultiClient creates a merged catalog over the given clients.
func NewMultiClient(clients ...Client) *MultiClient {
	return &MultiClient{clients: clients}
}

// ListTools returns the merged catalog and refreshes the routing table.
func (m *MultiClient) ListTools(ctx context.Context) (*models.ToolCatalog, error) {
	var tools []models.ToolDescriptor
	owner := make(map[string]Client)
	for _, c := range m.clients {
		catalog, err := c.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range catalog.Tools {
			if _, taken := owner[t.Name]; taken {
				continue
			}
			owner[t.Name] = c
			tools = append(tools, t)
		}
	}

	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()
	return models.NewToolCatalog(tools), nil
}

// ExecuteTool routes the call to the member that owns the tool name.
// The routing table is built on demand when ListTools has not run yet.
func (m *MultiClient) ExecuteTool(ctx context.Context, name string, params map[string]any) (*ExecutionOutcome, error) {
	m.mu.Lock()
	stale := m.owner == nil
	m.mu.Unlock()
	if stale {
		if _, err := m.ListTools(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	target := m.owner[name]
	m.mu.Unlock()
	if target == nil {
		return nil, fmt.Errorf("catalog: unknown tool %q", name)
	}
	return target.ExecuteTool(ctx, name, params)
}
