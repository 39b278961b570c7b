// Package capability implements the capability registry: discovery of
// external tools through a catalog client, role-based filtering, and a
// process-wide cache of both the raw catalog and per-role filter results.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/overseer/internal/catalog"
	"github.com/haasonsaas/overseer/pkg/models"
)

// FilterSpec narrows a filtered catalog beyond the context-based rules.
type FilterSpec struct {
	// ExcludedTools is a deny-list applied by name.
	ExcludedTools []string

	// RequiredTags keeps only tools carrying every listed tag.
	RequiredTags []string
}

// Registry owns a cached tool catalog obtained from the catalog client
// and serves role-filtered views of it.
type Registry struct {
	client catalog.Client
	logger *slog.Logger

	// roleTools maps agent role to the tool names it may see. A missing
	// or empty entry means the role sees the full catalog.
	roleTools map[string][]string

	mu        sync.RWMutex
	cached    *models.ToolCatalog
	roleCache map[string][]models.ToolDescriptor
}

// Option configures the registry.
type Option func(*Registry)

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRoleTools restricts the named role to the given tool names.
func WithRoleTools(role string, tools []string) Option {
	return func(r *Registry) {
		r.roleTools[role] = append([]string(nil), tools...)
	}
}

// NewRegistry creates a capability registry over the given client.
func NewRegistry(client catalog.Client, opts ...Option) *Registry {
	r := &Registry{
		client:    client,
		logger:    slog.Default().With("component", "capability"),
		roleTools: make(map[string][]string),
		roleCache: make(map[string][]models.ToolDescriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover returns the tool catalog. The first call fetches from the
// client; subsequent calls return the cached value until ClearCache.
// Discovery errors propagate to the caller.
func (r *Registry) Discover(ctx context.Context) (*models.ToolCatalog, error) {
	r.mu.RLock()
	cached := r.cached
	r.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	cat, err := r.client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("capability discovery: %w", err)
	}
	if cat == nil {
		cat = models.NewToolCatalog(nil)
	}

	r.mu.Lock()
	r.cached = cat
	r.mu.Unlock()
	return cat.Clone(), nil
}

// ClearCache drops the cached catalog and all per-role filter results.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cached = nil
	r.roleCache = make(map[string][]models.ToolDescriptor)
	r.mu.Unlock()
}

// Filter returns the tools visible to the context's role, narrowed by
// the optional spec. Filter failures degrade to an empty result so the
// orchestrator can continue and fail downstream with a precise reason.
// Results without a spec are cached per role.
func (r *Registry) Filter(ctx context.Context, ec models.ExecutionContext, spec *FilterSpec) ([]models.ToolDescriptor, error) {
	if spec == nil {
		r.mu.RLock()
		cached, ok := r.roleCache[ec.AgentRole]
		r.mu.RUnlock()
		if ok {
			return append([]models.ToolDescriptor(nil), cached...), nil
		}
	}

	cat, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}

	filtered := r.applyRole(ec.AgentRole, cat.Tools)
	if spec != nil {
		filtered = applySpec(filtered, spec)
	}

	if spec == nil {
		r.mu.Lock()
		r.roleCache[ec.AgentRole] = append([]models.ToolDescriptor(nil), filtered...)
		r.mu.Unlock()
	}
	return filtered, nil
}

// UpdateWorkflowState runs Filter with the state's context and returns a
// successor state carrying the filtered catalog. The input state is not
// mutated.
func (r *Registry) UpdateWorkflowState(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	tools, err := r.Filter(ctx, state.Context, nil)
	if err != nil {
		return nil, err
	}
	next := state.Clone()
	next.AvailableCapabilities = models.NewToolCatalog(tools)
	return next, nil
}

// GetCapabilityByName returns the named descriptor from the cached
// catalog, discovering first if needed.
func (r *Registry) GetCapabilityByName(ctx context.Context, name string) (models.ToolDescriptor, bool) {
	cat, err := r.Discover(ctx)
	if err != nil {
		r.logger.Warn("capability lookup failed", "tool", name, "error", err)
		return models.ToolDescriptor{}, false
	}
	return cat.Get(name)
}

// applyRole keeps only the tools the role is configured to see.
func (r *Registry) applyRole(role string, tools []models.ToolDescriptor) []models.ToolDescriptor {
	allowed, ok := r.roleTools[role]
	if !ok || len(allowed) == 0 {
		return append([]models.ToolDescriptor(nil), tools...)
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	out := make([]models.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if allowedSet[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func applySpec(tools []models.ToolDescriptor, spec *FilterSpec) []models.ToolDescriptor {
	excluded := make(map[string]bool, len(spec.ExcludedTools))
	for _, name := range spec.ExcludedTools {
		excluded[name] = true
	}

	out := make([]models.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if excluded[t.Name] {
			continue
		}
		if !hasAllTags(t.Tags, spec.RequiredTags) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func hasAllTags(tags, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[tag] = true
	}
	for _, want := range required {
		if !set[want] {
			return false
		}
	}
	return true
}
