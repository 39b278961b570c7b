// Package agentcache memoizes constructed agent instances keyed by role
// so repeated runs for the same role skip prompt and tool assembly.
package agentcache

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haasonsaas/overseer/internal/backend"
)

const defaultMaxSize = 128

// Builder constructs the agent bound to a role.
type Builder func(role string) (backend.Agent, error)

// Cache is a process-wide, size-bounded memo of agents by role.
type Cache struct {
	mu      sync.Mutex
	agents  *lru.Cache[string, backend.Agent]
	builder Builder
}

// New creates an agent cache with the given builder. maxSize of zero or
// less uses the default.
func New(builder Builder, maxSize int) (*Cache, error) {
	if builder == nil {
		return nil, errors.New("agentcache: builder is required")
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	agents, err := lru.New[string, backend.Agent](maxSize)
	if err != nil {
		return nil, err
	}
	return &Cache{agents: agents, builder: builder}, nil
}

// Get returns the agent for the role, building and caching it on first
// use. Concurrent callers for the same role build at most once.
func (c *Cache) Get(role string) (backend.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agent, ok := c.agents.Get(role); ok {
		return agent, nil
	}
	agent, err := c.builder(role)
	if err != nil {
		return backend.Agent{}, err
	}
	c.agents.Add(role, agent)
	return agent, nil
}

// Invalidate drops the cached agent for a role, forcing a rebuild on the
// next Get. Used when role configuration or the tool catalog changes.
func (c *Cache) Invalidate(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents.Remove(role)
}

// Purge drops every cached agent.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents.Purge()
}

// Len returns the number of cached agents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agents.Len()
}
