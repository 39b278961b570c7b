// Package sources adapts external systems into monitoring data streams
// for checking points.
package sources

import (
	"context"
	"sync"

	"github.com/haasonsaas/overseer/pkg/models"
)

// Source produces monitoring observations for checking points to
// evaluate.
type Source interface {
	// Fetch returns the current batch of observations. Params carry
	// source-specific selectors such as channel or queue identifiers.
	Fetch(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error)
}

// MemorySource is an in-memory source fed by the embedder; used for
// custom integrations and tests.
type MemorySource struct {
	mu   sync.Mutex
	data []models.MonitoringDatum
}

// NewMemorySource creates a source pre-loaded with the given data.
func NewMemorySource(data ...models.MonitoringDatum) *MemorySource {
	return &MemorySource{data: data}
}

// Add appends observations for the next Fetch.
func (s *MemorySource) Add(data ...models.MonitoringDatum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, data...)
}

// Fetch returns a snapshot of the buffered observations.
func (s *MemorySource) Fetch(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MonitoringDatum(nil), s.data...), nil
}

// Drain returns the buffered observations and clears the buffer, for
// sources that should observe each datum once.
func (s *MemorySource) Drain() []models.MonitoringDatum {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.data
	s.data = nil
	return out
}
